package model_test

import (
	"errors"
	"testing"

	model "github.com/okian/eventhub/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestEvent(t *testing.T) {
	convey.Convey("Given events from both sources", t, func() {
		first := model.Event{ID: "5b7c1c4e", Price: 12.5}
		external := model.Event{ID: model.ExternalID("991"), Price: model.PriceUnknown}

		convey.Convey("Then the source can be told from the id alone", func() {
			convey.So(first.IsExternal(), convey.ShouldBeFalse)
			convey.So(external.IsExternal(), convey.ShouldBeTrue)
			convey.So(external.ID, convey.ShouldEqual, "eb_991")
		})

		convey.Convey("Then the price sentinel maps to a tagged kind", func() {
			convey.So(first.PriceKind(), convey.ShouldEqual, model.PriceKindPriced)
			convey.So(external.PriceKind(), convey.ShouldEqual, model.PriceKindUnknown)
			convey.So(model.Event{Price: 0}.PriceKind(), convey.ShouldEqual, model.PriceKindFree)
			convey.So(external.Price, convey.ShouldEqual, -1)
		})
	})

	convey.Convey("Given a slice of events", t, func() {
		events := []model.Event{{ID: "a"}, {ID: "b"}}

		convey.Convey("When cloning it", func() {
			out := model.Clone(events)
			out[0].ID = "changed"

			convey.Convey("Then the original is untouched", func() {
				convey.So(events[0].ID, convey.ShouldEqual, "a")
				convey.So(len(out), convey.ShouldEqual, 2)
			})
		})
	})
}

func TestCategory(t *testing.T) {
	convey.Convey("Given category strings", t, func() {
		convey.Convey("Then known values parse to themselves", func() {
			for _, c := range model.Categories() {
				convey.So(model.ParseCategory(string(c)), convey.ShouldEqual, c)
			}
			convey.So(model.ParseCategory(" Music "), convey.ShouldEqual, model.CategoryMusic)
		})

		convey.Convey("Then unknown values resolve to other", func() {
			convey.So(model.ParseCategory("opera"), convey.ShouldEqual, model.CategoryOther)
			convey.So(model.ParseCategory(""), convey.ShouldEqual, model.CategoryOther)
			convey.So(model.ParseCategory("all"), convey.ShouldEqual, model.CategoryOther)
		})

		convey.Convey("Then filters accept all but reject unknown values", func() {
			c, ok := model.ParseFilter("ALL")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(c, convey.ShouldEqual, model.CategoryAll)

			_, ok = model.ParseFilter("opera")
			convey.So(ok, convey.ShouldBeFalse)
		})
	})

	convey.Convey("Given events with categories music, tech, music", t, func() {
		events := []model.Event{
			{ID: "1", Category: model.CategoryMusic},
			{ID: "2", Category: model.CategoryTech},
			{ID: "3", Category: model.CategoryMusic},
		}

		convey.Convey("When filtering by music", func() {
			out := model.FilterByCategory(events, model.CategoryMusic)

			convey.Convey("Then exactly the music events are kept in order", func() {
				convey.So(len(out), convey.ShouldEqual, 2)
				convey.So(out[0].ID, convey.ShouldEqual, "1")
				convey.So(out[1].ID, convey.ShouldEqual, "3")
			})
		})

		convey.Convey("When filtering by all", func() {
			out := model.FilterByCategory(events, model.CategoryAll)

			convey.Convey("Then every event is returned", func() {
				convey.So(out, convey.ShouldResemble, events)
			})
		})
	})
}

func TestDraftValidate(t *testing.T) {
	convey.Convey("Given a valid draft", t, func() {
		d := model.Draft{
			Title:    "Jazz night",
			Date:     "2026-11-01",
			Time:     "19:30",
			Category: model.CategoryMusic,
			HostID:   "user-1",
			HostName: "Ada",
		}

		convey.Convey("Then it validates", func() {
			convey.So(d.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When the price is the unknown sentinel", func() {
			d.Price = model.PriceUnknown
			convey.So(d.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When the price is free or fractional", func() {
			for _, price := range []float64{0, 0.5, 12.99} {
				d.Price = price
				convey.So(d.Validate(), convey.ShouldBeNil)
			}
		})

		convey.Convey("When a field is broken", func() {
			cases := map[string]func(*model.Draft){
				"title":    func(d *model.Draft) { d.Title = "  " },
				"host":     func(d *model.Draft) { d.HostID = "" },
				"category": func(d *model.Draft) { d.Category = "opera" },
				"price":    func(d *model.Draft) { d.Price = -2 },
				"fraction": func(d *model.Draft) { d.Price = -0.5 },
				"date":     func(d *model.Draft) { d.Date = "01/11/2026" },
				"time":     func(d *model.Draft) { d.Time = "7pm" },
			}
			for name, mutate := range cases {
				broken := d
				mutate(&broken)
				err := broken.Validate()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, model.ErrInvalidDraft), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldNotBeEmpty)
				t.Logf("rejected broken %s", name)
			}
		})
	})
}

func TestSourceStatus(t *testing.T) {
	convey.Convey("Given source statuses", t, func() {
		convey.So(model.Settled().Err(), convey.ShouldEqual, "")
		convey.So(model.Settled().Error, convey.ShouldBeNil)
		convey.So(model.Loading().Loading, convey.ShouldBeTrue)
		convey.So(model.Failed("boom").Err(), convey.ShouldEqual, "boom")
		convey.So(model.ChangeInsert.Valid(), convey.ShouldBeTrue)
		convey.So(model.ChangeType("truncate").Valid(), convey.ShouldBeFalse)
	})
}
