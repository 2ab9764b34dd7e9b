package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	service "github.com/okian/eventhub/internal/app"
	"github.com/okian/eventhub/internal/adapters/repository"
	"github.com/okian/eventhub/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeRelational struct {
	lists   atomic.Int32
	list    func(ctx context.Context) ([]model.Event, error)
	insert  func(ctx context.Context, d model.Draft) (model.Event, error)
	getByID func(ctx context.Context, id string) (model.Event, error)

	mu      sync.Mutex
	handler repository.ChangeHandler
	gap     func()
}

func (f *fakeRelational) List(ctx context.Context) ([]model.Event, error) {
	f.lists.Add(1)
	if f.list == nil {
		return []model.Event{}, nil
	}
	return f.list(ctx)
}

func (f *fakeRelational) Insert(ctx context.Context, d model.Draft) (model.Event, error) {
	return f.insert(ctx, d)
}

func (f *fakeRelational) GetByID(ctx context.Context, id string) (model.Event, error) {
	return f.getByID(ctx, id)
}

func (f *fakeRelational) Subscribe(_ context.Context, h repository.ChangeHandler) (func(), error) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
	return func() {}, nil
}

func (f *fakeRelational) OnGap(fn func()) {
	f.mu.Lock()
	f.gap = fn
	f.mu.Unlock()
}

// deliver pushes c through the handler registered by the last Subscribe.
func (f *fakeRelational) deliver(c model.Change) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h(c)
}

// reportGap runs the gap hook, returning false if none is registered.
func (f *fakeRelational) reportGap() bool {
	f.mu.Lock()
	fn := f.gap
	f.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

type fakeExternal struct {
	fetches atomic.Int32
	clears  atomic.Int32
	fetch   func(ctx context.Context) ([]model.Event, error)
	clear   error
}

func (f *fakeExternal) Fetch(ctx context.Context, _ string, _ int) ([]model.Event, error) {
	f.fetches.Add(1)
	if f.fetch == nil {
		return []model.Event{}, nil
	}
	return f.fetch(ctx)
}

func (f *fakeExternal) ClearCache(context.Context, string, int) error {
	f.clears.Add(1)
	return f.clear
}

// switchableTombstones never buries anything. Once armed, Buried panics.
// With hold set, Buried blocks until hold is closed and signals entered first.
type switchableTombstones struct {
	armed   atomic.Bool
	hold    chan struct{}
	entered chan struct{}
}

func (*switchableTombstones) Bury(context.Context, string) bool { return true }
func (*switchableTombstones) Size() int64                       { return 0 }

func (s *switchableTombstones) Buried(context.Context, string) bool {
	if s.armed.Load() {
		panic("tombstones unavailable")
	}
	if s.hold != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
		<-s.hold
	}
	return false
}

func ev(id string, c model.Category) model.Event {
	return model.Event{ID: id, Title: "Event " + id, Date: "2026-10-20", Time: "19:00", Category: c}
}

func returns(events ...model.Event) func(context.Context) ([]model.Event, error) {
	return func(context.Context) ([]model.Event, error) { return events, nil }
}

func ids(events []model.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func validDraft() model.Draft {
	return model.Draft{
		Title:    "Rooftop Jazz",
		Date:     "2026-10-20",
		Time:     "20:30",
		Category: model.CategoryMusic,
		HostID:   "host-1",
		HostName: "Ada",
		Price:    15,
	}
}

func TestAggregator_FetchEvents(t *testing.T) {
	Convey("Given an aggregator over two healthy sources", t, func() {
		clk := newClock()
		rel := &fakeRelational{list: returns(ev("r1", model.CategoryMusic), ev("r2", model.CategoryTech))}
		ext := &fakeExternal{fetch: returns(ev("eb_1", model.CategoryMusic))}
		agg := service.NewAggregator(rel, ext, service.WithClock(clk.Now))
		ctx := context.Background()

		Convey("When fetching", func() {
			So(agg.FetchEvents(ctx, false), ShouldBeNil)

			Convey("Then relational events come first, then external", func() {
				So(ids(agg.Events()), ShouldResemble, []string{"r1", "r2", "eb_1"})
			})

			Convey("Then both sources are settled without errors", func() {
				for _, st := range agg.Sources() {
					So(st.Loading, ShouldBeFalse)
					So(st.Error, ShouldBeNil)
				}
				So(agg.IsLoading(), ShouldBeFalse)
				So(agg.Err(), ShouldEqual, "")
			})

			Convey("Then lastFetched is the cycle start", func() {
				at, ok := agg.LastFetched()
				So(ok, ShouldBeTrue)
				So(at, ShouldEqual, clk.Now())
			})

			Convey("Then a second call within the freshness window fetches nothing", func() {
				So(agg.FetchEvents(ctx, false), ShouldBeNil)
				So(rel.lists.Load(), ShouldEqual, 1)
				So(ext.fetches.Load(), ShouldEqual, 1)
			})

			Convey("Then a forced call bypasses the window", func() {
				So(agg.FetchEvents(ctx, true), ShouldBeNil)
				So(rel.lists.Load(), ShouldEqual, 2)
			})

			Convey("Then a call after the window fetches again", func() {
				clk.Advance(service.DefaultFreshnessTTL)
				So(agg.FetchEvents(ctx, false), ShouldBeNil)
				So(rel.lists.Load(), ShouldEqual, 2)
				So(ext.fetches.Load(), ShouldEqual, 2)
			})
		})

		Convey("When the selected category is set before fetching", func() {
			agg.FilterByCategory(model.CategoryMusic)
			So(agg.FetchEvents(ctx, false), ShouldBeNil)

			Convey("Then the filtered view is recomputed at commit", func() {
				So(ids(agg.FilteredEvents()), ShouldResemble, []string{"r1", "eb_1"})
				So(agg.Events(), ShouldHaveLength, 3)
			})
		})
	})
}

func TestAggregator_SourceIsolation(t *testing.T) {
	Convey("Given a relational source that fails", t, func() {
		rel := &fakeRelational{list: func(context.Context) ([]model.Event, error) {
			return nil, errors.New("connection refused")
		}}
		ext := &fakeExternal{fetch: returns(ev("eb_1", model.CategoryArt), ev("eb_2", model.CategoryFood))}
		agg := service.NewAggregator(rel, ext)

		Convey("When fetching", func() {
			err := agg.FetchEvents(context.Background(), false)

			Convey("Then the external events are still committed", func() {
				So(err, ShouldBeNil)
				So(ids(agg.Events()), ShouldResemble, []string{"eb_1", "eb_2"})
			})

			Convey("Then only the failing source reports an error", func() {
				sources := agg.Sources()
				So(sources[model.SourceSupabase].Err(), ShouldEqual, "connection refused")
				So(sources[model.SourceEventbrite].Error, ShouldBeNil)
				So(agg.Err(), ShouldEqual, "")
			})
		})
	})

	Convey("Given an external source that panics", t, func() {
		rel := &fakeRelational{list: returns(ev("r1", model.CategoryTech))}
		ext := &fakeExternal{fetch: func(context.Context) ([]model.Event, error) {
			panic("decoder blew up")
		}}
		agg := service.NewAggregator(rel, ext)

		Convey("When fetching", func() {
			err := agg.FetchEvents(context.Background(), false)

			Convey("Then the panic is contained to that source", func() {
				So(err, ShouldBeNil)
				So(ids(agg.Events()), ShouldResemble, []string{"r1"})
				So(agg.Sources()[model.SourceEventbrite].Err(), ShouldContainSubstring, "decoder blew up")
				So(agg.Sources()[model.SourceSupabase].Error, ShouldBeNil)
			})
		})
	})

	Convey("Given a relational source that hangs", t, func() {
		rel := &fakeRelational{list: func(ctx context.Context) ([]model.Event, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}}
		ext := &fakeExternal{fetch: returns(ev("eb_1", model.CategoryArt))}
		agg := service.NewAggregator(rel, ext, service.WithSourceTimeout(50*time.Millisecond))

		Convey("When fetching", func() {
			start := time.Now()
			err := agg.FetchEvents(context.Background(), false)

			Convey("Then the cycle completes after the source timeout", func() {
				So(err, ShouldBeNil)
				So(time.Since(start), ShouldBeLessThan, 2*time.Second)
				So(agg.Sources()[model.SourceSupabase].Err(), ShouldEqual, service.MsgSourceTimeout)
				So(ids(agg.Events()), ShouldResemble, []string{"eb_1"})
			})
		})
	})
}

func TestAggregator_CommitFailure(t *testing.T) {
	Convey("Given an aggregator whose merge step panics", t, func() {
		rel := &fakeRelational{list: returns(ev("r1", model.CategoryTech))}
		ext := &fakeExternal{}
		tomb := &switchableTombstones{}
		tomb.armed.Store(true)
		agg := service.NewAggregator(rel, ext, service.WithTombstones(tomb))

		Convey("When fetching", func() {
			err := agg.FetchEvents(context.Background(), false)

			Convey("Then a generic error is reported and the collection is untouched", func() {
				So(errors.Is(err, service.ErrAggregation), ShouldBeTrue)
				So(agg.Err(), ShouldEqual, service.MsgLoadEvents)
				So(agg.Events(), ShouldBeEmpty)
				So(agg.IsLoading(), ShouldBeFalse)
				for _, st := range agg.Sources() {
					So(st.Err(), ShouldEqual, service.MsgGeneralFetch)
				}
				_, ok := agg.LastFetched()
				So(ok, ShouldBeFalse)
			})
		})
	})

	Convey("Given a populated collection", t, func() {
		clk := newClock()
		rel := &fakeRelational{list: returns(ev("r1", model.CategoryTech), ev("r2", model.CategoryMusic))}
		tomb := &switchableTombstones{}
		agg := service.NewAggregator(rel, &fakeExternal{}, service.WithTombstones(tomb), service.WithClock(clk.Now))
		ctx := context.Background()

		So(agg.FetchEvents(ctx, false), ShouldBeNil)
		committed, ok := agg.LastFetched()
		So(ok, ShouldBeTrue)

		Convey("When a later merge panics", func() {
			tomb.armed.Store(true)
			clk.Advance(time.Minute)
			err := agg.FetchEvents(ctx, true)

			Convey("Then the earlier events and commit time survive", func() {
				So(errors.Is(err, service.ErrAggregation), ShouldBeTrue)
				So(agg.Err(), ShouldEqual, service.MsgLoadEvents)
				So(ids(agg.Events()), ShouldResemble, []string{"r1", "r2"})
				So(ids(agg.FilteredEvents()), ShouldResemble, []string{"r1", "r2"})
				last, ok := agg.LastFetched()
				So(ok, ShouldBeTrue)
				So(last, ShouldEqual, committed)
			})
		})
	})
}

func TestAggregator_CancelledRefresh(t *testing.T) {
	Convey("Given a populated collection over context-aware sources", t, func() {
		clk := newClock()
		rel := &fakeRelational{list: func(ctx context.Context) ([]model.Event, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return []model.Event{ev("r1", model.CategoryTech), ev("r2", model.CategoryMusic)}, nil
		}}
		ext := &fakeExternal{fetch: func(ctx context.Context) ([]model.Event, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return []model.Event{}, nil
		}}
		agg := service.NewAggregator(rel, ext, service.WithClock(clk.Now))
		ctx := context.Background()
		So(agg.FetchEvents(ctx, false), ShouldBeNil)

		Convey("When a forced refresh is requested with a cancelled context", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			So(agg.FetchEvents(cancelled, true), ShouldBeNil)
			So(agg.FetchEvents(ctx, false), ShouldBeNil)

			Convey("Then the cycle still ran and the collection is kept", func() {
				So(rel.lists.Load(), ShouldEqual, 2)
				So(ids(agg.Events()), ShouldResemble, []string{"r1", "r2"})
				for _, st := range agg.Sources() {
					So(st.Error, ShouldBeNil)
				}
			})
		})

		Convey("When an external refresh is requested with a cancelled context", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			So(agg.RefreshExternalEvents(cancelled), ShouldBeNil)

			Convey("Then the collection is kept", func() {
				So(ids(agg.Events()), ShouldResemble, []string{"r1", "r2"})
			})
		})
	})
}

func TestAggregator_SingleFlight(t *testing.T) {
	Convey("Given a slow relational source", t, func() {
		release := make(chan struct{})
		rel := &fakeRelational{list: func(context.Context) ([]model.Event, error) {
			<-release
			return []model.Event{ev("r1", model.CategoryTech)}, nil
		}}
		agg := service.NewAggregator(rel, &fakeExternal{})

		Convey("When many callers refresh at once", func() {
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = agg.FetchEvents(context.Background(), false)
				}()
			}
			time.Sleep(50 * time.Millisecond)
			close(release)
			wg.Wait()

			Convey("Then the source is queried once", func() {
				So(rel.lists.Load(), ShouldEqual, 1)
				So(agg.Events(), ShouldHaveLength, 1)
			})
		})
	})
}

func TestAggregator_FilterByCategory(t *testing.T) {
	Convey("Given a fetched collection", t, func() {
		rel := &fakeRelational{list: returns(
			ev("r1", model.CategoryMusic),
			ev("r2", model.CategoryTech),
			ev("r3", model.CategoryMusic),
		)}
		agg := service.NewAggregator(rel, &fakeExternal{})
		So(agg.FetchEvents(context.Background(), false), ShouldBeNil)

		Convey("Then the default selection shows everything", func() {
			So(agg.SelectedCategory(), ShouldEqual, model.CategoryAll)
			So(ids(agg.FilteredEvents()), ShouldResemble, []string{"r1", "r2", "r3"})
		})

		Convey("When selecting a category", func() {
			agg.FilterByCategory(model.CategoryMusic)

			Convey("Then only matching events remain, in order", func() {
				So(ids(agg.FilteredEvents()), ShouldResemble, []string{"r1", "r3"})
				So(agg.Events(), ShouldHaveLength, 3)
			})

			Convey("Then selecting all restores the full view", func() {
				agg.FilterByCategory(model.CategoryAll)
				So(agg.FilteredEvents(), ShouldHaveLength, 3)
			})
		})

		Convey("When selecting a category with no events", func() {
			agg.FilterByCategory(model.CategorySports)
			So(agg.FilteredEvents(), ShouldBeEmpty)
		})
	})
}

func TestAggregator_CreateEvent(t *testing.T) {
	Convey("Given an aggregator over a working store", t, func() {
		rel := &fakeRelational{insert: func(_ context.Context, d model.Draft) (model.Event, error) {
			return model.Event{ID: "new-1", Title: d.Title, Category: d.Category, Date: d.Date, Time: d.Time}, nil
		}}
		agg := service.NewAggregator(rel, &fakeExternal{})
		agg.FilterByCategory(model.CategoryMusic)

		Convey("When creating a valid event", func() {
			id, err := agg.CreateEvent(context.Background(), validDraft())

			Convey("Then the stored record is appended to both views", func() {
				So(err, ShouldBeNil)
				So(id, ShouldEqual, "new-1")
				So(ids(agg.Events()), ShouldResemble, []string{"new-1"})
				So(ids(agg.FilteredEvents()), ShouldResemble, []string{"new-1"})
				So(agg.IsLoading(), ShouldBeFalse)
			})

			Convey("Then the live insert for the same record is a no-op", func() {
				changed, err := agg.ApplyChange(context.Background(), model.Change{
					Type:   model.ChangeInsert,
					Record: model.Event{ID: "new-1", Category: model.CategoryMusic},
				})
				So(err, ShouldBeNil)
				So(changed, ShouldBeFalse)
				So(agg.Events(), ShouldHaveLength, 1)
			})
		})

		Convey("When creating an invalid draft", func() {
			d := validDraft()
			d.Title = ""
			_, err := agg.CreateEvent(context.Background(), d)

			Convey("Then it is rejected before the store", func() {
				So(errors.Is(err, model.ErrInvalidDraft), ShouldBeTrue)
				So(agg.Events(), ShouldBeEmpty)
			})
		})
	})

	Convey("Given an aggregator over a failing store", t, func() {
		rel := &fakeRelational{
			list: returns(ev("r1", model.CategoryTech)),
			insert: func(context.Context, model.Draft) (model.Event, error) {
				return model.Event{}, errors.New("permission denied")
			},
		}
		agg := service.NewAggregator(rel, &fakeExternal{})
		So(agg.FetchEvents(context.Background(), false), ShouldBeNil)

		Convey("When creating an event", func() {
			_, err := agg.CreateEvent(context.Background(), validDraft())

			Convey("Then a user-facing error is returned and the collection is unchanged", func() {
				var ue *service.UserError
				So(errors.As(err, &ue), ShouldBeTrue)
				So(ue.Msg, ShouldEqual, service.MsgCreateEvent)
				So(errors.Is(err, service.ErrCreateEvent), ShouldBeTrue)
				So(agg.Err(), ShouldEqual, service.MsgCreateEvent)
				So(ids(agg.Events()), ShouldResemble, []string{"r1"})
				So(agg.IsLoading(), ShouldBeFalse)
			})
		})
	})
}

func TestAggregator_GetEventByID(t *testing.T) {
	Convey("Given a collection with an external event and a store", t, func() {
		stored := ev("r1", model.CategoryTech)
		rel := &fakeRelational{getByID: func(_ context.Context, id string) (model.Event, error) {
			switch id {
			case "r1":
				return stored, nil
			case "broken":
				return model.Event{}, errors.New("timeout")
			}
			return model.Event{}, repository.ErrNotFound
		}}
		ext := &fakeExternal{fetch: returns(ev("eb_7", model.CategoryArt))}
		agg := service.NewAggregator(rel, ext)
		So(agg.FetchEvents(context.Background(), false), ShouldBeNil)
		ctx := context.Background()

		Convey("Then external ids resolve from memory", func() {
			e, err := agg.GetEventByID(ctx, "eb_7")
			So(err, ShouldBeNil)
			So(e.Category, ShouldEqual, model.CategoryArt)

			_, err = agg.GetEventByID(ctx, "eb_missing")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
		})

		Convey("Then relational ids resolve from the store, repeatedly", func() {
			first, err := agg.GetEventByID(ctx, "r1")
			So(err, ShouldBeNil)
			second, err := agg.GetEventByID(ctx, "r1")
			So(err, ShouldBeNil)
			So(second, ShouldResemble, first)
		})

		Convey("Then a missing relational id is not found", func() {
			_, err := agg.GetEventByID(ctx, "nope")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
		})

		Convey("Then a store failure is a user-facing error", func() {
			_, err := agg.GetEventByID(ctx, "broken")
			var ue *service.UserError
			So(errors.As(err, &ue), ShouldBeTrue)
			So(ue.Msg, ShouldEqual, service.MsgLoadEvent)
		})
	})
}

func TestAggregator_RefreshExternalEvents(t *testing.T) {
	Convey("Given a fresh collection", t, func() {
		ext := &fakeExternal{fetch: returns(ev("eb_1", model.CategoryArt))}
		agg := service.NewAggregator(&fakeRelational{}, ext)
		So(agg.FetchEvents(context.Background(), false), ShouldBeNil)

		Convey("When refreshing external events", func() {
			err := agg.RefreshExternalEvents(context.Background())

			Convey("Then the cache is cleared and a cycle runs despite freshness", func() {
				So(err, ShouldBeNil)
				So(ext.clears.Load(), ShouldEqual, 1)
				So(ext.fetches.Load(), ShouldEqual, 2)
				So(agg.IsLoading(), ShouldBeFalse)
			})
		})

		Convey("When clearing the cache fails", func() {
			ext.clear = errors.New("redis down")
			err := agg.RefreshExternalEvents(context.Background())

			Convey("Then the refresh failure is reported and no cycle runs", func() {
				So(errors.Is(err, service.ErrRefreshExternal), ShouldBeTrue)
				So(agg.Err(), ShouldEqual, service.MsgRefreshExternal)
				So(agg.Sources()[model.SourceEventbrite].Err(), ShouldEqual, service.MsgRefreshFailed)
				So(ext.fetches.Load(), ShouldEqual, 1)
				So(agg.Events(), ShouldHaveLength, 1)
			})
		})
	})
}

func TestAggregator_ApplyChange(t *testing.T) {
	Convey("Given a fetched collection filtered to music", t, func() {
		rel := &fakeRelational{list: returns(ev("r1", model.CategoryMusic), ev("r2", model.CategoryTech))}
		agg := service.NewAggregator(rel, &fakeExternal{})
		So(agg.FetchEvents(context.Background(), false), ShouldBeNil)
		agg.FilterByCategory(model.CategoryMusic)
		ctx := context.Background()

		Convey("When the same insert arrives twice", func() {
			c := model.Change{Type: model.ChangeInsert, Record: ev("r3", model.CategoryMusic)}
			first, _ := agg.ApplyChange(ctx, c)
			second, _ := agg.ApplyChange(ctx, c)

			Convey("Then it is applied once", func() {
				So(first, ShouldBeTrue)
				So(second, ShouldBeFalse)
				So(ids(agg.Events()), ShouldResemble, []string{"r1", "r2", "r3"})
				So(ids(agg.FilteredEvents()), ShouldResemble, []string{"r1", "r3"})
			})
		})

		Convey("When an update changes the category", func() {
			updated := ev("r2", model.CategoryMusic)
			updated.Title = "Renamed"
			changed, err := agg.ApplyChange(ctx, model.Change{Type: model.ChangeUpdate, Record: updated})

			Convey("Then the record is replaced in place and the view follows", func() {
				So(err, ShouldBeNil)
				So(changed, ShouldBeTrue)
				So(agg.Events()[1].Title, ShouldEqual, "Renamed")
				So(ids(agg.FilteredEvents()), ShouldResemble, []string{"r1", "r2"})
			})
		})

		Convey("When a record is deleted and a late insert for it arrives", func() {
			_, _ = agg.ApplyChange(ctx, model.Change{Type: model.ChangeDelete, Record: model.Event{ID: "r1"}})
			changed, _ := agg.ApplyChange(ctx, model.Change{Type: model.ChangeInsert, Record: ev("r1", model.CategoryMusic)})

			Convey("Then the record stays deleted", func() {
				So(changed, ShouldBeFalse)
				So(ids(agg.Events()), ShouldResemble, []string{"r2"})
				So(agg.FilteredEvents(), ShouldBeEmpty)
			})
		})

		Convey("When a change has an unknown type", func() {
			changed, err := agg.ApplyChange(ctx, model.Change{Type: "truncate"})

			So(err, ShouldNotBeNil)
			So(changed, ShouldBeFalse)
			So(agg.Events(), ShouldHaveLength, 2)
		})
	})
}

func TestAggregator_ChangesDuringCycle(t *testing.T) {
	Convey("Given a cycle that is waiting on the relational source", t, func() {
		entered := make(chan struct{})
		release := make(chan struct{})
		rel := &fakeRelational{list: func(context.Context) ([]model.Event, error) {
			close(entered)
			<-release
			// snapshot taken before the live changes below
			return []model.Event{ev("r1", model.CategoryTech), ev("r2", model.CategoryTech)}, nil
		}}
		agg := service.NewAggregator(rel, &fakeExternal{})
		ctx := context.Background()

		done := make(chan error, 1)
		go func() { done <- agg.FetchEvents(ctx, false) }()
		<-entered

		Convey("When live changes arrive before the cycle commits", func() {
			_, _ = agg.ApplyChange(ctx, model.Change{Type: model.ChangeInsert, Record: ev("r3", model.CategoryTech)})
			_, _ = agg.ApplyChange(ctx, model.Change{Type: model.ChangeDelete, Record: model.Event{ID: "r1"}})
			close(release)
			So(<-done, ShouldBeNil)

			Convey("Then the commit keeps them", func() {
				So(ids(agg.Events()), ShouldResemble, []string{"r2", "r3"})
			})
		})
	})
}

func TestAggregator_LiveUpdates(t *testing.T) {
	Convey("Given an aggregator connected to an in-memory store", t, func() {
		store := repository.NewMemoryStore()
		defer func() { _ = store.Close() }()
		agg := service.NewAggregator(store, &fakeExternal{})
		ctx := context.Background()

		So(agg.FetchEvents(ctx, false), ShouldBeNil)
		So(agg.Connect(ctx), ShouldBeNil)
		So(agg.Connected(), ShouldBeTrue)

		Convey("When rows are written to the store", func() {
			e, err := store.Insert(ctx, validDraft())
			So(err, ShouldBeNil)
			e.Title = "Rooftop Jazz (late show)"
			So(store.Update(ctx, e), ShouldBeNil)

			Convey("Then the collection follows them", func() {
				So(eventually(func() bool {
					got := agg.Events()
					return len(got) == 1 && got[0].Title == "Rooftop Jazz (late show)"
				}), ShouldBeTrue)
			})

			Convey("Then a delete removes the row", func() {
				So(store.Delete(ctx, e.ID), ShouldBeNil)
				So(eventually(func() bool { return len(agg.Events()) == 0 }), ShouldBeTrue)
			})
		})

		Convey("When disconnected", func() {
			agg.Disconnect()
			_, err := store.Insert(ctx, validDraft())
			So(err, ShouldBeNil)
			time.Sleep(50 * time.Millisecond)

			Convey("Then later writes are not applied", func() {
				So(agg.Connected(), ShouldBeFalse)
				So(agg.Events(), ShouldBeEmpty)
			})
		})

		Reset(func() { agg.Disconnect() })
	})
}

func TestAggregator_LiveResync(t *testing.T) {
	Convey("Given a connected aggregator over a fake store", t, func() {
		rel := &fakeRelational{}
		tomb := &switchableTombstones{}
		agg := service.NewAggregator(rel, &fakeExternal{},
			service.WithTombstones(tomb), service.WithChangeQueueCapacity(1))
		ctx := context.Background()

		So(agg.FetchEvents(ctx, false), ShouldBeNil)
		So(agg.Connect(ctx), ShouldBeNil)
		So(rel.lists.Load(), ShouldEqual, 1)
		Reset(func() { agg.Disconnect() })

		Convey("When the store reports a gap in its change stream", func() {
			So(rel.reportGap(), ShouldBeTrue)

			Convey("Then a forced cycle reloads the collection", func() {
				So(eventually(func() bool { return rel.lists.Load() == 2 }), ShouldBeTrue)
			})
		})

		Convey("When the change queue overflows", func() {
			tomb.hold = make(chan struct{})
			tomb.entered = make(chan struct{}, 1)
			rel.deliver(model.Change{Type: model.ChangeInsert, Record: ev("r1", model.CategoryTech)})
			<-tomb.entered
			rel.deliver(model.Change{Type: model.ChangeInsert, Record: ev("r2", model.CategoryTech)})
			rel.deliver(model.Change{Type: model.ChangeInsert, Record: ev("r3", model.CategoryTech)})
			close(tomb.hold)

			Convey("Then a forced cycle recovers the dropped change", func() {
				So(eventually(func() bool { return rel.lists.Load() == 2 }), ShouldBeTrue)
			})
		})

		Convey("When a change arrives after disconnecting", func() {
			agg.Disconnect()
			So(rel.reportGap(), ShouldBeFalse)
			rel.deliver(model.Change{Type: model.ChangeInsert, Record: ev("r9", model.CategoryTech)})
			time.Sleep(50 * time.Millisecond)

			Convey("Then it is discarded without a resync", func() {
				So(rel.lists.Load(), ShouldEqual, 1)
				So(agg.Events(), ShouldBeEmpty)
			})
		})
	})
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
