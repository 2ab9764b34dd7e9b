package dedupe_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	dedupe "github.com/okian/eventhub/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryTombstones(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new tombstone set", t, func() {
		Convey("When creating it with default options", func() {
			d := dedupe.NewInMemoryTombstones()

			Convey("Then it should be empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
				So(d.Buried(ctx, "event-1"), ShouldBeFalse)
			})
		})

		Convey("When burying ids", func() {
			d := dedupe.NewInMemoryTombstones()

			Convey("And the id is new", func() {
				So(d.Bury(ctx, "event-1"), ShouldBeTrue)

				Convey("Then it should be recorded", func() {
					So(d.Size(), ShouldEqual, 1)
					So(d.Buried(ctx, "event-1"), ShouldBeTrue)
				})
			})

			Convey("And the id was already buried", func() {
				d.Bury(ctx, "event-1")

				Convey("Then the second call reports no change", func() {
					So(d.Bury(ctx, "event-1"), ShouldBeFalse)
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the id is empty", func() {
				Convey("Then it is ignored", func() {
					So(d.Bury(ctx, ""), ShouldBeFalse)
					So(d.Size(), ShouldEqual, 0)
				})
			})
		})

		Convey("When using bounded mode", func() {
			d := dedupe.NewInMemoryTombstones(dedupe.WithMaxSize(3))
			for _, id := range []string{"event-1", "event-2", "event-3"} {
				So(d.Bury(ctx, id), ShouldBeTrue)
			}

			Convey("And one more id is buried", func() {
				So(d.Bury(ctx, "event-4"), ShouldBeTrue)

				Convey("Then the oldest id is evicted", func() {
					So(d.Size(), ShouldEqual, 3)
					So(d.Buried(ctx, "event-1"), ShouldBeFalse)
					So(d.Buried(ctx, "event-2"), ShouldBeTrue)
					So(d.Buried(ctx, "event-3"), ShouldBeTrue)
					So(d.Buried(ctx, "event-4"), ShouldBeTrue)
				})
			})

			Convey("And a buried id is buried again", func() {
				So(d.Bury(ctx, "event-2"), ShouldBeFalse)
				So(d.Bury(ctx, "event-4"), ShouldBeTrue)

				Convey("Then eviction order is unchanged", func() {
					So(d.Size(), ShouldEqual, 3)
					So(d.Buried(ctx, "event-1"), ShouldBeFalse)
					So(d.Buried(ctx, "event-2"), ShouldBeTrue)
				})
			})
		})

		Convey("When using very small max size", func() {
			d := dedupe.NewInMemoryTombstones(dedupe.WithMaxSize(1))
			d.Bury(ctx, "event-1")
			d.Bury(ctx, "event-2")

			Convey("Then only the newest id is kept", func() {
				So(d.Size(), ShouldEqual, 1)
				So(d.Buried(ctx, "event-1"), ShouldBeFalse)
				So(d.Buried(ctx, "event-2"), ShouldBeTrue)
			})
		})

		Convey("When using unbounded mode", func() {
			for _, size := range []int{0, -1} {
				d := dedupe.NewInMemoryTombstones(dedupe.WithMaxSize(size))
				const numIDs = 1000
				for i := 0; i < numIDs; i++ {
					So(d.Bury(ctx, fmt.Sprintf("event-%d", i)), ShouldBeTrue)
				}

				So(d.Size(), ShouldEqual, int64(numIDs))
				So(d.Buried(ctx, "event-0"), ShouldBeTrue)
				So(d.Buried(ctx, fmt.Sprintf("event-%d", numIDs-1)), ShouldBeTrue)
			}
		})

		Convey("When burying very long ids", func() {
			d := dedupe.NewInMemoryTombstones()
			long := strings.Repeat("a", 10000)

			So(d.Bury(ctx, long), ShouldBeTrue)
			So(d.Buried(ctx, long), ShouldBeTrue)
		})
	})
}

func TestTombstonesConcurrency(t *testing.T) {
	ctx := context.Background()

	Convey("Given a tombstone set with concurrent access", t, func() {
		d := dedupe.NewInMemoryTombstones(dedupe.WithMaxSize(1000))
		const numGoroutines = 10
		const idsPerGoroutine = 100

		Convey("When multiple goroutines bury ids concurrently", func() {
			var wg sync.WaitGroup
			for i := 0; i < numGoroutines; i++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for j := 0; j < idsPerGoroutine; j++ {
						d.Bury(ctx, fmt.Sprintf("event-%d-%d", g, j))
					}
				}(i)
			}
			wg.Wait()

			Convey("Then every id is recorded", func() {
				So(d.Size(), ShouldEqual, int64(numGoroutines*idsPerGoroutine))
			})

			Convey("And concurrent readers see every id", func() {
				var missing atomic.Int64
				for i := 0; i < numGoroutines; i++ {
					wg.Add(1)
					go func(g int) {
						defer wg.Done()
						for j := 0; j < idsPerGoroutine; j++ {
							if !d.Buried(ctx, fmt.Sprintf("event-%d-%d", g, j)) {
								missing.Add(1)
							}
						}
					}(i)
				}
				wg.Wait()
				So(missing.Load(), ShouldEqual, 0)
			})
		})
	})
}
