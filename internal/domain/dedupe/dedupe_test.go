package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/podium/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestAwardKey(t *testing.T) {
	Convey("Given award rows", t, func() {
		Convey("Rows of one team event share a key", func() {
			a := dedupe.AwardKey(2016, "summer", "Rowing", "Men's Eight", "gold", "GBR")
			b := dedupe.AwardKey(2016, "Summer", " rowing ", "men's eight", "GOLD", "gbr")
			So(a, ShouldEqual, b)
			So(a, ShouldEqual, "2016|summer|rowing|men's eight|gold|gbr")
		})

		Convey("Two bronzes in one event stay distinct per country", func() {
			a := dedupe.AwardKey(2020, "summer", "Judo", "Men -60kg", "bronze", "JPN")
			b := dedupe.AwardKey(2020, "summer", "Judo", "Men -60kg", "bronze", "KAZ")
			So(a, ShouldNotEqual, b)
		})

		Convey("Seasons are part of the identity", func() {
			a := dedupe.AwardKey(1924, "summer", "Ice Hockey", "Men", "gold", "CAN")
			b := dedupe.AwardKey(1924, "winter", "Ice Hockey", "Men", "gold", "CAN")
			So(a, ShouldNotEqual, b)
		})
	})
}

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given an unbounded deduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()

		Convey("A new key is recorded", func() {
			So(d.SeenAndRecord(ctx, "k1"), ShouldBeFalse)
			So(d.Size(), ShouldEqual, 1)

			Convey("And reported as seen the second time", func() {
				So(d.SeenAndRecord(ctx, "k1"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("Unrecord forgets a key", func() {
			d.SeenAndRecord(ctx, "k1")
			d.Unrecord(ctx, "k1")
			So(d.Size(), ShouldEqual, 0)
			So(d.SeenAndRecord(ctx, "k1"), ShouldBeFalse)
		})

		Convey("Unrecord of an unknown key is a no-op", func() {
			d.Unrecord(ctx, "missing")
			So(d.Size(), ShouldEqual, 0)
		})

		Convey("Many keys are kept without eviction", func() {
			for i := 0; i < 1000; i++ {
				So(d.SeenAndRecord(ctx, fmt.Sprintf("k%d", i)), ShouldBeFalse)
			}
			So(d.Size(), ShouldEqual, int64(1000))
			So(d.SeenAndRecord(ctx, "k0"), ShouldBeTrue)
		})
	})

	Convey("Given a bounded deduper of size 2", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))

		d.SeenAndRecord(ctx, "a")
		d.SeenAndRecord(ctx, "b")
		d.SeenAndRecord(ctx, "c")

		Convey("The oldest key is evicted", func() {
			So(d.Size(), ShouldEqual, 2)
			So(d.SeenAndRecord(ctx, "c"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "b"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
		})

		Convey("An unrecorded slot does not evict a live key", func() {
			d.Unrecord(ctx, "b")
			So(d.Size(), ShouldEqual, 1)
			So(d.SeenAndRecord(ctx, "d"), ShouldBeFalse)
			So(d.Size(), ShouldEqual, 2)
			So(d.SeenAndRecord(ctx, "c"), ShouldBeTrue)
		})
	})

	Convey("Given concurrent writers", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()

		var wg sync.WaitGroup
		var mu sync.Mutex
		fresh := 0
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					if !d.SeenAndRecord(ctx, fmt.Sprintf("k%d", i)) {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("Each key is recorded exactly once", func() {
			So(fresh, ShouldEqual, 100)
			So(d.Size(), ShouldEqual, int64(100))
		})
	})
}
