package resolve_test

import (
	"testing"
	"time"

	model "github.com/okian/requestline/internal/domain/model"
	resolve "github.com/okian/requestline/internal/domain/resolve"
	. "github.com/smartystreets/goconvey/convey"
)

func entry(id string, tier model.Tier, score float64, created time.Time) model.Entry {
	return model.Entry{
		ID:        id,
		OwnerID:   "owner-" + id,
		Tier:      tier,
		Status:    model.StatusActive,
		Score:     score,
		CreatedAt: created,
	}
}

func TestNext(t *testing.T) {
	Convey("Given entries across several tiers", t, func() {
		base := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
		entries := []model.Entry{
			entry("free-hot", model.TierFree, 900, base),
			entry("skip5-early", model.TierSkip5, 0, base.Add(1*time.Minute)),
			entry("skip5-late", model.TierSkip5, 0, base.Add(5*time.Minute)),
			entry("skip25", model.TierSkip25, 0, base.Add(10*time.Minute)),
		}

		Convey("Then the highest tier wins regardless of score or age", func() {
			next := resolve.Next(entries)
			So(next, ShouldNotBeNil)
			So(next.ID, ShouldEqual, "skip25")
		})

		Convey("When the highest tier drains", func() {
			entries[3].Status = model.StatusServed

			Convey("Then the next tier serves FIFO", func() {
				next := resolve.Next(entries)
				So(next, ShouldNotBeNil)
				So(next.ID, ShouldEqual, "skip5-early")
			})
		})

		Convey("When only free entries remain", func() {
			next := resolve.Next(entries[:1])
			So(next, ShouldNotBeNil)
			So(next.ID, ShouldEqual, "free-hot")
		})

		Convey("When no entries are active", func() {
			for i := range entries {
				entries[i].Status = model.StatusRemoved
			}
			So(resolve.Next(entries), ShouldBeNil)
		})

		Convey("When the slice is empty", func() {
			So(resolve.Next(nil), ShouldBeNil)
		})
	})
}

func TestTierOrdering(t *testing.T) {
	Convey("Given free-tier entries with differing scores", t, func() {
		base := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
		entries := []model.Entry{
			entry("a", model.TierFree, 100, base),
			entry("b", model.TierFree, 300, base.Add(2*time.Minute)),
			entry("c", model.TierFree, 300, base.Add(1*time.Minute)),
			entry("d", model.TierFree, 0, base.Add(3*time.Minute)),
		}

		Convey("Then ordering is score descending with arrival as tie-break", func() {
			ordered := resolve.Tier(entries, model.TierFree)
			ids := []string{ordered[0].ID, ordered[1].ID, ordered[2].ID, ordered[3].ID}
			So(ids, ShouldResemble, []string{"c", "b", "a", "d"})
		})

		Convey("Then inactive entries are excluded", func() {
			entries[1].Status = model.StatusServed
			ordered := resolve.Tier(entries, model.TierFree)
			So(ordered, ShouldHaveLength, 3)
			So(ordered[0].ID, ShouldEqual, "c")
		})
	})

	Convey("Given paid-tier entries", t, func() {
		base := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
		entries := []model.Entry{
			entry("late", model.TierSkip10, 500, base.Add(time.Hour)),
			entry("early", model.TierSkip10, 0, base),
		}

		Convey("Then ordering is strictly FIFO; score is ignored", func() {
			ordered := resolve.Tier(entries, model.TierSkip10)
			So(ordered[0].ID, ShouldEqual, "early")
			So(ordered[1].ID, ShouldEqual, "late")
		})
	})
}

func TestAll(t *testing.T) {
	Convey("Given a mixed queue", t, func() {
		base := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
		entries := []model.Entry{
			entry("free-1", model.TierFree, 50, base),
			entry("b2b", model.TierBackToBack, 0, base.Add(time.Hour)),
			entry("skip5", model.TierSkip5, 0, base),
			entry("free-2", model.TierFree, 80, base.Add(time.Minute)),
		}

		Convey("Then the global order walks tiers high to low", func() {
			ordered := resolve.All(entries)
			ids := make([]string, len(ordered))
			for i, e := range ordered {
				ids[i] = e.ID
			}
			So(ids, ShouldResemble, []string{"b2b", "skip5", "free-2", "free-1"})
		})
	})
}
