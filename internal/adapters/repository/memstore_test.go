package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/requestline/internal/adapters/repository"
	"github.com/okian/requestline/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// flakyPersister fails a configurable number of times before succeeding.
type flakyPersister struct {
	mu       sync.Mutex
	failures int
	saved    []model.Entry
}

func (p *flakyPersister) SaveEntry(ctx context.Context, e model.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("disk unavailable")
	}
	p.saved = append(p.saved, e)
	return nil
}

func (p *flakyPersister) savedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saved)
}

func newTestStore(opts ...repository.Option) *repository.MemoryStore {
	return repository.NewMemoryStore(opts...)
}

func TestSubmit(t *testing.T) {
	Convey("Given an empty store", t, func() {
		ctx := context.Background()
		store := newTestStore()

		Convey("When an entry is submitted", func() {
			e, err := store.Submit(ctx, model.Entry{
				OwnerID: "viewer-1",
				Artist:  "The Midnight",
				Title:   "Vampires",
				Tier:    model.TierFree,
			})

			Convey("Then it becomes active with a generated id", func() {
				So(err, ShouldBeNil)
				So(e.ID, ShouldNotBeEmpty)
				So(e.Status, ShouldEqual, model.StatusActive)
				So(store.Count(ctx), ShouldEqual, 1)
			})

			Convey("And a second free entry for the same owner is rejected", func() {
				_, err := store.Submit(ctx, model.Entry{
					OwnerID: "viewer-1",
					Artist:  "Com Truise",
					Title:   "Memory",
					Tier:    model.TierFree,
				})
				So(errors.Is(err, repository.ErrOwnerCapacity), ShouldBeTrue)
			})

			Convey("And a paid entry for the same owner is allowed", func() {
				_, err := store.Submit(ctx, model.Entry{
					OwnerID: "viewer-1",
					Artist:  "Com Truise",
					Title:   "Memory",
					Tier:    model.TierSkip5,
				})
				So(err, ShouldBeNil)
				So(store.Count(ctx), ShouldEqual, 2)
			})
		})

		Convey("When the tier is invalid", func() {
			_, err := store.Submit(ctx, model.Entry{OwnerID: "v", Tier: model.Tier(99)})
			So(errors.Is(err, repository.ErrInvalidTier), ShouldBeTrue)
		})

		Convey("When a pending-promotion flag arrives on a paid tier", func() {
			e, err := store.Submit(ctx, model.Entry{
				OwnerID:          "viewer-2",
				Tier:             model.TierSkip10,
				PendingPromotion: true,
			})

			Convey("Then the flag is stripped", func() {
				So(err, ShouldBeNil)
				So(e.PendingPromotion, ShouldBeFalse)
			})
		})
	})
}

func TestMove(t *testing.T) {
	Convey("Given a store with a free entry", t, func() {
		ctx := context.Background()
		store := newTestStore()
		e, err := store.Submit(ctx, model.Entry{OwnerID: "viewer-1", Tier: model.TierFree})
		So(err, ShouldBeNil)

		Convey("When it moves to a paid tier", func() {
			So(store.Move(ctx, e.ID, model.TierSkip25), ShouldBeNil)

			got, err := store.Get(ctx, e.ID)
			So(err, ShouldBeNil)
			So(got.Tier, ShouldEqual, model.TierSkip25)

			Convey("Then the owner may submit a fresh free entry", func() {
				_, err := store.Submit(ctx, model.Entry{OwnerID: "viewer-1", Tier: model.TierFree})
				So(err, ShouldBeNil)
			})
		})

		Convey("When a promotion-held entry moves to a paid tier", func() {
			So(store.SetPendingPromotion(ctx, e.ID, true), ShouldBeNil)
			So(store.Move(ctx, e.ID, model.TierDoubleSkip), ShouldBeNil)

			got, err := store.Get(ctx, e.ID)
			So(err, ShouldBeNil)
			So(got.PendingPromotion, ShouldBeFalse)
		})

		Convey("When the entry does not exist", func() {
			err := store.Move(ctx, "ghost", model.TierSkip5)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the entry is already served", func() {
			_, err := store.TakeNext(ctx)
			So(err, ShouldBeNil)

			err = store.Move(ctx, e.ID, model.TierSkip5)
			So(errors.Is(err, repository.ErrTerminal), ShouldBeTrue)
		})

		Convey("When moving back to free would exceed owner capacity", func() {
			So(store.Move(ctx, e.ID, model.TierSkip5), ShouldBeNil)
			second, err := store.Submit(ctx, model.Entry{OwnerID: "viewer-1", Tier: model.TierFree})
			So(err, ShouldBeNil)
			_ = second

			err = store.Move(ctx, e.ID, model.TierFree)
			So(errors.Is(err, repository.ErrOwnerCapacity), ShouldBeTrue)
		})
	})
}

func TestRemove(t *testing.T) {
	Convey("Given a store with an entry", t, func() {
		ctx := context.Background()
		store := newTestStore()
		e, err := store.Submit(ctx, model.Entry{OwnerID: "viewer-1", Tier: model.TierSkip5})
		So(err, ShouldBeNil)

		Convey("When it is removed", func() {
			So(store.Remove(ctx, e.ID), ShouldBeNil)

			Convey("Then it is terminal and no longer counted", func() {
				got, err := store.Get(ctx, e.ID)
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, model.StatusRemoved)
				So(store.Count(ctx), ShouldEqual, 0)
			})

			Convey("And removing again fails", func() {
				err := store.Remove(ctx, e.ID)
				So(errors.Is(err, repository.ErrTerminal), ShouldBeTrue)
			})
		})
	})
}

func TestTakeNext(t *testing.T) {
	Convey("Given entries across tiers", t, func() {
		ctx := context.Background()
		store := newTestStore()

		free, err := store.Submit(ctx, model.Entry{OwnerID: "a", Tier: model.TierFree})
		So(err, ShouldBeNil)
		skip5, err := store.Submit(ctx, model.Entry{OwnerID: "b", Tier: model.TierSkip5})
		So(err, ShouldBeNil)
		b2b, err := store.Submit(ctx, model.Entry{OwnerID: "c", Tier: model.TierBackToBack})
		So(err, ShouldBeNil)

		Convey("When entries are served one by one", func() {
			first, err := store.TakeNext(ctx)
			So(err, ShouldBeNil)
			So(first.ID, ShouldEqual, b2b.ID)
			So(first.Status, ShouldEqual, model.StatusServed)

			second, err := store.TakeNext(ctx)
			So(err, ShouldBeNil)
			So(second.ID, ShouldEqual, skip5.ID)

			third, err := store.TakeNext(ctx)
			So(err, ShouldBeNil)
			So(third.ID, ShouldEqual, free.ID)

			Convey("Then an empty queue yields nil without error", func() {
				fourth, err := store.TakeNext(ctx)
				So(err, ShouldBeNil)
				So(fourth, ShouldBeNil)
			})
		})
	})
}

func TestSyncScores(t *testing.T) {
	Convey("Given free entries from two owners", t, func() {
		ctx := context.Background()
		base := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)
		clock := base
		store := newTestStore(repository.WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}))

		first, err := store.Submit(ctx, model.Entry{OwnerID: "a", Tier: model.TierFree})
		So(err, ShouldBeNil)
		second, err := store.Submit(ctx, model.Entry{OwnerID: "b", Tier: model.TierFree})
		So(err, ShouldBeNil)

		Convey("When scores sync", func() {
			changed := store.SyncScores(ctx, map[string]float64{"a": 10, "b": 250})

			Convey("Then both entries update and reorder", func() {
				So(changed, ShouldEqual, 2)
				tier := model.TierFree
				ordered := store.OrderedActive(ctx, &tier)
				So(ordered[0].ID, ShouldEqual, second.ID)
				So(ordered[1].ID, ShouldEqual, first.ID)
			})

			Convey("And a second identical sync changes nothing", func() {
				So(store.SyncScores(ctx, map[string]float64{"a": 10, "b": 250}), ShouldEqual, 0)
			})
		})
	})
}

func TestClearFree(t *testing.T) {
	Convey("Given a mixed queue", t, func() {
		ctx := context.Background()
		store := newTestStore()

		_, err := store.Submit(ctx, model.Entry{OwnerID: "a", Tier: model.TierFree})
		So(err, ShouldBeNil)
		_, err = store.Submit(ctx, model.Entry{OwnerID: "b", Tier: model.TierFree})
		So(err, ShouldBeNil)
		paid, err := store.Submit(ctx, model.Entry{OwnerID: "c", Tier: model.TierSkip20})
		So(err, ShouldBeNil)

		Convey("When the free line is cleared", func() {
			n, err := store.ClearFree(ctx)

			Convey("Then only free entries are removed", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
				So(store.Count(ctx), ShouldEqual, 1)

				got, err := store.Get(ctx, paid.ID)
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, model.StatusActive)
			})
		})
	})
}

func TestPersistence(t *testing.T) {
	Convey("Given a store with a flaky persister", t, func() {
		ctx := context.Background()

		Convey("When a transient failure resolves within the retry budget", func() {
			p := &flakyPersister{failures: 2}
			store := newTestStore(
				repository.WithPersister(p),
				repository.WithPersistRetry([]time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}),
			)

			e, err := store.Submit(ctx, model.Entry{OwnerID: "a", Tier: model.TierFree})

			Convey("Then the submit succeeds after retries", func() {
				So(err, ShouldBeNil)
				So(p.savedCount(), ShouldEqual, 1)
				So(e.Status, ShouldEqual, model.StatusActive)
			})
		})

		Convey("When the persister never recovers", func() {
			p := &flakyPersister{failures: 100}
			store := newTestStore(
				repository.WithPersister(p),
				repository.WithPersistRetry([]time.Duration{time.Millisecond, time.Millisecond}),
			)

			_, err := store.Submit(ctx, model.Entry{OwnerID: "a", Tier: model.TierFree})

			Convey("Then the operation fails and no entry is committed", func() {
				So(errors.Is(err, repository.ErrPersistence), ShouldBeTrue)
				So(store.Count(ctx), ShouldEqual, 0)
			})
		})
	})
}

func TestConcurrentAccess(t *testing.T) {
	Convey("Given concurrent submits and serves", t, func() {
		ctx := context.Background()
		store := newTestStore()

		const writers = 8
		const perWriter = 25

		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					_, _ = store.Submit(ctx, model.Entry{
						OwnerID: "owner",
						Tier:    model.TierSkip5,
					})
					_, _ = store.TakeNext(ctx)
				}
			}(w)
		}
		wg.Wait()

		Convey("Then every submitted entry was either served or remains active", func() {
			tier := model.TierSkip5
			remaining := store.OrderedActive(ctx, &tier)
			So(len(remaining), ShouldBeLessThanOrEqualTo, writers*perWriter)
			for _, e := range remaining {
				So(e.Status, ShouldEqual, model.StatusActive)
			}
		})
	})
}
