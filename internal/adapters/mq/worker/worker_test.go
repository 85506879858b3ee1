package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/requestline/internal/adapters/mq/queue"
	worker "github.com/okian/requestline/internal/adapters/mq/worker"
	"github.com/okian/requestline/internal/aggregator"
	model "github.com/okian/requestline/internal/domain/model"
	logging "github.com/okian/requestline/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockQueue struct {
	eventChan chan queue.Event
}

func newMockQueue() *mockQueue {
	return &mockQueue{
		eventChan: make(chan queue.Event, 10),
	}
}

func (mq *mockQueue) Dequeue(ctx context.Context) <-chan queue.Event {
	return mq.eventChan
}

func (mq *mockQueue) Close() error {
	close(mq.eventChan)
	return nil
}

func (mq *mockQueue) addEvent(event queue.Event) {
	mq.eventChan <- event
}

type mockIngester struct {
	ingested map[string]model.InteractionEvent
	errors   map[string]error
	mu       sync.RWMutex
}

func newMockIngester() *mockIngester {
	return &mockIngester{
		ingested: make(map[string]model.InteractionEvent),
		errors:   make(map[string]error),
	}
}

func (mi *mockIngester) Ingest(ctx context.Context, ev model.InteractionEvent) error {
	mi.mu.Lock()
	defer mi.mu.Unlock()

	if err, exists := mi.errors[ev.EventID]; exists {
		return err
	}
	mi.ingested[ev.EventID] = ev
	return nil
}

func (mi *mockIngester) setError(eventID string, err error) {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	mi.errors[eventID] = err
}

func (mi *mockIngester) wasIngested(eventID string) bool {
	mi.mu.RLock()
	defer mi.mu.RUnlock()
	_, exists := mi.ingested[eventID]
	return exists
}

type mockPromoter struct {
	gifts  map[string]model.InteractionEvent
	moved  bool
	failed error
	mu     sync.RWMutex
}

func newMockPromoter() *mockPromoter {
	return &mockPromoter{
		gifts: make(map[string]model.InteractionEvent),
	}
}

func (mp *mockPromoter) OnGift(ctx context.Context, ev model.InteractionEvent) (bool, error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.failed != nil {
		return false, mp.failed
	}
	mp.gifts[ev.EventID] = ev
	return mp.moved, nil
}

func (mp *mockPromoter) sawGift(eventID string) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	_, exists := mp.gifts[eventID]
	return exists
}

func TestIngestWorker(t *testing.T) {
	convey.Convey("Given a new IngestWorker", t, func() {
		// Initialize logging for tests
		_ = logging.Init()

		queue := newMockQueue()
		ingester := newMockIngester()
		promoter := newMockPromoter()

		convey.Convey("When creating a worker with default options", func() {
			worker := worker.NewIngestWorker(queue, ingester, promoter)

			convey.Convey("Then it should be created successfully", func() {
				convey.So(worker, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When running a worker", func() {
			worker := worker.NewIngestWorker(queue, ingester, promoter)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go worker.Run(ctx)

			// Give worker time to start
			time.Sleep(10 * time.Millisecond)

			convey.Convey("And when processing a plain event", func() {
				queue.addEvent(model.InteractionEvent{
					EventID:   "event-1",
					Handle:    "viewer_one",
					Kind:      model.KindComment,
					Magnitude: 1,
					TS:        time.Now(),
				})

				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then the ingester credits it and the promoter stays idle", func() {
					convey.So(ingester.wasIngested("event-1"), convey.ShouldBeTrue)
					convey.So(promoter.sawGift("event-1"), convey.ShouldBeFalse)
				})
			})

			convey.Convey("And when processing a gift event", func() {
				promoter.moved = true
				queue.addEvent(model.InteractionEvent{
					EventID:   "gift-1",
					Handle:    "viewer_two",
					Kind:      model.KindGift,
					Magnitude: 1500,
					TS:        time.Now(),
				})

				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then both the ingester and the promoter see it", func() {
					convey.So(ingester.wasIngested("gift-1"), convey.ShouldBeTrue)
					convey.So(promoter.sawGift("gift-1"), convey.ShouldBeTrue)
				})
			})

			convey.Convey("And when an event is malformed", func() {
				ingester.setError("bad-1", fmt.Errorf("missing handle: %w", aggregator.ErrMalformedEvent))

				queue.addEvent(model.InteractionEvent{
					EventID: "bad-1",
					Kind:    model.KindGift,
					TS:      time.Now(),
				})
				queue.addEvent(model.InteractionEvent{
					EventID:   "event-2",
					Handle:    "viewer_three",
					Kind:      model.KindShare,
					Magnitude: 1,
					TS:        time.Now(),
				})

				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then it is discarded and the stream keeps flowing", func() {
					convey.So(ingester.wasIngested("bad-1"), convey.ShouldBeFalse)
					convey.So(promoter.sawGift("bad-1"), convey.ShouldBeFalse)
					convey.So(ingester.wasIngested("event-2"), convey.ShouldBeTrue)
				})
			})

			convey.Convey("And when ingestion fails outright", func() {
				ingester.setError("fail-1", errors.New("storage offline"))

				queue.addEvent(model.InteractionEvent{
					EventID:   "fail-1",
					Handle:    "viewer_four",
					Kind:      model.KindGift,
					Magnitude: 500,
					TS:        time.Now(),
				})

				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then the promoter never runs for that event", func() {
					convey.So(promoter.sawGift("fail-1"), convey.ShouldBeFalse)
				})
			})

			convey.Convey("And when gift promotion fails", func() {
				promoter.failed = errors.New("no eligible entry lookup")

				queue.addEvent(model.InteractionEvent{
					EventID:   "gift-err",
					Handle:    "viewer_five",
					Kind:      model.KindGift,
					Magnitude: 2000,
					TS:        time.Now(),
				})

				time.Sleep(50 * time.Millisecond)

				convey.Convey("Then points were still credited", func() {
					convey.So(ingester.wasIngested("gift-err"), convey.ShouldBeTrue)
				})
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer shutdownCancel()

				err := worker.Shutdown(shutdownCtx)

				convey.Convey("Then it should shutdown gracefully", func() {
					convey.So(err, convey.ShouldBeNil)
				})
			})
		})

		convey.Convey("When the queue channel is closed", func() {
			worker := worker.NewIngestWorker(queue, ingester, promoter)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go worker.Run(ctx)
			time.Sleep(10 * time.Millisecond)

			_ = queue.Close()
			time.Sleep(50 * time.Millisecond)

			convey.Convey("Then shutdown returns without waiting", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer shutdownCancel()
				convey.So(worker.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a new worker pool", t, func() {
		// Initialize logging for tests
		_ = logging.Init()

		queue := newMockQueue()
		ingester := newMockIngester()
		promoter := newMockPromoter()

		convey.Convey("When creating a pool with a non-positive count", func() {
			pool := worker.NewPool(0, queue, ingester, promoter)

			convey.Convey("Then it falls back to a single ordered worker", func() {
				convey.So(pool, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When a started pool processes a burst of events", func() {
			pool := worker.NewPool(1, queue, ingester, promoter)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			pool.Start(ctx)
			time.Sleep(20 * time.Millisecond)

			const eventCount = 10
			for i := 0; i < eventCount; i++ {
				queue.addEvent(model.InteractionEvent{
					EventID:   fmt.Sprintf("event-%d", i),
					Handle:    fmt.Sprintf("viewer_%d", i),
					Kind:      model.KindReaction,
					Magnitude: 1,
					TS:        time.Now(),
				})
			}

			time.Sleep(100 * time.Millisecond)

			convey.Convey("Then every event is credited", func() {
				for i := 0; i < eventCount; i++ {
					convey.So(ingester.wasIngested(fmt.Sprintf("event-%d", i)), convey.ShouldBeTrue)
				}
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
				defer shutdownCancel()

				convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})

		convey.Convey("When stopping a started pool", func() {
			pool := worker.NewPool(1, queue, ingester, promoter)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			pool.Start(ctx)
			time.Sleep(20 * time.Millisecond)

			pool.Stop()
			time.Sleep(50 * time.Millisecond)

			convey.Convey("Then subsequent events go unprocessed", func() {
				queue.addEvent(model.InteractionEvent{
					EventID: "late-1",
					Handle:  "viewer_late",
					Kind:    model.KindComment,
					TS:      time.Now(),
				})
				time.Sleep(50 * time.Millisecond)
				convey.So(ingester.wasIngested("late-1"), convey.ShouldBeFalse)
			})
		})
	})
}
