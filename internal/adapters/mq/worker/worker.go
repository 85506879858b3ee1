// Package worker drains the interaction-event queue into the engagement
// aggregator and the tier promoter.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/requestline/internal/adapters/mq/queue"
	"github.com/okian/requestline/internal/aggregator"
	"github.com/okian/requestline/internal/domain/model"
	"github.com/okian/requestline/pkg/logger"
	"github.com/okian/requestline/pkg/metrics"
)

// Default worker configuration constants.
const (
	// A single worker preserves the arrival order of the live stream;
	// more workers trade ordering for throughput.
	defaultWorkerCount    = 1
	workerShutdownTimeout = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Event is what workers read off the queue.
type Event = queue.Event

// Ingester credits an event's points to its participant and logs it.
type Ingester interface {
	Ingest(ctx context.Context, ev model.InteractionEvent) error
}

// Promoter reacts to a gift event with a possible tier move. Points are
// always credited by the Ingester first; the move happens only when an
// eligible entry exists.
type Promoter interface {
	OnGift(ctx context.Context, ev model.InteractionEvent) (bool, error)
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// IngestWorker processes interaction events off the queue.
type IngestWorker struct {
	queue    Queue
	ingester Ingester
	promoter Promoter
	name     string

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewIngestWorker creates a new worker with configuration options.
func NewIngestWorker(queue Queue, ingester Ingester, promoter Promoter, opts ...Option) *IngestWorker {
	w := &IngestWorker{
		queue:    queue,
		ingester: ingester,
		promoter: promoter,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop until ctx is canceled.
func (w *IngestWorker) Run(ctx context.Context) {
	defer close(w.done)

	eventChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			w.processEvent(ctx, event)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *IngestWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processEvent handles a single event. A malformed event is logged and
// discarded; it never stops the ingestion stream.
func (w *IngestWorker) processEvent(ctx context.Context, event Event) {
	start := time.Now()
	defer func() {
		metrics.RecordIngestLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.ingester.Ingest(ctx, event); err != nil {
		if errors.Is(err, aggregator.ErrMalformedEvent) {
			metrics.RecordEventMalformed()
			w.logger.Warn(ctx, "discarding malformed event",
				logger.String("eventID", event.EventID),
				logger.Error(err),
			)
			return
		}
		metrics.RecordErrorByComponent("worker", "ingest_error")
		w.logger.Error(ctx, "ingest failed for event",
			logger.String("eventID", event.EventID),
			logger.Error(err),
		)
		return
	}

	if event.Kind == model.KindGift && w.promoter != nil {
		moved, err := w.promoter.OnGift(ctx, event)
		if err != nil {
			metrics.RecordErrorByComponent("worker", "promotion_error")
			w.logger.Error(ctx, "gift promotion failed",
				logger.String("eventID", event.EventID),
				logger.String("handle", event.Handle),
				logger.Error(err),
			)
			return
		}
		if moved {
			metrics.RecordGiftPromotion()
		}
	}

	metrics.RecordEventProcessed()
}

// Pool manages the ingest workers.
type Pool struct {
	workers  []*IngestWorker
	shutdown chan struct{}
	logger   logger.Logger
}

// NewPool creates a new worker pool. The default size of one keeps live
// stream events in order.
func NewPool(workerCount int, queue Queue, ingester Ingester, promoter Promoter) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	pool := &Pool{
		workers:  make([]*IngestWorker, workerCount),
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewIngestWorker(
			queue,
			ingester,
			promoter,
			WithName(fmt.Sprintf("worker-%d", i)),
		)
	}

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}
}

// Stop gracefully stops all workers.
func (p *Pool) Stop() {
	close(p.shutdown)

	for _, worker := range p.workers {
		select {
		case <-worker.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}

// Shutdown closes the queue and waits for workers to drain.
func (p *Pool) Shutdown(ctx context.Context) error {
	for _, worker := range p.workers {
		select {
		case <-worker.shutdown:
		default:
			close(worker.shutdown)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	return nil
}
