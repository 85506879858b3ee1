package aggregator

import (
	"context"
	"time"

	"github.com/okian/requestline/internal/domain/points"
	"github.com/okian/requestline/pkg/logger"
)

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithTable overrides the point conversion table.
func WithTable(t *points.Table) Option {
	return func(a *Aggregator) {
		if t != nil {
			a.table = t
		}
	}
}

// WithEventLog attaches the append-only interaction log.
func WithEventLog(log EventLog) Option {
	return func(a *Aggregator) {
		a.eventLog = log
	}
}

// WithParticipantStore attaches durable participant storage.
func WithParticipantStore(store ParticipantStore) Option {
	return func(a *Aggregator) {
		a.store = store
	}
}

// WithSyncInterval bounds the score staleness window.
func WithSyncInterval(interval time.Duration) Option {
	return func(a *Aggregator) {
		if interval > 0 {
			a.syncInterval = interval
		}
	}
}

// WithSyncHook registers a callback fired after a sync that changed at
// least one entry score.
func WithSyncHook(hook func(ctx context.Context, changed int)) Option {
	return func(a *Aggregator) {
		a.syncHook = hook
	}
}

// WithLogger sets a custom logger for the aggregator.
func WithLogger(l logger.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}
