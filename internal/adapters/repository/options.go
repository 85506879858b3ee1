package repository

import "time"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithPersister mirrors every committed mutation onto p.
func WithPersister(p Persister) Option {
	return func(s *MemoryStore) {
		s.persister = p
	}
}

// WithPersistRetry overrides the bounded retry schedule applied to
// persistence failures.
func WithPersistRetry(delays []time.Duration) Option {
	return func(s *MemoryStore) {
		if len(delays) > 0 {
			s.retryDelays = append([]time.Duration(nil), delays...)
		}
	}
}

// WithClock overrides the time source; tests pin it for deterministic
// FIFO ordering.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}
