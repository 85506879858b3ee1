// Package notify is the internal publish mechanism telling display
// adapters that queue state changed. Registration is keyed by a stable
// logical identity, so adapters re-registering after a restart do not
// double-subscribe.
package notify

import (
	"context"
	"sync"

	"github.com/okian/requestline/pkg/logger"
)

// Reason tags what kind of mutation triggered a notification.
type Reason string

const (
	ReasonSubmit        Reason = "submit"
	ReasonMove          Reason = "move"
	ReasonRemove        Reason = "remove"
	ReasonTakeNext      Reason = "take_next"
	ReasonScoreSync     Reason = "score_sync"
	ReasonClearFree     Reason = "clear_free"
	ReasonSessionClosed Reason = "session_closed"
)

// Callback is a subscriber's re-render hook. Invoked outside the entry
// store's mutual-exclusion section; it may be arbitrarily slow.
type Callback func(ctx context.Context, reason Reason)

// Registry holds subscribers keyed by logical id.
type Registry struct {
	mu     sync.RWMutex
	subs   map[string]Callback
	logger logger.Logger
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		subs:   make(map[string]Callback),
		logger: logger.Get().Named("notify"),
	}
}

// Register adds or replaces the subscriber with the given id. Registering
// the same id twice has the same observable effect as registering it once.
func (r *Registry) Register(id string, cb Callback) {
	if id == "" || cb == nil {
		return
	}
	r.mu.Lock()
	r.subs[id] = cb
	r.mu.Unlock()
}

// Unregister removes a subscriber. Unknown ids are a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.subs, id)
	r.mu.Unlock()
}

// Len returns the number of registered subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Notify invokes every subscriber exactly once with the reason. The
// subscriber snapshot is taken under the lock; the callbacks run outside
// it, so a slow subscriber never blocks registration.
func (r *Registry) Notify(ctx context.Context, reason Reason) {
	r.mu.RLock()
	snapshot := make([]Callback, 0, len(r.subs))
	for _, cb := range r.subs {
		snapshot = append(snapshot, cb)
	}
	r.mu.RUnlock()

	for _, cb := range snapshot {
		cb(ctx, reason)
	}
}
