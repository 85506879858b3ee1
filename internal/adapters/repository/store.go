// Package repository defines the entry store interface and errors.
package repository

import (
	"context"

	"github.com/okian/requestline/internal/domain/model"
)

// Store provides read/write access to queue entries. All mutating
// operations execute inside a single mutual-exclusion section so the effect
// of any completed command is fully visible to the next one.
type Store interface {
	// Submit creates a new active entry. Returns ErrOwnerCapacity when the
	// owner already holds an active free-tier entry and the target is the
	// free tier.
	Submit(ctx context.Context, e model.Entry) (model.Entry, error)

	// Move reassigns an entry's tier in place. Timestamp and score are
	// unchanged. Returns ErrNotFound or ErrTerminal.
	Move(ctx context.Context, id string, target model.Tier) error

	// Remove transitions an entry to removed.
	Remove(ctx context.Context, id string) error

	// TakeNext resolves the highest-priority active entry, atomically
	// transitions it to served and returns it. Returns (nil, nil) when no
	// active entries exist.
	TakeNext(ctx context.Context) (*model.Entry, error)

	// SetPendingPromotion flags or clears the pending-promotion sub-state
	// on a free-tier entry.
	SetPendingPromotion(ctx context.Context, id string, pending bool) error

	// Get returns a copy of one entry.
	Get(ctx context.Context, id string) (model.Entry, error)

	// OrderedActive returns active entries in serving order; tier narrows
	// the view to a single tier when non-nil.
	OrderedActive(ctx context.Context, tier *model.Tier) []model.Entry

	// ActiveByOwner returns the owner's active entries, newest first.
	ActiveByOwner(ctx context.Context, owner string) []model.Entry

	// SyncScores copies per-owner point totals onto active entries and
	// returns how many entries changed.
	SyncScores(ctx context.Context, totals map[string]float64) int

	// ClearFree removes every active free-tier entry, returning the count.
	ClearFree(ctx context.Context) (int, error)

	// Count returns the number of active entries.
	Count(ctx context.Context) int
}

// Persister mirrors entry state onto durable storage. The store retries a
// bounded number of times before surfacing ErrPersistence to the caller.
type Persister interface {
	SaveEntry(ctx context.Context, e model.Entry) error
}
