// Package points converts interaction events into engagement points using a
// fixed per-kind table.
package points

import (
	"github.com/okian/requestline/internal/domain/model"
)

// Default point values per interaction kind.
const (
	defaultReactionPoints  = 1
	defaultCommentPoints   = 2
	defaultSharePoints     = 5
	defaultFollowPoints    = 10
	defaultSubscribePoints = 25

	// Gifts below the boost threshold earn double points; at or above it
	// the magnitude is credited as-is.
	defaultGiftBoostThreshold  = 1000
	defaultGiftBoostMultiplier = 2
)

// Option applies a configuration option to the Table.
type Option func(*Table)

// WithKindValue overrides the point value for a single interaction kind.
func WithKindValue(kind model.EventKind, value float64) Option {
	return func(t *Table) {
		if value >= 0 {
			t.perKind[kind] = value
		}
	}
}

// WithGiftBoost overrides the gift multiplier applied below threshold.
func WithGiftBoost(threshold int, multiplier float64) Option {
	return func(t *Table) {
		if threshold > 0 && multiplier >= 1 {
			t.giftBoostThreshold = threshold
			t.giftBoostMultiplier = multiplier
		}
	}
}

// Table maps interaction kinds to point values. Safe for concurrent reads
// once constructed.
type Table struct {
	perKind             map[model.EventKind]float64
	giftBoostThreshold  int
	giftBoostMultiplier float64
}

// New builds a Table with the default per-kind values.
func New(opts ...Option) *Table {
	t := &Table{
		perKind: map[model.EventKind]float64{
			model.KindJoin:      0,
			model.KindReaction:  defaultReactionPoints,
			model.KindComment:   defaultCommentPoints,
			model.KindShare:     defaultSharePoints,
			model.KindFollow:    defaultFollowPoints,
			model.KindSubscribe: defaultSubscribePoints,
		},
		giftBoostThreshold:  defaultGiftBoostThreshold,
		giftBoostMultiplier: defaultGiftBoostMultiplier,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Value returns the points an event of the given kind and magnitude earns.
// Unknown kinds earn nothing.
func (t *Table) Value(kind model.EventKind, magnitude int) float64 {
	if kind == model.KindGift {
		if magnitude <= 0 {
			return 0
		}
		if magnitude < t.giftBoostThreshold {
			return float64(magnitude) * t.giftBoostMultiplier
		}
		return float64(magnitude)
	}

	v, ok := t.perKind[kind]
	if !ok {
		return 0
	}
	// Batched reactions carry a count in Magnitude.
	if kind == model.KindReaction && magnitude > 1 {
		return v * float64(magnitude)
	}
	return v
}
