// Package resolve implements the read-side priority ordering over active
// entries. Pure functions only: no state, no mutation.
//
// Tiers above free are strictly FIFO: they represent already-purchased
// priority, so arrival order is the contract. The free tier rewards
// sustained engagement: score descending, creation time as tie-break.
package resolve

import (
	"sort"

	"github.com/okian/requestline/internal/domain/model"
)

// Next returns the highest-priority active entry, or nil when no tier has
// any active entries.
func Next(entries []model.Entry) *model.Entry {
	for _, tier := range model.Tiers() {
		ordered := Tier(entries, tier)
		if len(ordered) > 0 {
			e := ordered[0]
			return &e
		}
	}
	return nil
}

// Tier returns the active entries of one tier in serving order.
func Tier(entries []model.Entry, tier model.Tier) []model.Entry {
	out := make([]model.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Status == model.StatusActive && e.Tier == tier {
			out = append(out, e)
		}
	}

	if tier == model.TierFree {
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Score != out[j].Score {
				return out[i].Score > out[j].Score
			}
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
		return out
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// All returns every active entry in global serving order: tiers walked from
// highest priority to lowest, each tier in its own serving order.
func All(entries []model.Entry) []model.Entry {
	out := make([]model.Entry, 0, len(entries))
	for _, tier := range model.Tiers() {
		out = append(out, Tier(entries, tier)...)
	}
	return out
}
