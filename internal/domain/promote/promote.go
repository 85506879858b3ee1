// Package promote maps gift magnitudes to target tiers via an ordered
// threshold table, evaluated highest threshold first.
package promote

import (
	"sort"

	"github.com/okian/requestline/internal/domain/model"
)

// Rule grants a target tier to gifts at or above MinMagnitude.
type Rule struct {
	MinMagnitude int
	Target       model.Tier
}

// Table resolves gift magnitudes to target tiers. Immutable after New.
type Table struct {
	rules []Rule // sorted by MinMagnitude descending
}

// Option applies a configuration option to the Table.
type Option func(*Table)

// WithRules replaces the default threshold rules.
func WithRules(rules []Rule) Option {
	return func(t *Table) {
		if len(rules) > 0 {
			t.rules = append([]Rule(nil), rules...)
		}
	}
}

// New builds a Table with the default thresholds: gifts of 1000 coins and up
// unlock skip tiers, scaling to back-to-back at 6000.
func New(opts ...Option) *Table {
	t := &Table{
		rules: []Rule{
			{MinMagnitude: 6000, Target: model.TierBackToBack},
			{MinMagnitude: 5000, Target: model.TierDoubleSkip},
			{MinMagnitude: 4000, Target: model.TierSkip25},
			{MinMagnitude: 3000, Target: model.TierSkip20},
			{MinMagnitude: 2000, Target: model.TierSkip15},
			{MinMagnitude: 1500, Target: model.TierSkip10},
			{MinMagnitude: 1000, Target: model.TierSkip5},
		},
	}

	for _, opt := range opts {
		opt(t)
	}

	sort.Slice(t.rules, func(i, j int) bool {
		return t.rules[i].MinMagnitude > t.rules[j].MinMagnitude
	})

	return t
}

// Target returns the tier unlocked by a gift of the given magnitude.
// First match wins; gifts below every threshold earn points only.
func (t *Table) Target(magnitude int) (model.Tier, bool) {
	for _, r := range t.rules {
		if magnitude >= r.MinMagnitude {
			return r.Target, true
		}
	}
	return 0, false
}
