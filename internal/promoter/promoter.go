// Package promoter reacts to high-value gift events by promoting an
// eligible entry across tiers. Points are always credited by the
// aggregator first; the promoter only performs the move.
package promoter

import (
	"context"
	"fmt"

	"github.com/okian/requestline/internal/domain/model"
	"github.com/okian/requestline/internal/domain/promote"
	"github.com/okian/requestline/pkg/logger"
)

// EntryStore is the subset of store operations the promoter uses. Move
// takes the store's mutation lock, keeping the promotion atomic with
// concurrent commands.
type EntryStore interface {
	ActiveByOwner(ctx context.Context, owner string) []model.Entry
	Move(ctx context.Context, id string, target model.Tier) error
}

// OwnerResolver maps a participant handle to its linked entry owner.
type OwnerResolver interface {
	OwnerOf(handle string) (string, bool)
}

// Promoter resolves gift magnitudes against the threshold table and moves
// the owner's most recent eligible entry.
type Promoter struct {
	table  *promote.Table
	store  EntryStore
	owners OwnerResolver
	logger logger.Logger
}

// Option applies a configuration option to the Promoter.
type Option func(*Promoter)

// WithTable overrides the promotion threshold table.
func WithTable(t *promote.Table) Option {
	return func(p *Promoter) {
		if t != nil {
			p.table = t
		}
	}
}

// WithLogger sets a custom logger for the promoter.
func WithLogger(l logger.Logger) Option {
	return func(p *Promoter) {
		if l != nil {
			p.logger = l
		}
	}
}

// New constructs a Promoter with configuration options.
func New(store EntryStore, owners OwnerResolver, opts ...Option) *Promoter {
	p := &Promoter{
		table:  promote.New(),
		store:  store,
		owners: owners,
		logger: logger.Get().Named("promoter"),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// OnGift maps a gift event to a tier move. Returns true when an entry was
// moved. A gift below every threshold, an unlinked handle or an owner with
// no eligible entry all return (false, nil): the points were already
// credited and must not be dropped.
func (p *Promoter) OnGift(ctx context.Context, ev model.InteractionEvent) (bool, error) {
	target, ok := p.table.Target(ev.Magnitude)
	if !ok {
		return false, nil
	}

	owner, ok := p.owners.OwnerOf(ev.Handle)
	if !ok {
		p.logger.Debug(ctx, "gift from unlinked handle; points only",
			logger.String("handle", ev.Handle),
			logger.Int("magnitude", ev.Magnitude),
		)
		return false, nil
	}

	candidate := eligible(p.store.ActiveByOwner(ctx, owner))
	if candidate == nil {
		p.logger.Debug(ctx, "no eligible entry for gift promotion",
			logger.String("owner", owner),
			logger.Int("magnitude", ev.Magnitude),
		)
		return false, nil
	}

	if err := p.store.Move(ctx, candidate.ID, target); err != nil {
		return false, fmt.Errorf("promote %s to %s: %w", candidate.ID, target, err)
	}

	p.logger.Info(ctx, "gift promotion applied",
		logger.String("entryID", candidate.ID),
		logger.String("owner", owner),
		logger.String("target", target.String()),
		logger.Int("magnitude", ev.Magnitude),
	)
	return true, nil
}

// eligible picks the most recently created candidate. Eligibility is
// exactly: free tier, or flagged pending-promotion. Entries already in a
// paid tier are never moved again by gifts.
func eligible(entries []model.Entry) *model.Entry {
	for _, e := range entries { // newest first
		if e.Tier == model.TierFree || e.PendingPromotion {
			cp := e
			return &cp
		}
	}
	return nil
}
