package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/requestline/internal/domain/model"
	"github.com/okian/requestline/internal/domain/resolve"
	"github.com/okian/requestline/pkg/metrics"
)

// MemoryStore is the authoritative in-memory entry store. A single mutex
// guards every mutation, including the tier promoter's moves, so takeNext
// never races a concurrent submit/move/remove into an inconsistent view.
// Reads copy entries out and never require the exclusive section.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*model.Entry

	persister   Persister
	retryDelays []time.Duration
	now         func() time.Time
}

// NewMemoryStore constructs an entry store with configuration options.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		entries:     make(map[string]*model.Entry),
		retryDelays: []time.Duration{100 * time.Millisecond, 250 * time.Millisecond, 500 * time.Millisecond},
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Restore seeds the store from persisted state. Called once before the
// store is shared; not guarded.
func (s *MemoryStore) Restore(entries []model.Entry) {
	for _, e := range entries {
		cp := e
		s.entries[e.ID] = &cp
	}
}

// Submit implements Store.Submit.
func (s *MemoryStore) Submit(ctx context.Context, e model.Entry) (model.Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreMutationLatency("submit", float64(time.Since(start).Milliseconds()))
	}()

	if !e.Tier.Valid() {
		metrics.RecordErrorByComponent("repository", "invalid_tier")
		return model.Entry{}, fmt.Errorf("submit to %q: %w", e.Tier, ErrInvalidTier)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Tier == model.TierFree && s.ownerHasActiveFree(e.OwnerID, "") {
		metrics.RecordErrorByComponent("repository", "owner_capacity")
		return model.Entry{}, fmt.Errorf("owner %s: %w", e.OwnerID, ErrOwnerCapacity)
	}

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.Status = model.StatusActive
	e.CreatedAt = s.now()
	e.PendingPromotion = e.PendingPromotion && e.Tier == model.TierFree

	if err := s.persist(ctx, e); err != nil {
		return model.Entry{}, err
	}

	cp := e
	s.entries[e.ID] = &cp
	metrics.UpdateEntriesActive(s.activeCountLocked())
	return e, nil
}

// Move implements Store.Move.
func (s *MemoryStore) Move(ctx context.Context, id string, target model.Tier) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreMutationLatency("move", float64(time.Since(start).Milliseconds()))
	}()

	if !target.Valid() {
		metrics.RecordErrorByComponent("repository", "invalid_tier")
		return fmt.Errorf("move to %q: %w", target, ErrInvalidTier)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return fmt.Errorf("move %s: %w", id, ErrNotFound)
	}
	if e.Status.Terminal() {
		metrics.RecordErrorByComponent("repository", "terminal")
		return fmt.Errorf("move %s: %w", id, ErrTerminal)
	}
	if target == model.TierFree && s.ownerHasActiveFree(e.OwnerID, id) {
		metrics.RecordErrorByComponent("repository", "owner_capacity")
		return fmt.Errorf("owner %s: %w", e.OwnerID, ErrOwnerCapacity)
	}

	updated := *e
	updated.Tier = target
	if target.Paid() {
		updated.PendingPromotion = false
	}

	if err := s.persist(ctx, updated); err != nil {
		return err
	}

	*e = updated
	return nil
}

// Remove implements Store.Remove.
func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	start := time.Now()
	defer func() {
		metrics.RecordStoreMutationLatency("remove", float64(time.Since(start).Milliseconds()))
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	if e.Status.Terminal() {
		metrics.RecordErrorByComponent("repository", "terminal")
		return fmt.Errorf("remove %s: %w", id, ErrTerminal)
	}

	updated := *e
	updated.Status = model.StatusRemoved

	if err := s.persist(ctx, updated); err != nil {
		return err
	}

	*e = updated
	metrics.UpdateEntriesActive(s.activeCountLocked())
	return nil
}

// TakeNext implements Store.TakeNext.
func (s *MemoryStore) TakeNext(ctx context.Context) (*model.Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreMutationLatency("take_next", float64(time.Since(start).Milliseconds()))
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	winner := resolve.Next(s.snapshotLocked())
	if winner == nil {
		return nil, nil
	}

	updated := *winner
	updated.Status = model.StatusServed

	if err := s.persist(ctx, updated); err != nil {
		return nil, err
	}

	*s.entries[winner.ID] = updated
	metrics.RecordTakeNext(winner.Tier.String())
	metrics.UpdateEntriesActive(s.activeCountLocked())
	return &updated, nil
}

// SetPendingPromotion implements Store.SetPendingPromotion.
func (s *MemoryStore) SetPendingPromotion(ctx context.Context, id string, pending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("flag %s: %w", id, ErrNotFound)
	}
	if e.Status.Terminal() {
		return fmt.Errorf("flag %s: %w", id, ErrTerminal)
	}
	if pending && e.Tier != model.TierFree {
		return fmt.Errorf("flag %s in %s: %w", id, e.Tier, ErrInvalidTier)
	}

	updated := *e
	updated.PendingPromotion = pending

	if err := s.persist(ctx, updated); err != nil {
		return err
	}

	*e = updated
	return nil
}

// Get implements Store.Get.
func (s *MemoryStore) Get(ctx context.Context, id string) (model.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return model.Entry{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return *e, nil
}

// OrderedActive implements Store.OrderedActive.
func (s *MemoryStore) OrderedActive(ctx context.Context, tier *model.Tier) []model.Entry {
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if tier != nil {
		return resolve.Tier(snapshot, *tier)
	}
	return resolve.All(snapshot)
}

// ActiveByOwner implements Store.ActiveByOwner.
func (s *MemoryStore) ActiveByOwner(ctx context.Context, owner string) []model.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Entry, 0, 4)
	for _, e := range s.entries {
		if e.Status == model.StatusActive && e.OwnerID == owner {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// SyncScores implements Store.SyncScores. Score writes are best-effort on
// the durable side: the cache is rebuilt on the next sync anyway.
func (s *MemoryStore) SyncScores(ctx context.Context, totals map[string]float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, e := range s.entries {
		if e.Status != model.StatusActive {
			continue
		}
		total, ok := totals[e.OwnerID]
		if !ok || e.Score == total {
			continue
		}
		e.Score = total
		changed++
		if s.persister != nil {
			if err := s.persister.SaveEntry(ctx, *e); err != nil {
				metrics.RecordErrorByComponent("repository", "score_persist")
			}
		}
	}
	return changed
}

// ClearFree implements Store.ClearFree.
func (s *MemoryStore) ClearFree(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := 0
	for _, e := range s.entries {
		if e.Status != model.StatusActive || e.Tier != model.TierFree {
			continue
		}

		updated := *e
		updated.Status = model.StatusRemoved
		if err := s.persist(ctx, updated); err != nil {
			return cleared, err
		}
		*e = updated
		cleared++
	}
	metrics.UpdateEntriesActive(s.activeCountLocked())
	return cleared, nil
}

// Count implements Store.Count.
func (s *MemoryStore) Count(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeCountLocked()
}

// persist mirrors one entry onto durable storage with bounded retries.
// Called with the store mutex held: durability is part of the exclusive
// section, one round-trip per mutation.
func (s *MemoryStore) persist(ctx context.Context, e model.Entry) error {
	if s.persister == nil {
		return nil
	}

	var err error
	for attempt := 0; ; attempt++ {
		if err = s.persister.SaveEntry(ctx, e); err == nil {
			return nil
		}
		if attempt >= len(s.retryDelays) {
			break
		}
		metrics.RecordPersistenceRetry()
		select {
		case <-ctx.Done():
			return fmt.Errorf("persist %s: %w: %w", e.ID, ErrPersistence, ctx.Err())
		case <-time.After(s.retryDelays[attempt]):
		}
	}

	metrics.RecordErrorByComponent("repository", "persistence")
	return fmt.Errorf("persist %s: %w: %w", e.ID, ErrPersistence, err)
}

func (s *MemoryStore) ownerHasActiveFree(owner, excludeID string) bool {
	for _, e := range s.entries {
		if e.ID == excludeID {
			continue
		}
		if e.Status == model.StatusActive && e.Tier == model.TierFree && e.OwnerID == owner {
			return true
		}
	}
	return false
}

func (s *MemoryStore) snapshotLocked() []model.Entry {
	out := make([]model.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}

func (s *MemoryStore) activeCountLocked() int {
	n := 0
	for _, e := range s.entries {
		if e.Status == model.StatusActive {
			n++
		}
	}
	return n
}
