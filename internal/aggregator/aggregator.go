// Package aggregator converts interaction events into per-participant point
// totals and periodically syncs them onto active entries.
package aggregator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/requestline/internal/domain/model"
	"github.com/okian/requestline/internal/domain/points"
	"github.com/okian/requestline/pkg/logger"
	"github.com/okian/requestline/pkg/metrics"
)

// defaultSyncInterval bounds the staleness of entry scores.
const defaultSyncInterval = 15 * time.Second

// ScoreSyncer receives the per-owner totals during the periodic sync.
// Implemented by the entry store; takes the store's mutation lock.
type ScoreSyncer interface {
	SyncScores(ctx context.Context, totals map[string]float64) int
}

// EventLog appends events for auditability. Rows are never mutated.
type EventLog interface {
	AppendEvent(ctx context.Context, ev model.InteractionEvent) error
}

// ParticipantStore mirrors participant state onto durable storage.
type ParticipantStore interface {
	SaveParticipant(ctx context.Context, p model.Participant) error
}

// Aggregator owns participant state. Points are authoritative here; entry
// scores are only a cached projection refreshed by Sync.
type Aggregator struct {
	mu           sync.Mutex
	participants map[string]*model.Participant

	table        *points.Table
	syncer       ScoreSyncer
	eventLog     EventLog
	store        ParticipantStore
	syncInterval time.Duration
	syncHook     func(ctx context.Context, changed int)
	now          func() time.Time

	wg     sync.WaitGroup
	stopCh chan struct{}

	logger logger.Logger
}

// New constructs an Aggregator with configuration options.
func New(syncer ScoreSyncer, opts ...Option) *Aggregator {
	a := &Aggregator{
		participants: make(map[string]*model.Participant),
		table:        points.New(),
		syncer:       syncer,
		syncInterval: defaultSyncInterval,
		now:          time.Now,
		stopCh:       make(chan struct{}),
		logger:       logger.Get().Named("aggregator"),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Restore seeds participant state from persisted records. Called once
// before the aggregator is shared; not guarded.
func (a *Aggregator) Restore(participants []model.Participant) {
	for _, p := range participants {
		cp := p
		a.participants[p.Handle] = &cp
	}
}

// Ingest validates one event, credits its points to the participant and
// appends it to the event log. A malformed event yields ErrMalformedEvent;
// callers log and discard it without stopping the stream.
func (a *Aggregator) Ingest(ctx context.Context, ev model.InteractionEvent) error {
	if err := validate(ev); err != nil {
		return err
	}

	earned := a.table.Value(ev.Kind, ev.Magnitude)

	a.mu.Lock()
	p, ok := a.participants[ev.Handle]
	if !ok {
		p = &model.Participant{Handle: ev.Handle}
		a.participants[ev.Handle] = p
		metrics.UpdateParticipantCount(len(a.participants))
	}
	p.Points += earned
	p.LastSeen = a.now()
	snapshot := *p
	a.mu.Unlock()

	if a.store != nil {
		if err := a.store.SaveParticipant(ctx, snapshot); err != nil {
			metrics.RecordErrorByComponent("aggregator", "participant_persist")
			a.logger.Warn(ctx, "participant persist failed",
				logger.String("handle", ev.Handle), logger.Error(err))
		}
	}
	if a.eventLog != nil {
		if err := a.eventLog.AppendEvent(ctx, ev); err != nil {
			metrics.RecordErrorByComponent("aggregator", "event_log")
			a.logger.Warn(ctx, "event log append failed",
				logger.String("eventID", ev.EventID), logger.Error(err))
		}
	}

	return nil
}

func validate(ev model.InteractionEvent) error {
	if ev.Handle == "" {
		return fmt.Errorf("missing handle: %w", ErrMalformedEvent)
	}
	switch ev.Kind {
	case model.KindJoin, model.KindReaction, model.KindComment, model.KindShare,
		model.KindFollow, model.KindSubscribe, model.KindGift:
	default:
		return fmt.Errorf("unknown kind %q: %w", ev.Kind, ErrMalformedEvent)
	}
	if ev.Kind == model.KindGift && ev.Magnitude <= 0 {
		return fmt.Errorf("gift without magnitude: %w", ErrMalformedEvent)
	}
	return nil
}

// LinkParticipant associates a handle with an entry owner. The participant
// is created on first sight, so linking may precede any interaction.
func (a *Aggregator) LinkParticipant(ctx context.Context, handle, ownerID string) error {
	if handle == "" || ownerID == "" {
		return fmt.Errorf("link %q to %q: %w", handle, ownerID, ErrMalformedEvent)
	}

	a.mu.Lock()
	p, ok := a.participants[handle]
	if !ok {
		p = &model.Participant{Handle: handle, LastSeen: a.now()}
		a.participants[handle] = p
		metrics.UpdateParticipantCount(len(a.participants))
	}
	p.OwnerID = ownerID
	snapshot := *p
	a.mu.Unlock()

	if a.store != nil {
		if err := a.store.SaveParticipant(ctx, snapshot); err != nil {
			return fmt.Errorf("persist link for %s: %w", handle, err)
		}
	}
	return nil
}

// OwnerOf returns the owner linked to a handle, if any.
func (a *Aggregator) OwnerOf(handle string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.participants[handle]
	if !ok || p.OwnerID == "" {
		return "", false
	}
	return p.OwnerID, true
}

// Points returns a participant's current total.
func (a *Aggregator) Points(handle string) (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.participants[handle]
	if !ok {
		return 0, false
	}
	return p.Points, true
}

// ResetOwner zeroes the points of every participant linked to owner,
// returning how many were reset. Called when a free-tier entry is served,
// enforcing rotation fairness.
func (a *Aggregator) ResetOwner(ctx context.Context, ownerID string) int {
	a.mu.Lock()
	var reset []model.Participant
	for _, p := range a.participants {
		if p.OwnerID == ownerID && p.Points != 0 {
			p.Points = 0
			reset = append(reset, *p)
		}
	}
	a.mu.Unlock()

	a.persistAll(ctx, reset)
	return len(reset)
}

// ResetParticipant zeroes one participant's points.
func (a *Aggregator) ResetParticipant(ctx context.Context, handle string) error {
	a.mu.Lock()
	p, ok := a.participants[handle]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("reset %s: %w", handle, ErrUnknownParticipant)
	}
	p.Points = 0
	snapshot := *p
	a.mu.Unlock()

	a.persistAll(ctx, []model.Participant{snapshot})
	return nil
}

// TotalsByOwner sums points per linked owner across all participants.
func (a *Aggregator) TotalsByOwner() map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	totals := make(map[string]float64)
	for _, p := range a.participants {
		if p.OwnerID != "" {
			totals[p.OwnerID] += p.Points
		}
	}
	return totals
}

// Sync copies the current totals onto active entries. The sync hook fires
// only when at least one entry score changed.
func (a *Aggregator) Sync(ctx context.Context) int {
	start := time.Now()
	changed := a.syncer.SyncScores(ctx, a.TotalsByOwner())
	metrics.RecordSyncDuration(float64(time.Since(start).Milliseconds()))
	if changed > 0 && a.syncHook != nil {
		a.syncHook(ctx, changed)
	}
	return changed
}

// Start launches the periodic sync loop.
func (a *Aggregator) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.syncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-a.stopCh:
				return
			case <-ticker.C:
				a.Sync(ctx)
			}
		}
	}()
}

// Stop shuts down the sync loop.
func (a *Aggregator) Stop() {
	select {
	case <-a.stopCh:
	default:
		close(a.stopCh)
	}
	a.wg.Wait()
}

func (a *Aggregator) persistAll(ctx context.Context, participants []model.Participant) {
	if a.store == nil {
		return
	}
	for _, p := range participants {
		if err := a.store.SaveParticipant(ctx, p); err != nil {
			metrics.RecordErrorByComponent("aggregator", "participant_persist")
			a.logger.Warn(ctx, "participant persist failed",
				logger.String("handle", p.Handle), logger.Error(err))
		}
	}
}
