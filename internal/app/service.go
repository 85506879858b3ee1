// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	eventqueue "github.com/okian/requestline/internal/adapters/mq/queue"
	workerpool "github.com/okian/requestline/internal/adapters/mq/worker"
	"github.com/okian/requestline/internal/adapters/repository"
	"github.com/okian/requestline/internal/adapters/sqlite"
	"github.com/okian/requestline/internal/aggregator"
	"github.com/okian/requestline/internal/domain/dedupe"
	"github.com/okian/requestline/internal/domain/model"
	"github.com/okian/requestline/internal/live"
	"github.com/okian/requestline/internal/notify"
	"github.com/okian/requestline/internal/promoter"
	"github.com/okian/requestline/pkg/logger"
	"github.com/okian/requestline/pkg/metrics"
)

// Settings keys persisted in the database.
const settingSubmissionsOpen = "submissions_open"

// Service wires the entry store, aggregator, promoter, live tracker and
// notifier into the operations the HTTP API exposes.
type Service struct {
	mu sync.RWMutex

	// Core components
	db       *sqlite.Store
	store    *repository.MemoryStore
	agg      *aggregator.Aggregator
	promoter *promoter.Promoter
	deduper  dedupe.Deduper
	queue    *eventqueue.InMemoryQueue
	pool     *workerpool.Pool
	notifier *notify.Registry
	tracker  *live.Tracker
	source   live.Source

	// Configuration
	dbPath         string
	backupDir      string
	backupInterval time.Duration
	workerCount    int
	queueSize      int
	dedupeSize     int
	syncInterval   time.Duration
	feedURL        string

	// State
	started         bool
	submissionsOpen bool
	stopCh          chan struct{}
	wg              sync.WaitGroup

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDBPath sets the SQLite database file.
func WithDBPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.dbPath = path
		}
	}
}

// WithBackupDir sets the directory receiving periodic database snapshots.
// An empty directory disables backups.
func WithBackupDir(dir string) Option {
	return func(s *Service) {
		s.backupDir = dir
	}
}

// WithBackupInterval sets the time between database snapshots.
func WithBackupInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.backupInterval = interval
		}
	}
}

// WithWorkerCount sets the number of ingest workers. More than one worker
// gives up stream event ordering.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the event queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithSyncInterval sets the engagement score sync interval.
func WithSyncInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.syncInterval = interval
		}
	}
}

// WithFeedURL sets the websocket endpoint of the live event feed.
func WithFeedURL(url string) Option {
	return func(s *Service) {
		if url != "" {
			s.feedURL = url
		}
	}
}

// WithSource overrides the live event source. Used in tests.
func WithSource(src live.Source) Option {
	return func(s *Service) {
		if src != nil {
			s.source = src
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		dbPath:          "requestline.db",
		backupDir:       "",
		backupInterval:  time.Hour,
		workerCount:     1,
		queueSize:       10000,
		dedupeSize:      50000,
		syncInterval:    15 * time.Second,
		feedURL:         "ws://localhost:9081/feed",
		submissionsOpen: true,
		stopCh:          make(chan struct{}),
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	// Initialize logger if not already set
	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting request queue service...")

	db, err := sqlite.Open(s.dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	s.db = db

	s.notifier = notify.NewRegistry()
	s.store = repository.NewMemoryStore(repository.WithPersister(db))
	s.agg = aggregator.New(s.store,
		aggregator.WithEventLog(db),
		aggregator.WithParticipantStore(db),
		aggregator.WithSyncInterval(s.syncInterval),
		aggregator.WithSyncHook(func(ctx context.Context, _ int) {
			s.notifier.Notify(ctx, notify.ReasonScoreSync)
		}),
		aggregator.WithLogger(s.logger.Named("aggregator")),
	)
	s.promoter = promoter.New(s.store, s.agg,
		promoter.WithLogger(s.logger.Named("promoter")),
	)
	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.queue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
	)

	if err := s.restore(ctx); err != nil {
		_ = db.Close()
		return err
	}

	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.agg, s.promoter)
	s.pool.Start(ctx)
	s.agg.Start(ctx)

	if s.source == nil {
		s.source = live.NewWebsocketSource(s.feedURL)
	}
	s.tracker = live.New(s.source, s.ingress,
		live.WithRecorder(s.db),
		live.WithLogger(s.logger.Named("live")),
	)

	s.wg.Add(1)
	go s.closureLoop()

	if s.backupDir != "" {
		s.wg.Add(1)
		go s.backupLoop()
	}

	s.started = true
	s.logger.Info(ctx, "request queue service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("db", s.dbPath),
	)

	return nil
}

// restore loads durable state into the in-memory components.
func (s *Service) restore(ctx context.Context) error {
	entries, err := s.db.LoadEntries(ctx)
	if err != nil {
		return fmt.Errorf("restore entries: %w", err)
	}
	s.store.Restore(entries)

	participants, err := s.db.LoadParticipants(ctx)
	if err != nil {
		return fmt.Errorf("restore participants: %w", err)
	}
	s.agg.Restore(participants)

	open, err := s.db.GetSetting(ctx, settingSubmissionsOpen, "1")
	if err != nil {
		return fmt.Errorf("restore settings: %w", err)
	}
	s.submissionsOpen = open == "1"

	s.logger.Info(ctx, "state restored",
		logger.Int("entries", len(entries)),
		logger.Int("participants", len(participants)),
		logger.Bool("submissionsOpen", s.submissionsOpen),
	)
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := context.Background()
	s.logger.Info(ctx, "stopping request queue service...")

	if s.tracker != nil {
		_ = s.tracker.Disconnect(ctx)
	}

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}

	if s.pool != nil {
		s.pool.Stop()
	}
	if s.agg != nil {
		// Flush scores and participant state before closing the database.
		s.agg.Sync(ctx)
		s.agg.Stop()
	}
	if s.queue != nil {
		_ = s.queue.Close()
	}

	s.wg.Wait()

	if s.db != nil {
		_ = s.db.Close()
	}

	s.started = false
	s.logger.Info(ctx, "request queue service stopped")
}

// ingress is the live tracker's sink. Duplicate events are dropped here so
// reconnect replays never double-credit points.
func (s *Service) ingress(ctx context.Context, ev model.InteractionEvent) {
	if ev.EventID != "" && s.deduper.SeenAndRecord(ctx, ev.EventID) {
		metrics.RecordEventDuplicate()
		s.logger.Debug(ctx, "duplicate event dropped",
			logger.String("eventID", ev.EventID),
		)
		return
	}

	if ok := s.queue.Enqueue(ctx, ev); !ok {
		// Allow a retry of this event id on the next delivery.
		if ev.EventID != "" {
			s.deduper.Unrecord(ctx, ev.EventID)
		}
		metrics.RecordErrorByComponent("service", "enqueue_full")
		s.logger.Warn(ctx, "event queue full, dropping event",
			logger.String("eventID", ev.EventID),
			logger.String("kind", string(ev.Kind)),
		)
		return
	}
	metrics.UpdateQueueSize(s.queue.Len(ctx))
}

// closureLoop turns tracker closures into session summaries.
func (s *Service) closureLoop() {
	defer s.wg.Done()

	ctx := context.Background()
	for {
		select {
		case <-s.stopCh:
			return
		case c, ok := <-s.tracker.Closures():
			if !ok {
				return
			}
			s.summarize(ctx, c)
		}
	}
}

// summarize logs what a finished session produced and wakes subscribers.
func (s *Service) summarize(ctx context.Context, c live.Closure) {
	events, err := s.db.CountSessionEvents(ctx, c.SessionID)
	if err != nil {
		s.logger.Warn(ctx, "session event count failed",
			logger.String("sessionID", c.SessionID), logger.Error(err))
	}

	var duration time.Duration
	if sess, err := s.db.GetSession(ctx, c.SessionID); err == nil && !sess.EndedAt.IsZero() {
		duration = sess.EndedAt.Sub(sess.StartedAt)
	}

	remaining := len(s.store.OrderedActive(ctx, nil))

	s.logger.Info(ctx, "session closed",
		logger.String("sessionID", c.SessionID),
		logger.String("host", c.Host),
		logger.Bool("planned", c.Planned),
		logger.Duration("duration", duration),
		logger.Int("events", events),
		logger.Int("entriesRemaining", remaining),
	)
	s.notifier.Notify(ctx, notify.ReasonSessionClosed)
}

// backupLoop snapshots the database on a fixed interval.
func (s *Service) backupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.backupInterval)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			dest := filepath.Join(s.backupDir,
				fmt.Sprintf("requestline-%s.db", now.UTC().Format("20060102-150405")))
			if err := s.db.Backup(ctx, dest); err != nil {
				metrics.RecordErrorByComponent("service", "backup")
				s.logger.Error(ctx, "database backup failed",
					logger.String("dest", dest), logger.Error(err))
				continue
			}
			s.logger.Info(ctx, "database backup written", logger.String("dest", dest))
		}
	}
}

// Submit places a new request entry in the queue.
func (s *Service) Submit(ctx context.Context, ownerID, artist, title, link string, tier model.Tier) (model.Entry, error) {
	s.mu.RLock()
	open := s.submissionsOpen
	started := s.started
	s.mu.RUnlock()

	if !started {
		return model.Entry{}, ErrNotStarted
	}
	if !open {
		return model.Entry{}, ErrSubmissionsClosed
	}

	e := model.Entry{
		OwnerID: ownerID,
		Artist:  artist,
		Title:   title,
		Link:    link,
		Tier:    tier,
	}
	if tier == model.TierFree {
		// Seed the cached score so the entry sorts correctly before the
		// next periodic sync.
		e.Score = s.agg.TotalsByOwner()[ownerID]
	}

	created, err := s.store.Submit(ctx, e)
	if err != nil {
		return model.Entry{}, err
	}
	s.notifier.Notify(ctx, notify.ReasonSubmit)
	return created, nil
}

// Move transfers an entry to another tier.
func (s *Service) Move(ctx context.Context, id string, target model.Tier) error {
	if err := s.store.Move(ctx, id, target); err != nil {
		return err
	}
	s.notifier.Notify(ctx, notify.ReasonMove)
	return nil
}

// Remove withdraws an entry from the queue.
func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.store.Remove(ctx, id); err != nil {
		return err
	}
	s.notifier.Notify(ctx, notify.ReasonRemove)
	return nil
}

// TakeNext serves the highest-priority entry. Serving a free-tier entry
// resets its owner's engagement points.
func (s *Service) TakeNext(ctx context.Context) (*model.Entry, error) {
	e, err := s.store.TakeNext(ctx)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, nil
	}

	if e.Tier == model.TierFree {
		if n := s.agg.ResetOwner(ctx, e.OwnerID); n > 0 {
			s.agg.Sync(ctx)
		}
	}
	s.notifier.Notify(ctx, notify.ReasonTakeNext)
	return e, nil
}

// Entry returns a single entry by id.
func (s *Service) Entry(ctx context.Context, id string) (model.Entry, error) {
	return s.store.Get(ctx, id)
}

// Queue returns active entries in service order. A nil tier means the
// global order across all tiers; limit <= 0 means no cap.
func (s *Service) Queue(ctx context.Context, tier *model.Tier, limit int) []model.Entry {
	entries := s.store.OrderedActive(ctx, tier)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// SetPendingPromotion flags or clears a free entry's promotion reservation.
func (s *Service) SetPendingPromotion(ctx context.Context, id string, pending bool) error {
	return s.store.SetPendingPromotion(ctx, id, pending)
}

// LinkParticipant binds a stream handle to a request owner.
func (s *Service) LinkParticipant(ctx context.Context, handle, ownerID string) error {
	return s.agg.LinkParticipant(ctx, handle, ownerID)
}

// ParticipantPoints reports the current points for a handle.
func (s *Service) ParticipantPoints(ctx context.Context, handle string) (float64, bool) {
	return s.agg.Points(handle)
}

// ResetParticipant zeroes a single participant's points.
func (s *Service) ResetParticipant(ctx context.Context, handle string) error {
	if err := s.agg.ResetParticipant(ctx, handle); err != nil {
		return err
	}
	s.agg.Sync(ctx)
	return nil
}

// SubmissionsOpen reports whether new submissions are accepted.
func (s *Service) SubmissionsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.submissionsOpen
}

// SetSubmissionsOpen opens or closes the submission window. The flag is
// durable across restarts.
func (s *Service) SetSubmissionsOpen(ctx context.Context, open bool) error {
	val := "0"
	if open {
		val = "1"
	}
	if err := s.db.SetSetting(ctx, settingSubmissionsOpen, val); err != nil {
		return err
	}

	s.mu.Lock()
	s.submissionsOpen = open
	s.mu.Unlock()

	s.logger.Info(ctx, "submission window changed", logger.Bool("open", open))
	return nil
}

// ClearFree removes every active free-tier entry.
func (s *Service) ClearFree(ctx context.Context) (int, error) {
	n, err := s.store.ClearFree(ctx)
	if err != nil {
		return n, err
	}
	if n > 0 {
		s.notifier.Notify(ctx, notify.ReasonClearFree)
	}
	return n, nil
}

// OnUpdate registers a queue update callback. Registration is idempotent
// per id.
func (s *Service) OnUpdate(id string, cb notify.Callback) {
	s.notifier.Register(id, cb)
}

// OffUpdate removes a previously registered callback.
func (s *Service) OffUpdate(id string) {
	s.notifier.Unregister(id)
}

// ConnectLive starts tracking the given host's live session. The tracking
// loop outlives the caller's request context.
func (s *Service) ConnectLive(ctx context.Context, host string) error {
	return s.tracker.Connect(context.WithoutCancel(ctx), host)
}

// DisconnectLive ends live tracking. The current session closes as planned.
func (s *Service) DisconnectLive(ctx context.Context) error {
	return s.tracker.Disconnect(ctx)
}

// LiveState reports the tracker state and the active session, if any.
func (s *Service) LiveState() (string, *model.Session) {
	st := s.tracker.State()
	if sess, ok := s.tracker.Session(); ok {
		return st.String(), &sess
	}
	return st.String(), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":         s.started,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"dedupeSize":      s.dedupeSize,
		"submissionsOpen": s.submissionsOpen,
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		active := s.store.Count(ctx)

		stats["queueLength"] = queueLen
		stats["activeEntries"] = active
		stats["liveState"] = s.tracker.State().String()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}

// Size returns the current number of entries in the deduper.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}
