// Package live manages the connection lifecycle to the external
// interaction source: Disconnected -> Connecting -> Connected and back,
// with a bounded, cancellable retry loop while connecting.
package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/requestline/internal/domain/model"
	"github.com/okian/requestline/pkg/logger"
	"github.com/okian/requestline/pkg/metrics"
)

// State is the tracker's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Retry policy: a short interval for the first few attempts, then a longer
// one until cancelled or connected.
const (
	defaultRetryShort    = 2 * time.Second
	defaultRetryLong     = 30 * time.Second
	defaultShortAttempts = 5
	closureBuffer        = 16
)

// Closure signals the end of a session. Unplanned closures are
// distinguished so downstream summary logic never needs timing heuristics.
type Closure struct {
	SessionID string
	Host      string
	Planned   bool
}

// SessionRecorder persists session lifecycle boundaries.
type SessionRecorder interface {
	CreateSession(ctx context.Context, sess model.Session) error
	CloseSession(ctx context.Context, id string, endedAt time.Time, unplanned bool) error
}

// Sink receives every event read from the stream, stamped with the
// session id.
type Sink func(ctx context.Context, ev model.InteractionEvent)

// Tracker drives the connection state machine.
type Tracker struct {
	mu      sync.Mutex
	state   State
	session *model.Session
	cancel  context.CancelFunc

	source   Source
	recorder SessionRecorder
	sink     Sink
	closures chan Closure

	retryShort    time.Duration
	retryLong     time.Duration
	shortAttempts int
	now           func() time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithRetryPolicy overrides the reconnect intervals and the number of
// attempts served at the short interval.
func WithRetryPolicy(short, long time.Duration, shortAttempts int) Option {
	return func(t *Tracker) {
		if short > 0 && long >= short && shortAttempts > 0 {
			t.retryShort = short
			t.retryLong = long
			t.shortAttempts = shortAttempts
		}
	}
}

// WithRecorder attaches durable session storage.
func WithRecorder(r SessionRecorder) Option {
	return func(t *Tracker) {
		t.recorder = r
	}
}

// WithLogger sets a custom logger for the tracker.
func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// New constructs a Tracker with configuration options.
func New(source Source, sink Sink, opts ...Option) *Tracker {
	t := &Tracker{
		source:        source,
		sink:          sink,
		closures:      make(chan Closure, closureBuffer),
		retryShort:    defaultRetryShort,
		retryLong:     defaultRetryLong,
		shortAttempts: defaultShortAttempts,
		now:           time.Now,
		logger:        logger.Get().Named("live"),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// State returns the current connection state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Session returns a copy of the active session, if any.
func (t *Tracker) Session() (model.Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return model.Session{}, false
	}
	return *t.session, true
}

// Closures delivers session-end signals to downstream summary logic.
func (t *Tracker) Closures() <-chan Closure {
	return t.closures
}

// Connect requests a transition to Connecting and launches the retry loop.
// The loop runs until connected or cancelled; Disconnect cancels it.
func (t *Tracker) Connect(ctx context.Context, host string) error {
	t.mu.Lock()
	if t.state != StateDisconnected {
		t.mu.Unlock()
		return fmt.Errorf("connect to %s: %w", host, ErrAlreadyConnected)
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.setStateLocked(StateConnecting)
	t.mu.Unlock()

	go t.run(runCtx, host)
	return nil
}

// Disconnect cancels the retry loop or closes the active session. The
// resulting closure is tagged planned.
func (t *Tracker) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	if t.state == StateDisconnected || t.cancel == nil {
		t.mu.Unlock()
		return ErrNotConnected
	}
	cancel := t.cancel
	t.mu.Unlock()

	cancel()
	return nil
}

// run is the connection loop: bounded retries while Connecting, then the
// event pump while Connected. Cancellation is honored between any two
// retry attempts and at every pump iteration.
func (t *Tracker) run(ctx context.Context, host string) {
	attempt := 0
	for {
		stream, err := t.source.Connect(ctx, host)
		if err == nil {
			t.pump(ctx, host, stream)
			return
		}
		if ctx.Err() != nil {
			t.logger.Info(ctx, "connect cancelled", logger.String("host", host))
			t.settle(StateDisconnected)
			return
		}

		attempt++
		delay := t.retryShort
		if attempt >= t.shortAttempts {
			delay = t.retryLong
		}
		metrics.RecordConnectRetry()
		t.logger.Warn(ctx, "connect attempt failed; retrying",
			logger.String("host", host),
			logger.Int("attempt", attempt),
			logger.Any("retry_in", delay),
			logger.Error(fmt.Errorf("%w: %w", ErrConnect, err)),
		)

		select {
		case <-ctx.Done():
			t.settle(StateDisconnected)
			return
		case <-time.After(delay):
		}
	}
}

// pump opens a session and forwards stream events into the sink until the
// link drops (unplanned) or the caller disconnects (planned).
func (t *Tracker) pump(ctx context.Context, host string, stream Stream) {
	sess := model.Session{
		ID:         uuid.New().String(),
		HostHandle: host,
		StartedAt:  t.now(),
	}

	if t.recorder != nil {
		if err := t.recorder.CreateSession(ctx, sess); err != nil {
			metrics.RecordErrorByComponent("live", "session_persist")
			t.logger.Warn(ctx, "session persist failed",
				logger.String("sessionID", sess.ID), logger.Error(err))
		}
	}

	t.mu.Lock()
	t.session = &sess
	t.setStateLocked(StateConnected)
	t.mu.Unlock()

	t.logger.Info(ctx, "connected to live source",
		logger.String("host", host), logger.String("sessionID", sess.ID))

	planned := false
loop:
	for {
		select {
		case <-ctx.Done():
			planned = true
			break loop
		case ev, ok := <-stream.Events():
			if !ok {
				break loop
			}
			ev.SessionID = sess.ID
			if ev.TS.IsZero() {
				ev.TS = t.now()
			}
			t.sink(ctx, ev)
		}
	}

	if err := stream.Close(); err != nil {
		t.logger.Debug(ctx, "stream close", logger.Error(err))
	}

	endedAt := t.now()
	if t.recorder != nil {
		// ctx may already be cancelled on a planned disconnect; the
		// close stamp still has to land.
		if err := t.recorder.CloseSession(context.WithoutCancel(ctx), sess.ID, endedAt, !planned); err != nil {
			metrics.RecordErrorByComponent("live", "session_persist")
			t.logger.Warn(ctx, "session close persist failed",
				logger.String("sessionID", sess.ID), logger.Error(err))
		}
	}

	t.mu.Lock()
	t.session = nil
	t.setStateLocked(StateDisconnected)
	t.cancel = nil
	t.mu.Unlock()

	t.logger.Info(ctx, "disconnected from live source",
		logger.String("host", host),
		logger.String("sessionID", sess.ID),
		logger.Any("planned", planned),
	)

	select {
	case t.closures <- Closure{SessionID: sess.ID, Host: host, Planned: planned}:
	default:
		t.logger.Warn(ctx, "closure channel full; dropping signal",
			logger.String("sessionID", sess.ID))
	}
}

func (t *Tracker) settle(s State) {
	t.mu.Lock()
	t.setStateLocked(s)
	t.cancel = nil
	t.mu.Unlock()
}

func (t *Tracker) setStateLocked(s State) {
	t.state = s
	metrics.UpdateSessionState(s.String())
}
