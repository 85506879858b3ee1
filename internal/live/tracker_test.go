package live_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/requestline/internal/domain/model"
	"github.com/okian/requestline/internal/live"
	"github.com/okian/requestline/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fakeStream feeds canned events to the tracker's pump.
type fakeStream struct {
	events    chan model.InteractionEvent
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		events: make(chan model.InteractionEvent, 16),
		closed: make(chan struct{}),
	}
}

func (s *fakeStream) Events() <-chan model.InteractionEvent { return s.events }

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// drop simulates the external link going down.
func (s *fakeStream) drop() {
	close(s.events)
}

// fakeSource hands out streams, optionally failing the first attempts.
type fakeSource struct {
	mu       sync.Mutex
	failures int
	attempts int
	streams  []*fakeStream
}

func (f *fakeSource) Connect(ctx context.Context, host string) (live.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("upstream unavailable")
	}
	st := newFakeStream()
	f.streams = append(f.streams, st)
	return st, nil
}

func (f *fakeSource) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func (f *fakeSource) lastStream() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}

type recordedSession struct {
	sess      model.Session
	endedAt   time.Time
	unplanned bool
	closed    bool
}

type fakeRecorder struct {
	mu       sync.Mutex
	sessions map[string]*recordedSession
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{sessions: make(map[string]*recordedSession)}
}

func (r *fakeRecorder) CreateSession(ctx context.Context, sess model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID] = &recordedSession{sess: sess}
	return nil
}

func (r *fakeRecorder) CloseSession(ctx context.Context, id string, endedAt time.Time, unplanned bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.sessions[id]; ok {
		rec.endedAt = endedAt
		rec.unplanned = unplanned
		rec.closed = true
	}
	return nil
}

func (r *fakeRecorder) get(id string) (recordedSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[id]
	if !ok {
		return recordedSession{}, false
	}
	return *rec, true
}

func collectSink() (live.Sink, func() []model.InteractionEvent) {
	var mu sync.Mutex
	var events []model.InteractionEvent
	sink := func(ctx context.Context, ev model.InteractionEvent) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}
	return sink, func() []model.InteractionEvent {
		mu.Lock()
		defer mu.Unlock()
		return append([]model.InteractionEvent(nil), events...)
	}
}

func waitForState(t *live.Tracker, want live.State) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if t.State() == want {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return t.State() == want
}

func TestTrackerLifecycle(t *testing.T) {
	Convey("Given a tracker over a healthy source", t, func() {
		ctx := context.Background()
		source := &fakeSource{}
		sink, gotEvents := collectSink()
		recorder := newFakeRecorder()
		tracker := live.New(source, sink, live.WithRecorder(recorder))

		Convey("When it connects", func() {
			So(tracker.Connect(ctx, "mira_song"), ShouldBeNil)
			So(waitForState(tracker, live.StateConnected), ShouldBeTrue)

			sess, ok := tracker.Session()
			So(ok, ShouldBeTrue)
			So(sess.HostHandle, ShouldEqual, "mira_song")
			So(sess.Active(), ShouldBeTrue)

			Convey("And events flow through the stream", func() {
				source.lastStream().events <- model.InteractionEvent{
					EventID: "e1", Handle: "viewer", Kind: model.KindComment,
				}

				deadline := time.Now().Add(time.Second)
				for len(gotEvents()) == 0 && time.Now().Before(deadline) {
					time.Sleep(5 * time.Millisecond)
				}

				Convey("Then the sink sees them stamped with the session", func() {
					events := gotEvents()
					So(len(events), ShouldEqual, 1)
					So(events[0].SessionID, ShouldEqual, sess.ID)
					So(events[0].TS.IsZero(), ShouldBeFalse)
				})
			})

			Convey("And connecting again is rejected", func() {
				err := tracker.Connect(ctx, "mira_song")
				So(errors.Is(err, live.ErrAlreadyConnected), ShouldBeTrue)
			})

			Convey("And a caller disconnect closes the session as planned", func() {
				So(tracker.Disconnect(ctx), ShouldBeNil)

				var closure live.Closure
				select {
				case closure = <-tracker.Closures():
				case <-time.After(time.Second):
					t.Fatal("no closure delivered")
				}

				So(closure.SessionID, ShouldEqual, sess.ID)
				So(closure.Planned, ShouldBeTrue)
				So(waitForState(tracker, live.StateDisconnected), ShouldBeTrue)

				rec, ok := recorder.get(sess.ID)
				So(ok, ShouldBeTrue)
				So(rec.closed, ShouldBeTrue)
				So(rec.unplanned, ShouldBeFalse)

				Convey("Then a fresh connect opens a new session", func() {
					So(tracker.Connect(ctx, "mira_song"), ShouldBeNil)
					So(waitForState(tracker, live.StateConnected), ShouldBeTrue)

					next, ok := tracker.Session()
					So(ok, ShouldBeTrue)
					So(next.ID, ShouldNotEqual, sess.ID)
				})
			})

			Convey("And a dropped link closes the session as unplanned", func() {
				source.lastStream().drop()

				var closure live.Closure
				select {
				case closure = <-tracker.Closures():
				case <-time.After(time.Second):
					t.Fatal("no closure delivered")
				}

				So(closure.Planned, ShouldBeFalse)
				So(waitForState(tracker, live.StateDisconnected), ShouldBeTrue)

				rec, ok := recorder.get(sess.ID)
				So(ok, ShouldBeTrue)
				So(rec.unplanned, ShouldBeTrue)
			})
		})

		Convey("When disconnecting without a connection", func() {
			err := tracker.Disconnect(ctx)
			So(errors.Is(err, live.ErrNotConnected), ShouldBeTrue)
		})
	})
}

func TestTrackerRetry(t *testing.T) {
	Convey("Given a source that fails its first attempts", t, func() {
		ctx := context.Background()
		source := &fakeSource{failures: 3}
		sink, _ := collectSink()
		tracker := live.New(source, sink,
			live.WithRetryPolicy(5*time.Millisecond, 10*time.Millisecond, 2),
		)

		Convey("When the tracker connects", func() {
			So(tracker.Connect(ctx, "mira_song"), ShouldBeNil)

			Convey("Then it retries until the source comes up", func() {
				So(waitForState(tracker, live.StateConnected), ShouldBeTrue)
				So(source.attemptCount(), ShouldEqual, 4)
			})
		})
	})

	Convey("Given a source that never comes up", t, func() {
		ctx := context.Background()
		source := &fakeSource{failures: 1 << 30}
		sink, _ := collectSink()
		tracker := live.New(source, sink,
			live.WithRetryPolicy(5*time.Millisecond, 10*time.Millisecond, 2),
		)

		Convey("When the caller gives up mid-retry", func() {
			So(tracker.Connect(ctx, "mira_song"), ShouldBeNil)
			So(tracker.State(), ShouldEqual, live.StateConnecting)

			time.Sleep(20 * time.Millisecond)
			So(tracker.Disconnect(ctx), ShouldBeNil)

			Convey("Then the loop settles back to disconnected", func() {
				So(waitForState(tracker, live.StateDisconnected), ShouldBeTrue)
			})
		})
	})
}
