package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	service "github.com/okian/requestline/internal/app"
	"github.com/okian/requestline/internal/domain/model"
	"github.com/okian/requestline/internal/live"
	"github.com/okian/requestline/internal/notify"
	"github.com/okian/requestline/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// fakeStream feeds scripted events into the service's live ingress.
type fakeStream struct {
	events chan model.InteractionEvent
	once   sync.Once
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan model.InteractionEvent, 64)}
}

func (s *fakeStream) Events() <-chan model.InteractionEvent { return s.events }

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

type fakeSource struct {
	mu      sync.Mutex
	streams []*fakeStream
}

func (f *fakeSource) Connect(ctx context.Context, host string) (live.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := newFakeStream()
	f.streams = append(f.streams, st)
	return st, nil
}

func (f *fakeSource) lastStream() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}

func startService(t *testing.T, opts ...service.Option) *service.Service {
	t.Helper()

	base := []service.Option{
		service.WithDBPath(filepath.Join(t.TempDir(), "requestline.db")),
		service.WithSource(&fakeSource{}),
		service.WithSyncInterval(time.Hour),
	}
	svc := service.New(append(base, opts...)...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc
}

func TestSubmitFlow(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		svc := startService(t)

		Convey("When an entry is submitted", func() {
			created, err := svc.Submit(ctx, "owner-1", "The Midnight", "Vampires", "", model.TierFree)

			Convey("Then it lands active in the queue", func() {
				So(err, ShouldBeNil)
				So(created.ID, ShouldNotBeEmpty)
				So(created.Status, ShouldEqual, model.StatusActive)

				entries := svc.Queue(ctx, nil, 0)
				So(len(entries), ShouldEqual, 1)
			})

			Convey("And it can be fetched, moved and removed", func() {
				got, err := svc.Entry(ctx, created.ID)
				So(err, ShouldBeNil)
				So(got.Title, ShouldEqual, "Vampires")

				So(svc.Move(ctx, created.ID, model.TierSkip25), ShouldBeNil)
				got, err = svc.Entry(ctx, created.ID)
				So(err, ShouldBeNil)
				So(got.Tier, ShouldEqual, model.TierSkip25)

				So(svc.Remove(ctx, created.ID), ShouldBeNil)
				So(len(svc.Queue(ctx, nil, 0)), ShouldEqual, 0)
			})
		})

		Convey("When submissions are closed", func() {
			So(svc.SetSubmissionsOpen(ctx, false), ShouldBeNil)
			So(svc.SubmissionsOpen(), ShouldBeFalse)

			_, err := svc.Submit(ctx, "owner-1", "a", "b", "", model.TierFree)

			Convey("Then new entries are rejected until reopened", func() {
				So(errors.Is(err, service.ErrSubmissionsClosed), ShouldBeTrue)

				So(svc.SetSubmissionsOpen(ctx, true), ShouldBeNil)
				_, err := svc.Submit(ctx, "owner-1", "a", "b", "", model.TierFree)
				So(err, ShouldBeNil)
			})
		})

		Convey("When a service was never started", func() {
			cold := service.New()
			_, err := cold.Submit(ctx, "owner-1", "a", "b", "", model.TierFree)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})
	})
}

func TestTakeNextResetsFreeOwner(t *testing.T) {
	Convey("Given a free entry backed by engagement points", t, func() {
		ctx := context.Background()
		svc := startService(t)

		So(svc.LinkParticipant(ctx, "mira_song", "owner-1"), ShouldBeNil)
		_, err := svc.Submit(ctx, "owner-1", "artist", "title", "", model.TierFree)
		So(err, ShouldBeNil)

		Convey("When the entry is served", func() {
			served, err := svc.TakeNext(ctx)
			So(err, ShouldBeNil)
			So(served, ShouldNotBeNil)
			So(served.Status, ShouldEqual, model.StatusServed)

			Convey("Then the owner's points restart at zero", func() {
				pts, ok := svc.ParticipantPoints(ctx, "mira_song")
				So(ok, ShouldBeTrue)
				So(pts, ShouldEqual, 0)
			})
		})

		Convey("When the queue is empty", func() {
			_, err := svc.TakeNext(ctx)
			So(err, ShouldBeNil)

			served, err := svc.TakeNext(ctx)
			So(err, ShouldBeNil)
			So(served, ShouldBeNil)
		})
	})
}

func TestClearFree(t *testing.T) {
	Convey("Given free and paid entries", t, func() {
		ctx := context.Background()
		svc := startService(t)

		_, err := svc.Submit(ctx, "owner-1", "a", "b", "", model.TierFree)
		So(err, ShouldBeNil)
		_, err = svc.Submit(ctx, "owner-2", "c", "d", "", model.TierFree)
		So(err, ShouldBeNil)
		_, err = svc.Submit(ctx, "owner-3", "e", "f", "", model.TierSkip5)
		So(err, ShouldBeNil)

		Convey("When the free line is cleared", func() {
			n, err := svc.ClearFree(ctx)

			Convey("Then only the paid entry remains", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
				So(len(svc.Queue(ctx, nil, 0)), ShouldEqual, 1)
			})
		})
	})
}

func TestUpdateNotifications(t *testing.T) {
	Convey("Given a subscribed overlay", t, func() {
		ctx := context.Background()
		svc := startService(t)

		var mu sync.Mutex
		var reasons []notify.Reason
		svc.OnUpdate("overlay", func(ctx context.Context, reason notify.Reason) {
			mu.Lock()
			reasons = append(reasons, reason)
			mu.Unlock()
		})

		Convey("When queue mutations happen", func() {
			created, err := svc.Submit(ctx, "owner-1", "a", "b", "", model.TierFree)
			So(err, ShouldBeNil)
			So(svc.Remove(ctx, created.ID), ShouldBeNil)

			Convey("Then each mutation produced a notification", func() {
				mu.Lock()
				defer mu.Unlock()
				So(reasons, ShouldResemble, []notify.Reason{notify.ReasonSubmit, notify.ReasonRemove})
			})
		})

		Convey("When the overlay unsubscribes", func() {
			svc.OffUpdate("overlay")
			_, err := svc.Submit(ctx, "owner-1", "a", "b", "", model.TierFree)
			So(err, ShouldBeNil)

			mu.Lock()
			defer mu.Unlock()
			So(reasons, ShouldBeEmpty)
		})
	})
}

func TestLiveIngestion(t *testing.T) {
	Convey("Given a service connected to a live session", t, func() {
		ctx := context.Background()
		source := &fakeSource{}
		svc := startService(t, service.WithSource(source))

		So(svc.ConnectLive(ctx, "mira_song"), ShouldBeNil)

		deadline := time.Now().Add(time.Second)
		for source.lastStream() == nil && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		stream := source.lastStream()
		So(stream, ShouldNotBeNil)

		state, _ := svc.LiveState()
		So(state, ShouldEqual, "connected")

		Convey("When interaction events stream in", func() {
			stream.events <- model.InteractionEvent{
				EventID: "ev-1", Handle: "viewer_a", Kind: model.KindSubscribe,
			}
			// Reconnect replays deliver the same event id again.
			stream.events <- model.InteractionEvent{
				EventID: "ev-1", Handle: "viewer_a", Kind: model.KindSubscribe,
			}

			waitUntil := time.Now().Add(time.Second)
			for time.Now().Before(waitUntil) {
				if pts, ok := svc.ParticipantPoints(ctx, "viewer_a"); ok && pts > 0 {
					break
				}
				time.Sleep(5 * time.Millisecond)
			}

			Convey("Then points are credited exactly once", func() {
				pts, ok := svc.ParticipantPoints(ctx, "viewer_a")
				So(ok, ShouldBeTrue)
				So(pts, ShouldEqual, 25)
			})
		})

		Convey("When live tracking is disconnected", func() {
			So(svc.DisconnectLive(ctx), ShouldBeNil)

			deadline := time.Now().Add(time.Second)
			for time.Now().Before(deadline) {
				state, _ := svc.LiveState()
				if state == "disconnected" {
					break
				}
				time.Sleep(5 * time.Millisecond)
			}

			state, sess := svc.LiveState()
			So(state, ShouldEqual, "disconnected")
			So(sess, ShouldBeNil)

			Convey("And disconnecting again is rejected", func() {
				So(errors.Is(svc.DisconnectLive(ctx), live.ErrNotConnected), ShouldBeTrue)
			})
		})
	})
}

func TestDurability(t *testing.T) {
	Convey("Given a service that wrote state and stopped", t, func() {
		ctx := context.Background()
		dbPath := filepath.Join(t.TempDir(), "requestline.db")

		svc := service.New(
			service.WithDBPath(dbPath),
			service.WithSource(&fakeSource{}),
			service.WithSyncInterval(time.Hour),
		)
		So(svc.Start(ctx), ShouldBeNil)

		created, err := svc.Submit(ctx, "owner-1", "The Midnight", "Vampires", "", model.TierSkip10)
		So(err, ShouldBeNil)
		So(svc.LinkParticipant(ctx, "mira_song", "owner-1"), ShouldBeNil)
		So(svc.SetSubmissionsOpen(ctx, false), ShouldBeNil)
		svc.Stop()

		Convey("When a fresh service opens the same database", func() {
			revived := service.New(
				service.WithDBPath(dbPath),
				service.WithSource(&fakeSource{}),
				service.WithSyncInterval(time.Hour),
			)
			So(revived.Start(ctx), ShouldBeNil)
			defer revived.Stop()

			Convey("Then entries, links and settings are restored", func() {
				got, err := revived.Entry(ctx, created.ID)
				So(err, ShouldBeNil)
				So(got.Tier, ShouldEqual, model.TierSkip10)

				_, ok := revived.ParticipantPoints(ctx, "mira_song")
				So(ok, ShouldBeTrue)

				So(revived.SubmissionsOpen(), ShouldBeFalse)
			})
		})
	})
}

func TestGetStats(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := startService(t)

		Convey("When stats are gathered", func() {
			stats := svc.GetStats()

			Convey("Then the monitoring keys are present", func() {
				So(stats["started"], ShouldBeTrue)
				So(stats, ShouldContainKey, "queueLength")
				So(stats, ShouldContainKey, "activeEntries")
				So(stats, ShouldContainKey, "liveState")
				So(stats, ShouldContainKey, "submissionsOpen")
			})
		})
	})
}
