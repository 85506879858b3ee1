package simfeed

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/requestline/pkg/logger"
)

// Default server timing constants.
const (
	defaultEventRate    = 200 * time.Millisecond
	writeTimeout        = 5 * time.Second
	shutdownGracePeriod = 3 * time.Second
)

// Server streams synthetic interaction events to websocket clients. Each
// connection gets its own event stream for the host named in the query.
type Server struct {
	config   *Config
	upgrader websocket.Upgrader
	httpSrv  *http.Server

	mu    sync.Mutex
	stats Stats

	logger logger.Logger
}

// NewServer creates a feed server for the given configuration.
func NewServer(config *Config) *Server {
	if config.EventRate <= 0 {
		config.EventRate = defaultEventRate
	}
	if config.Path == "" {
		config.Path = "/feed"
	}
	return &Server{
		config: config,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.Named("simfeed"),
	}
}

// Stats returns a copy of the current feed statistics.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// ListenAndServe runs the websocket server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.handleFeed)

	s.httpSrv = &http.Server{
		Addr:              s.config.Addr,
		Handler:           mux,
		ReadHeaderTimeout: writeTimeout,
	}

	s.mu.Lock()
	s.stats.StartTime = time.Now()
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.ListenAndServe()
	}()

	s.logger.Info(ctx, "feed server listening",
		logger.String("addr", s.config.Addr),
		logger.String("path", s.config.Path),
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}

// handleFeed upgrades the connection and streams events until the client
// goes away or the configured drop timer fires.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	s.mu.Lock()
	s.stats.Connections++
	s.mu.Unlock()

	ctx := r.Context()
	s.logger.Info(ctx, "feed client connected", logger.String("host", host))

	ticker := time.NewTicker(s.config.EventRate)
	defer ticker.Stop()

	var dropCh <-chan time.Time
	if s.config.DropAfter > 0 {
		drop := time.NewTimer(s.config.DropAfter)
		defer drop.Stop()
		dropCh = drop.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-dropCh:
			// Simulates an unplanned link loss.
			s.logger.Info(ctx, "dropping feed client", logger.String("host", host))
			return
		case <-ticker.C:
			f := generateFrame(s.config)
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(f); err != nil {
				s.logger.Info(ctx, "feed client gone",
					logger.String("host", host), logger.Error(err))
				return
			}

			s.mu.Lock()
			s.stats.EventsEmitted++
			if f.Kind == "gift" {
				s.stats.GiftsEmitted++
			}
			s.mu.Unlock()

			if s.config.Verbose {
				s.logger.Debug(ctx, "emitted event",
					logger.String("kind", f.Kind),
					logger.String("handle", f.Handle),
					logger.Int("magnitude", f.Magnitude),
				)
			}
		}
	}
}
