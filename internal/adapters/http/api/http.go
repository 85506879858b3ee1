// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/requestline/internal/domain/model"
	"github.com/okian/requestline/internal/domain/types"
	"github.com/okian/requestline/internal/notify"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Entry lifecycle.
	Submit(ctx context.Context, ownerID, artist, title, link string, tier model.Tier) (model.Entry, error)
	Move(ctx context.Context, id string, target model.Tier) error
	Remove(ctx context.Context, id string) error
	TakeNext(ctx context.Context) (*model.Entry, error)
	Entry(ctx context.Context, id string) (model.Entry, error)
	Queue(ctx context.Context, tier *model.Tier, limit int) []model.Entry
	SetPendingPromotion(ctx context.Context, id string, pending bool) error
	ClearFree(ctx context.Context) (int, error)

	// Participants.
	LinkParticipant(ctx context.Context, handle, ownerID string) error
	ParticipantPoints(ctx context.Context, handle string) (float64, bool)
	ResetParticipant(ctx context.Context, handle string) error

	// Submission window.
	SubmissionsOpen() bool
	SetSubmissionsOpen(ctx context.Context, open bool) error

	// Update subscriptions.
	OnUpdate(id string, cb notify.Callback)
	OffUpdate(id string)

	// Live session control.
	ConnectLive(ctx context.Context, host string) error
	DisconnectLive(ctx context.Context) error
	LiveState() (string, *model.Session)
}

// Entry mirrors the read shape returned by queue queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler       *HealthHandler
	statsHandler        *StatsHandler
	entriesHandler      *EntriesHandler
	queueHandler        *QueueHandler
	participantsHandler *ParticipantsHandler
	submissionsHandler  *SubmissionsHandler
	liveHandler         *LiveHandler
	updatesHandler      *UpdatesHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxQueueLimit int) *Server {
	return &Server{
		healthHandler:       NewHealthHandler(),
		statsHandler:        NewStatsHandler(statsProvider),
		entriesHandler:      NewEntriesHandler(deps),
		queueHandler:        NewQueueHandler(deps, maxQueueLimit),
		participantsHandler: NewParticipantsHandler(deps),
		submissionsHandler:  NewSubmissionsHandler(deps),
		liveHandler:         NewLiveHandler(deps),
		updatesHandler:      NewUpdatesHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/entries", MetricsMiddleware(s.entriesHandler.HandleCreate, "entries"))
	mux.HandleFunc("/entries/", MetricsMiddleware(s.entriesHandler.HandleEntry, "entry"))
	mux.HandleFunc("/queue", MetricsMiddleware(s.queueHandler.HandleGetQueue, "queue"))
	mux.HandleFunc("/queue/next", MetricsMiddleware(s.queueHandler.HandleTakeNext, "take_next"))
	mux.HandleFunc("/queue/free", MetricsMiddleware(s.queueHandler.HandleClearFree, "clear_free"))
	mux.HandleFunc("/participants/", MetricsMiddleware(s.participantsHandler.HandleParticipant, "participant"))
	mux.HandleFunc("/submissions", MetricsMiddleware(s.submissionsHandler.HandleSubmissions, "submissions"))
	mux.HandleFunc("/live", MetricsMiddleware(s.liveHandler.HandleState, "live"))
	mux.HandleFunc("/live/connect", MetricsMiddleware(s.liveHandler.HandleConnect, "live_connect"))
	mux.HandleFunc("/live/disconnect", MetricsMiddleware(s.liveHandler.HandleDisconnect, "live_disconnect"))
	mux.HandleFunc("/updates", s.updatesHandler.HandleStream)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
