// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/requestline/internal/domain/model"
	"github.com/okian/requestline/internal/domain/types"
)

// QueueDependencies defines the interface for queue-wide operations.
type QueueDependencies interface {
	Queue(ctx context.Context, tier *model.Tier, limit int) []model.Entry
	TakeNext(ctx context.Context) (*model.Entry, error)
	ClearFree(ctx context.Context) (int, error)
}

// QueueHandler handles queue read and serve requests.
type QueueHandler struct {
	deps     QueueDependencies
	maxLimit int
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(deps QueueDependencies, maxLimit int) *QueueHandler {
	return &QueueHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetQueue handles GET /queue?tier=&limit=N requests.
func (h *QueueHandler) HandleGetQueue(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_queue"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	limit := h.maxLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		if n > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrBadRequest))
			return
		}
		limit = n
	}

	var tier *model.Tier
	if tierStr := r.URL.Query().Get("tier"); tierStr != "" {
		t, ok := model.ParseTier(tierStr)
		if !ok {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		tier = &t
	}

	entries := h.deps.Queue(r.Context(), tier, limit)
	writeJSON(w, http.StatusOK, types.FromEntries(entries))
}

// HandleTakeNext handles POST /queue/next requests. An empty queue returns
// 204 rather than an error.
func (h *QueueHandler) HandleTakeNext(w http.ResponseWriter, r *http.Request) {
	const op = "api.take_next"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	e, err := h.deps.TakeNext(r.Context())
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	if e == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, types.FromEntry(*e, 0))
}

// HandleClearFree handles DELETE /queue/free requests.
func (h *QueueHandler) HandleClearFree(w http.ResponseWriter, r *http.Request) {
	const op = "api.clear_free"
	if r.Method != http.MethodDelete {
		http.NotFound(w, r)
		return
	}
	n, err := h.deps.ClearFree(r.Context())
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}
