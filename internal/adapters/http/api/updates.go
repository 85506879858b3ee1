// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/okian/requestline/internal/notify"
)

// UpdateDependencies defines the interface for update subscriptions.
type UpdateDependencies interface {
	OnUpdate(id string, cb notify.Callback)
	OffUpdate(id string)
}

// UpdatesHandler streams queue update notifications over server-sent events.
type UpdatesHandler struct {
	deps UpdateDependencies
}

// NewUpdatesHandler creates a new updates handler.
func NewUpdatesHandler(deps UpdateDependencies) *UpdatesHandler {
	return &UpdatesHandler{deps: deps}
}

// HandleStream handles GET /updates requests. One SSE message is written
// per queue change; the payload is the change reason.
func (h *UpdatesHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Buffered so slow clients drop notifications instead of blocking the
	// notifier's dispatch loop.
	reasons := make(chan notify.Reason, 32)
	subID := uuid.New().String()
	h.deps.OnUpdate(subID, func(_ context.Context, reason notify.Reason) {
		select {
		case reasons <- reason:
		default:
		}
	})
	defer h.deps.OffUpdate(subID)

	for {
		select {
		case <-r.Context().Done():
			return
		case reason := <-reasons:
			if _, err := fmt.Fprintf(w, "event: update\ndata: %s\n\n", reason); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
