// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/okian/requestline/internal/domain/model"
	"github.com/okian/requestline/internal/domain/types"
)

// LiveDependencies defines the interface for live session control.
type LiveDependencies interface {
	ConnectLive(ctx context.Context, host string) error
	DisconnectLive(ctx context.Context) error
	LiveState() (string, *model.Session)
}

// LiveHandler handles live session requests.
type LiveHandler struct {
	deps LiveDependencies
}

// NewLiveHandler creates a new live session handler.
func NewLiveHandler(deps LiveDependencies) *LiveHandler {
	return &LiveHandler{deps: deps}
}

// connectRequest mirrors the schema for POST /live/connect.
type connectRequest struct {
	Host string `json:"host"`
}

// liveResponse is the read shape for GET /live.
type liveResponse struct {
	State   string         `json:"state"`
	Session *types.Session `json:"session,omitempty"`
}

// HandleState handles GET /live requests.
func (h *LiveHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	state, sess := h.deps.LiveState()
	resp := liveResponse{State: state}
	if sess != nil {
		v := types.FromSession(*sess)
		resp.Session = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleConnect handles POST /live/connect requests.
func (h *LiveHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	const op = "api.live_connect"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.Host) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	if err := h.deps.ConnectLive(r.Context(), req.Host); err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "connecting", "host": req.Host})
}

// HandleDisconnect handles POST /live/disconnect requests.
func (h *LiveHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	const op = "api.live_disconnect"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := h.deps.DisconnectLive(r.Context()); err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}
