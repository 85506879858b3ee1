// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/okian/requestline/internal/domain/types"
)

// ParticipantDependencies defines the interface for participant operations.
type ParticipantDependencies interface {
	LinkParticipant(ctx context.Context, handle, ownerID string) error
	ParticipantPoints(ctx context.Context, handle string) (float64, bool)
	ResetParticipant(ctx context.Context, handle string) error
}

// ParticipantsHandler handles participant requests.
type ParticipantsHandler struct {
	deps ParticipantDependencies
}

// NewParticipantsHandler creates a new participants handler.
func NewParticipantsHandler(deps ParticipantDependencies) *ParticipantsHandler {
	return &ParticipantsHandler{deps: deps}
}

// linkRequest mirrors the schema for POST /participants/{handle}/link.
type linkRequest struct {
	OwnerID string `json:"owner_id"`
}

// HandleParticipant handles GET /participants/{handle} and the /link and
// /reset sub-resources.
func (h *ParticipantsHandler) HandleParticipant(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/participants/")
	handle, action, _ := strings.Cut(path, "/")
	if handle == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	switch action {
	case "":
		h.handleGet(w, r, handle)
	case "link":
		h.handleLink(w, r, handle)
	case "reset":
		h.handleReset(w, r, handle)
	default:
		http.NotFound(w, r)
	}
}

func (h *ParticipantsHandler) handleGet(w http.ResponseWriter, r *http.Request, handle string) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	points, ok := h.deps.ParticipantPoints(r.Context(), handle)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", nil)
		return
	}
	writeJSON(w, http.StatusOK, types.Participant{Handle: handle, Points: points})
}

func (h *ParticipantsHandler) handleLink(w http.ResponseWriter, r *http.Request, handle string) {
	const op = "api.link_participant"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.OwnerID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	if err := h.deps.LinkParticipant(r.Context(), handle, req.OwnerID); err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"handle": handle, "owner_id": req.OwnerID})
}

func (h *ParticipantsHandler) handleReset(w http.ResponseWriter, r *http.Request, handle string) {
	const op = "api.reset_participant"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := h.deps.ResetParticipant(r.Context(), handle); err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
