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

// EntryDependencies defines the interface for entry lifecycle operations.
type EntryDependencies interface {
	Submit(ctx context.Context, ownerID, artist, title, link string, tier model.Tier) (model.Entry, error)
	Move(ctx context.Context, id string, target model.Tier) error
	Remove(ctx context.Context, id string) error
	Entry(ctx context.Context, id string) (model.Entry, error)
	SetPendingPromotion(ctx context.Context, id string, pending bool) error
}

// EntriesHandler handles entry lifecycle requests.
type EntriesHandler struct {
	deps EntryDependencies
}

// NewEntriesHandler creates a new entries handler.
func NewEntriesHandler(deps EntryDependencies) *EntriesHandler {
	return &EntriesHandler{deps: deps}
}

// submitRequest mirrors the schema for POST /entries.
type submitRequest struct {
	OwnerID string `json:"owner_id"`
	Artist  string `json:"artist"`
	Title   string `json:"title"`
	Link    string `json:"link"`
	Tier    string `json:"tier"`
}

func (r submitRequest) validate() error {
	switch {
	case strings.TrimSpace(r.OwnerID) == "":
		return NewKind("missing owner_id", ErrBadRequest)
	case strings.TrimSpace(r.Artist) == "":
		return NewKind("missing artist", ErrBadRequest)
	case strings.TrimSpace(r.Title) == "":
		return NewKind("missing title", ErrBadRequest)
	case strings.TrimSpace(r.Tier) == "":
		return NewKind("missing tier", ErrBadRequest)
	}
	return nil
}

// moveRequest mirrors the schema for POST /entries/{id}/move.
type moveRequest struct {
	Tier string `json:"tier"`
}

// holdRequest mirrors the schema for POST /entries/{id}/hold.
type holdRequest struct {
	Pending bool `json:"pending"`
}

// HandleCreate handles POST /entries requests.
func (h *EntriesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_entry"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	tier, ok := model.ParseTier(req.Tier)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	created, err := h.deps.Submit(r.Context(), req.OwnerID, req.Artist, req.Title, req.Link, tier)
	if err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.FromEntry(created, 0))
}

// HandleEntry handles GET/DELETE /entries/{id} and the /move and /hold
// sub-resources.
func (h *EntriesHandler) HandleEntry(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/entries/")
	id, action, _ := strings.Cut(path, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	switch action {
	case "":
		h.handleEntryRoot(w, r, id)
	case "move":
		h.handleMove(w, r, id)
	case "hold":
		h.handleHold(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (h *EntriesHandler) handleEntryRoot(w http.ResponseWriter, r *http.Request, id string) {
	const op = "api.entry"
	switch r.Method {
	case http.MethodGet:
		e, err := h.deps.Entry(r.Context(), id)
		if err != nil {
			writeFailure(w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, types.FromEntry(e, 0))
	case http.MethodDelete:
		if err := h.deps.Remove(r.Context(), id); err != nil {
			writeFailure(w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
	default:
		http.NotFound(w, r)
	}
}

func (h *EntriesHandler) handleMove(w http.ResponseWriter, r *http.Request, id string) {
	const op = "api.move_entry"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	tier, ok := model.ParseTier(req.Tier)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	if err := h.deps.Move(r.Context(), id, tier); err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "moved", "tier": tier.String()})
}

func (h *EntriesHandler) handleHold(w http.ResponseWriter, r *http.Request, id string) {
	const op = "api.hold_entry"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req holdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.SetPendingPromotion(r.Context(), id, req.Pending); err != nil {
		writeFailure(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"pending": req.Pending})
}
