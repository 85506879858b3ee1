// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
)

// SubmissionDependencies defines the interface for the submission window.
type SubmissionDependencies interface {
	SubmissionsOpen() bool
	SetSubmissionsOpen(ctx context.Context, open bool) error
}

// SubmissionsHandler handles submission window requests.
type SubmissionsHandler struct {
	deps SubmissionDependencies
}

// NewSubmissionsHandler creates a new submissions handler.
func NewSubmissionsHandler(deps SubmissionDependencies) *SubmissionsHandler {
	return &SubmissionsHandler{deps: deps}
}

// submissionsRequest mirrors the schema for PUT /submissions.
type submissionsRequest struct {
	Open bool `json:"open"`
}

// HandleSubmissions handles GET and PUT /submissions requests.
func (h *SubmissionsHandler) HandleSubmissions(w http.ResponseWriter, r *http.Request) {
	const op = "api.submissions"
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, submissionsRequest{Open: h.deps.SubmissionsOpen()})
	case http.MethodPut:
		var req submissionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		if err := h.deps.SetSubmissionsOpen(r.Context(), req.Open); err != nil {
			writeFailure(w, op, err)
			return
		}
		writeJSON(w, http.StatusOK, req)
	default:
		http.NotFound(w, r)
	}
}
