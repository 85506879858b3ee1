package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/requestline/internal/adapters/repository"
	"github.com/okian/requestline/internal/aggregator"
	service "github.com/okian/requestline/internal/app"
	"github.com/okian/requestline/internal/live"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrBackpressure = errors.New("backpressure")
)

// NewKind tags a sentinel with the failing operation.
func NewKind(op string, kind error) error {
	return fmt.Errorf("%s: %w", op, kind)
}

// WrapKind tags an underlying error with the failing operation and kind.
func WrapKind(op string, kind, err error) error {
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}

// statusFor translates component sentinels into an HTTP status and a
// machine-readable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, aggregator.ErrUnknownParticipant):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrTerminal):
		return http.StatusConflict, "terminal_entry"
	case errors.Is(err, repository.ErrOwnerCapacity):
		return http.StatusConflict, "owner_capacity"
	case errors.Is(err, service.ErrSubmissionsClosed):
		return http.StatusConflict, "submissions_closed"
	case errors.Is(err, live.ErrAlreadyConnected):
		return http.StatusConflict, "already_connected"
	case errors.Is(err, live.ErrNotConnected):
		return http.StatusConflict, "not_connected"
	case errors.Is(err, repository.ErrInvalidTier), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "not_started"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeFailure maps err through statusFor and writes the error response.
func writeFailure(w http.ResponseWriter, op string, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, NewKind(op, err))
}
