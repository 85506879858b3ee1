package aggregator

import "errors"

// Sentinel kinds for aggregation errors.
var (
	ErrMalformedEvent     = errors.New("malformed interaction event")
	ErrUnknownParticipant = errors.New("unknown participant")
)
