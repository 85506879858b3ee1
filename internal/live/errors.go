package live

import "errors"

// Sentinel kinds for session tracker errors.
var (
	ErrAlreadyConnected = errors.New("already connected or connecting")
	ErrNotConnected     = errors.New("not connected")
	ErrConnect          = errors.New("external source unreachable")
)
