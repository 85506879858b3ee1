package repository

import "errors"

// Sentinel kinds for entry store errors.
var (
	ErrNotFound      = errors.New("entry not found")
	ErrTerminal      = errors.New("entry is in a terminal state")
	ErrOwnerCapacity = errors.New("owner already has an active free-tier entry")
	ErrInvalidTier   = errors.New("invalid tier target")
	ErrPersistence   = errors.New("persistence unavailable")
)
