package activity

import "errors"

var (
	// ErrValidation indicates malformed input. Nothing was mutated.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidState indicates the requested transition is not legal
	// from the session's current status.
	ErrInvalidState = errors.New("invalid session state")

	// ErrConcurrentSession indicates the user already has a live
	// (active or paused) session.
	ErrConcurrentSession = errors.New("another session is already live")

	// ErrNotFound indicates the session does not exist or is not
	// visible to the caller.
	ErrNotFound = errors.New("session not found")
)
