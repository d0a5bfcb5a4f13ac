package local

import "errors"

var (
	// ErrNotFound is returned when no record exists for an interview
	ErrNotFound = errors.New("not found")

	// ErrInvalidID is returned for session IDs that cannot name a file
	ErrInvalidID = errors.New("invalid session id")
)
