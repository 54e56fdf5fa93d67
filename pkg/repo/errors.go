package repo

import "errors"

// Sentinel errors returned by every repository implementation, matching the
// teacher's pkg/services/errors.go idiom.
var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned on a unique-constraint violation.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrConflict is returned when a state-dependent write could not apply,
	// e.g. claiming a prompt that is no longer queued.
	ErrConflict = errors.New("concurrent modification detected")
)
