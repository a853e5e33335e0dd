package store

import "errors"

var (
	// ErrNotFound is returned when a lookup by ID finds no record.
	ErrNotFound = errors.New("store: record not found")
	// ErrVersionConflict is returned by a transition method when the
	// caller's expected version no longer matches the stored version,
	// meaning another writer touched the record concurrently.
	ErrVersionConflict = errors.New("store: version conflict")
	// ErrAlreadyExists is returned by inserts on a duplicate ID or a
	// unique field (e.g. User.Email).
	ErrAlreadyExists = errors.New("store: record already exists")
)
