package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist (or, for
	// conditional updates, was already consumed by a concurrent writer).
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a uniqueness constraint rejected the write.
	ErrConflict = errors.New("repository: conflict")
)
