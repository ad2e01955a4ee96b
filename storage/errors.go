package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a key is absent or its entry has expired.
	ErrNotFound = errors.New("entry not found")
)
