package repositories

import "errors"

var (
	// ErrNotFound is wrapped by every lookup that matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is wrapped when a unique constraint rejects an insert.
	ErrDuplicate = errors.New("duplicate record")
)
