package graph

import "errors"

// Errors surfaced by the primitive store, named after the wire error kinds
// spec.md §7 expects (DatabaseWriteError, DatabaseRowTooLong).
var (
	ErrDatabaseWriteError = errors.New("graph: DatabaseWriteError")
	ErrRowTooLong         = errors.New("graph: DatabaseRowTooLong")
	ErrNotFound           = errors.New("graph: not found")
)
