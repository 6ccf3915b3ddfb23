package query

import "errors"

// Errors surfaced by the mutation pipeline, named after the wire error
// kinds spec.md §7 expects.
var (
	ErrMissingUpdateField = errors.New("query: MissingUpdateField")
	ErrUnknownEntity      = errors.New("query: unknown entity")
	ErrUnknownVariable    = errors.New("query: unknown variable")
	ErrUnknownField       = errors.New("query: unknown field")
)
