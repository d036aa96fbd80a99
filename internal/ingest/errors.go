package ingest

import "errors"

var (
	// ErrSchema marks an inbound event that fails required-field checks.
	// Nothing is persisted.
	ErrSchema = errors.New("schema error")
	// ErrValidation marks a semantic mismatch discovered mid-transaction,
	// such as conflicting environment contexts. The unit of work rolls back.
	ErrValidation = errors.New("validation error")
)
