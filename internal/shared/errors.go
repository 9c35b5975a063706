package shared

import "errors"

var (
	// ErrValidation indicates malformed or missing required input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the operation conflicts with current document state.
	ErrConflict = errors.New("conflict")
	// ErrNoSeriesAvailable indicates no number series could be resolved.
	ErrNoSeriesAvailable = errors.New("no number series available")
	// ErrConcurrency indicates a write lost a race after bounded retries.
	ErrConcurrency = errors.New("concurrent modification")
)
