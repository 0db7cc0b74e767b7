package types

import (
	"errors"
	"fmt"
)

// Error taxonomy shared across the engine. Backend errors drive tier
// fallback; validation errors are the only class surfaced to callers.
var (
	// ErrBackendUnavailable marks a graph or embedding backend that is
	// unreachable, timed out, or circuit-broken. Callers treat it as "try
	// the next tier", never as fatal.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrExtractionFailed marks an NLP extraction failure. Documents are
	// still stored with zero entities; the error is a warning only.
	ErrExtractionFailed = errors.New("entity extraction failed")
)

// ValidationError rejects bad caller parameters. It is the only error class
// that propagates out of the retrieval pipeline.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for a parameter.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
