package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by place-scoped operations for unknown place ids.
	ErrNotFound = errors.New("not found")

	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")
)

// ValidationError reports malformed input rejected before any state mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets callers test for validation failures with errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a *ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// PlaceNotFound wraps ErrNotFound with the offending id.
func PlaceNotFound(id string) error {
	return fmt.Errorf("place %q: %w", id, ErrNotFound)
}
