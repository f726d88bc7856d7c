package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrValidation          = errors.New("validation failed")
	ErrConfiguration       = errors.New("configuration error")
	ErrProviderFailure     = errors.New("provider failure")
	ErrStorage             = errors.New("storage failure")
	ErrPartialFailure      = errors.New("segment generation failed")
	ErrCriticNotApplicable = errors.New("critic only applies to completed video jobs")
)

// ValidationError reports malformed caller input. No job is created for it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for building a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
