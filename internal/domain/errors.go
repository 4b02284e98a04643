package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across all layers.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrConflict      = errors.New("conflict")

	// ErrAlreadyAnswered is returned when a reviewer's consent answer is
	// recorded a second time for the same journal-year. The question is
	// asked at most once per year; callers log and ignore the duplicate.
	ErrAlreadyAnswered = errors.New("consent already answered")

	// ErrUnmappableDecision is returned for a host decision kind outside
	// the known closed set. Fatal to that single event, never dropped
	// silently.
	ErrUnmappableDecision = errors.New("unmappable decision kind")

	// ErrCredentialsMissing and ErrCredentialsInvalid block every RQC
	// call for a journal until an administrator stores a key that
	// validates successfully.
	ErrCredentialsMissing = errors.New("journal credentials missing")
	ErrCredentialsInvalid = errors.New("journal credentials not validated")
)

// FieldError describes a validation error for a specific field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError contains a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s — %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation: %d errors", len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Errors: []FieldError{{Field: field, Message: message}},
	}
}

// NewValidationErrors creates a ValidationError from multiple field errors.
func NewValidationErrors(errs []FieldError) *ValidationError {
	return &ValidationError{Errors: errs}
}
