// Package apperr defines the error kinds raised by the service layer.
// Handlers map each kind to exactly one HTTP status.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds. Wrap with context using fmt.Errorf("...: %w", kind) or
// construct directly with the helpers below; check with errors.Is.
var (
	ErrValidation     = errors.New("validation failed")
	ErrAuthentication = errors.New("authentication required")
	ErrAccessDenied   = errors.New("access denied")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrUpstream       = errors.New("upstream failure")
)

// FieldError is a single field-level validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries field-level messages and matches ErrValidation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Validation builds a ValidationError from field/message pairs.
func Validation(fields ...FieldError) error {
	return &ValidationError{Fields: fields}
}

// Field is shorthand for a FieldError.
func Field(field, message string) FieldError {
	return FieldError{Field: field, Message: message}
}

// NotFound wraps ErrNotFound naming the missing entity.
func NotFound(entity string) error {
	return fmt.Errorf("%s: %w", entity, ErrNotFound)
}

// Conflict wraps ErrConflict with a reason.
func Conflict(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrConflict)
}

// Denied wraps ErrAccessDenied with a reason.
func Denied(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrAccessDenied)
}
