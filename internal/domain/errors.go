package domain

import (
	"errors"
	"fmt"
)

// ValidationError represents input validation errors raised before any lookup runs.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// UnrecognizedTypingError reports a typing that classified fine but is absent
// from the reference data. It is an expected outcome for bad client input.
type UnrecognizedTypingError struct {
	Locus   Locus  `json:"locus"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Reason  string `json:"reason,omitempty"`
}

// Error implements the error interface
func (e *UnrecognizedTypingError) Error() string {
	msg := fmt.Sprintf("typing %s*%s not recognised in nomenclature version %s", e.Locus, e.Name, e.Version)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// NewUnrecognizedTypingError creates an UnrecognizedTypingError for a lookup key.
func NewUnrecognizedTypingError(key LookupKey, reason string) *UnrecognizedTypingError {
	return &UnrecognizedTypingError{
		Locus:   key.Locus,
		Name:    key.LookupName,
		Version: key.Version,
		Reason:  reason,
	}
}

// ResolutionError wraps any other resolution failure with the offending typing.
type ResolutionError struct {
	Locus Locus
	Name  string
	Err   error
}

// Error implements the error interface
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving %s*%s: %v", e.Locus, e.Name, e.Err)
}

// Unwrap exposes the original cause.
func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// NewResolutionError wraps err with the typing it was raised for.
func NewResolutionError(locus Locus, name string, err error) *ResolutionError {
	return &ResolutionError{Locus: locus, Name: name, Err: err}
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsUnrecognizedTyping reports whether err is or wraps an UnrecognizedTypingError.
func IsUnrecognizedTyping(err error) bool {
	var target *UnrecognizedTypingError
	return errors.As(err, &target)
}
