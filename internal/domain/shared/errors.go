// Package shared contains the error taxonomy used across all domain packages.
// This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
	"strings"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation   = errors.New("validation error")
	ErrRange        = errors.New("value out of range")
	ErrUnknownScale = errors.New("unknown grading scale")
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyValue   = errors.New("value cannot be empty")

	// State errors
	ErrStateConflict   = errors.New("state conflict")
	ErrStateTransition = errors.New("invalid state transition")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")

	// Concurrency errors
	ErrLockHeld    = errors.New("lock is held by another owner")
	ErrLockTimeout = errors.New("timed out acquiring lock")

	// External service errors
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "gradetree", "grading", "enrollment"
	Op      string // Operation that failed, e.g., "SetWeight", "Complete"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// TAXONOMY CONSTRUCTORS
// ══════════════════════════════════════════════════════════════════════════════

// NewRangeError reports a score or weight outside its allowed bounds.
func NewRangeError(domain, op, field string, value, min, max float64) *DomainError {
	return NewDomainError(domain, op, ErrRange,
		fmt.Sprintf("%s must be between %g and %g, got %g", field, min, max, value))
}

// NewValidationError reports malformed input that rejects a whole calculation.
func NewValidationError(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrValidation, message)
}

// NewUnknownScaleError reports an unrecognized grading-scale identifier.
func NewUnknownScaleError(op, got string, valid []string) *DomainError {
	return NewDomainError("grading", op, ErrUnknownScale,
		fmt.Sprintf("unknown grading scale %q, valid scales are: %s", got, strings.Join(valid, ", ")))
}

// NewNotFoundError reports a missing entity.
func NewNotFoundError(domain, op, id string) *DomainError {
	return NewDomainError(domain, op, ErrNotFound, fmt.Sprintf("%s %q not found", domain, id))
}

// NewStateConflictError reports an entity in a state that forbids the operation.
func NewStateConflictError(domain, op, message string) *DomainError {
	return NewDomainError(domain, op, ErrStateConflict, message)
}

// ══════════════════════════════════════════════════════════════════════════════
// PREDICATES
// ══════════════════════════════════════════════════════════════════════════════

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsRange checks if the error is a range error.
func IsRange(err error) bool {
	return errors.Is(err, ErrRange)
}

// IsUnknownScale checks if the error is an unknown grading scale error.
func IsUnknownScale(err error) bool {
	return errors.Is(err, ErrUnknownScale)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue)
}

// IsStateConflict checks if the error is a state conflict or a rejected transition.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrStateConflict) || errors.Is(err, ErrStateTransition)
}

// IsClientError reports whether the error was caused by the caller's input
// rather than by the system.
func IsClientError(err error) bool {
	return IsRange(err) || IsUnknownScale(err) || IsValidation(err)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockHeld) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}
