// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState = errors.New("invalid state")

	// Time errors
	ErrClockAnomaly = errors.New("clock anomaly")

	// Configuration errors
	ErrConfig = errors.New("configuration error")

	// Role management errors
	ErrHierarchyViolation = errors.New("role hierarchy violation")
	ErrUnresolvedRole     = errors.New("unresolved role")
	ErrPartialApply       = errors.New("partial role apply failure")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progression", "tier", "leaderboard"
	Op      string // Operation that failed, e.g., "Advance", "Reconcile"
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

// Progression domain errors
var (
	ErrNegativeLevel = NewDomainError("progression", "Advance", ErrNegativeValue, "level cannot be negative")
	ErrNegativeXP    = NewDomainError("progression", "Advance", ErrNegativeValue, "xp cannot be negative")
	ErrInvalidMember = NewDomainError("progression", "Validate", ErrInvalidID, "invalid member identifier")
)

// Voice domain errors
var (
	ErrUnknownVoiceEvent = NewDomainError("voice", "Accumulate", ErrInvalidInput, "unknown voice event kind")
)

// Tier domain errors
var (
	ErrEmptyTierName   = NewDomainError("tier", "Validate", ErrConfig, "tier name is empty")
	ErrInvalidTierRole = NewDomainError("tier", "Validate", ErrConfig, "tier role id must be positive")
	ErrNegativeMinutes = NewDomainError("tier", "Validate", ErrConfig, "tier min_minutes cannot be negative")
	ErrDuplicateRole   = NewDomainError("tier", "Validate", ErrConfig, "role is already bound to another tier")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsRoleRejection reports whether reconciliation refused to produce a diff.
func IsRoleRejection(err error) bool {
	return errors.Is(err, ErrHierarchyViolation) || errors.Is(err, ErrUnresolvedRole)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
