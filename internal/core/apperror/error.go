// Package apperror provides structured error handling for the soft-delete engine.
// All configuration, resolution and transition failures use AppError so callers can
// branch on a machine-readable code instead of matching strings.
package apperror

import (
	"errors"
	"fmt"
)

// Error codes
const (
	// Infrastructure errors
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"

	// Validation errors
	CodeValidation = "VALIDATION_ERROR"

	// Registration errors
	CodeConfiguration            = "CONFIGURATION_ERROR"
	CodeRelationshipNotFound     = "RELATIONSHIP_NOT_FOUND"
	CodeInvalidRelationshipShape = "INVALID_RELATIONSHIP_SHAPE"

	// Lifecycle errors
	CodeTransitionFailure = "TRANSITION_FAILURE"

	// Not found
	CodeNotFound = "NOT_FOUND"
)

// AppError is the standard error type of the module.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (entity, relationship, column...)
	Details map[string]any `json:"details,omitempty"`

	// Err is the underlying error
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error.
func NewValidation(message string) *AppError {
	return &AppError{
		Code:    CodeValidation,
		Message: message,
	}
}

// NewNotFound creates a not found error.
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", entity),
		Details: map[string]any{"entity": entity, "id": id},
	}
}

// NewConfiguration reports a registration that cannot be installed.
func NewConfiguration(entity, message string) *AppError {
	return &AppError{
		Code:    CodeConfiguration,
		Message: message,
		Details: map[string]any{"entity": entity},
	}
}

// NewRelationshipNotFound is returned by the resolver when an entity declares no
// relationship with the requested name.
func NewRelationshipNotFound(entity, relationship string) *AppError {
	return &AppError{
		Code:    CodeRelationshipNotFound,
		Message: fmt.Sprintf("relationship %q is not declared on %s", relationship, entity),
		Details: map[string]any{"entity": entity, "relationship": relationship},
	}
}

// NewInvalidRelationshipShape is returned when a relationship exists but is not a
// to-one relationship whose foreign key lives on the owning entity.
func NewInvalidRelationshipShape(entity, relationship, kind string) *AppError {
	return &AppError{
		Code:    CodeInvalidRelationshipShape,
		Message: fmt.Sprintf("dependent relationship %s.%s must be belongs_to, got %s", entity, relationship, kind),
		Details: map[string]any{"entity": entity, "relationship": relationship, "kind": kind},
	}
}

// NewTransitionFailure wraps a hook or mutation failure of a hide/restore transition.
func NewTransitionFailure(entity, transition string, id any, cause error) *AppError {
	return &AppError{
		Code:    CodeTransitionFailure,
		Message: fmt.Sprintf("%s of %s failed", transition, entity),
		Details: map[string]any{"entity": entity, "transition": transition, "id": id},
		Err:     cause,
	}
}

// NewDatabase wraps a storage failure.
func NewDatabase(op string, cause error) *AppError {
	return &AppError{
		Code:    CodeDatabase,
		Message: op,
		Err:     cause,
	}
}

// NewInternal creates an internal error.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: "Internal error",
		Err:     err,
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether any AppError in the chain carries code.
// Wrapped AppErrors are inspected too, so a CONFIGURATION_ERROR caused by a
// resolver failure still answers true for the resolver's code.
func HasCode(err error, code string) bool {
	for err != nil {
		appErr, ok := AsAppError(err)
		if !ok {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// IsValidation checks if error is CodeValidation
func IsValidation(err error) bool {
	return HasCode(err, CodeValidation)
}

// IsConfiguration checks if error is CodeConfiguration
func IsConfiguration(err error) bool {
	return HasCode(err, CodeConfiguration)
}

// IsRelationshipNotFound checks if error is CodeRelationshipNotFound
func IsRelationshipNotFound(err error) bool {
	return HasCode(err, CodeRelationshipNotFound)
}

// IsInvalidRelationshipShape checks if error is CodeInvalidRelationshipShape
func IsInvalidRelationshipShape(err error) bool {
	return HasCode(err, CodeInvalidRelationshipShape)
}

// IsTransitionFailure checks if error is CodeTransitionFailure
func IsTransitionFailure(err error) bool {
	return HasCode(err, CodeTransitionFailure)
}

// IsDatabase checks if error is CodeDatabase
func IsDatabase(err error) bool {
	return HasCode(err, CodeDatabase)
}
