// Package services provides the business operations layer between the HTTP
// API and the engine packages.
package services

import (
	"errors"
	"fmt"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest   = errors.New("invalid request")
	ErrFlowNameRequired = errors.New("flow name is required")
	ErrFlowNil          = errors.New("flow cannot be nil")
	ErrAdapterRequired  = errors.New("target adapter type is required")
	ErrInvalidSortField = errors.New("invalid sort field")

	// Business Logic Conflicts (409 Conflict).
	ErrCannotModifyDeployed = errors.New("cannot modify deployed flow")
	ErrAlreadyDeployed      = errors.New("flow is already deployed")
	ErrNotDeployed          = errors.New("flow is not deployed")
	ErrNoActiveTargets      = errors.New("flow must have at least one active target to deploy")
	ErrCannotDeleteDeployed = errors.New("cannot delete deployed flow")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrFlowNameRequired) ||
		errors.Is(err, ErrFlowNil) ||
		errors.Is(err, ErrAdapterRequired) ||
		errors.Is(err, ErrInvalidSortField)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrCannotModifyDeployed) ||
		errors.Is(err, ErrAlreadyDeployed) ||
		errors.Is(err, ErrNotDeployed) ||
		errors.Is(err, ErrNoActiveTargets) ||
		errors.Is(err, ErrCannotDeleteDeployed)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
