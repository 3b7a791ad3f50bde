// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrFlowNotFound indicates a flow was not found by the given identifier.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrFlowAlreadyExists indicates a flow with the same identifier already exists.
	ErrFlowAlreadyExists = errors.New("flow already exists")

	// ErrRouterNotFound indicates a router was not found by the given identifier.
	ErrRouterNotFound = errors.New("router not found")

	// ErrRouteNotFound indicates a route was not found by the given identifier.
	ErrRouteNotFound = errors.New("route not found")

	// ErrExecutionNotFound indicates an execution trace was not found.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrMessageNotFound indicates a queued message was not found.
	ErrMessageNotFound = errors.New("queued message not found")
)

// FlowError wraps flow-related errors with operation context.
type FlowError struct {
	Op     string // Operation being performed (e.g., "FlowByID", "Save", "Delete")
	FlowID string // Flow ID if applicable
	Err    error  // Underlying error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("%s operation failed for flow %s: %v", e.Op, e.FlowID, e.Err)
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for flow errors.
func (e *FlowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewFlowError creates a new flow error with context.
func NewFlowError(op, flowID string, err error) *FlowError {
	return &FlowError{
		Op:     op,
		FlowID: flowID,
		Err:    err,
	}
}

// MessageError wraps queued-message errors with operation context.
type MessageError struct {
	Op        string
	MessageID string
	Err       error
}

func (e *MessageError) Error() string {
	return fmt.Sprintf("%s operation failed for message %s: %v", e.Op, e.MessageID, e.Err)
}

func (e *MessageError) Unwrap() error {
	return e.Err
}

func (e *MessageError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsFlowNotFound checks if an error indicates a flow was not found.
func IsFlowNotFound(err error) bool {
	return errors.Is(err, ErrFlowNotFound)
}

// IsFlowAlreadyExists checks if an error indicates a duplicate flow.
func IsFlowAlreadyExists(err error) bool {
	return errors.Is(err, ErrFlowAlreadyExists)
}

// IsRouterNotFound checks if an error indicates a router was not found.
func IsRouterNotFound(err error) bool {
	return errors.Is(err, ErrRouterNotFound)
}

// IsMessageNotFound checks if an error indicates a queued message was not found.
func IsMessageNotFound(err error) bool {
	return errors.Is(err, ErrMessageNotFound)
}
