// Package protocol defines the interfaces and contracts for pluggable
// dispatch adapters.
package protocol

import (
	"context"

	"github.com/flowmesh/flowmesh/pkg/models"
)

// DispatchResult is the outcome of one adapter dispatch attempt.
type DispatchResult struct {
	Success      bool           `json:"success"`
	ResponseData map[string]any `json:"response_data,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// Adapter delivers a payload to an external system. Implementations must be
// idempotency-friendly: the executor may dispatch the same logical attempt
// more than once under retry.
type Adapter interface {
	Dispatch(ctx context.Context, target *models.OrchestrationTarget, payload map[string]any, executionCtx models.ExecutionContext) (*DispatchResult, error)
}

// AdapterFactory creates adapter instances and describes the adapter type.
type AdapterFactory interface {
	// Create builds an adapter from a target's adapter configuration.
	Create(config map[string]any) (Adapter, error)

	// ID returns the unique adapter type identifier.
	ID() string

	// Schema returns the JSON schema for the adapter configuration.
	Schema() map[string]any
}
