// Package web provides HTTP request and response types for the flow API.
package web

import "github.com/flowmesh/flowmesh/pkg/models"

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CreateRouterRequest represents the request body for attaching a router to
// a flow. Type selects the router semantics; the remaining fields apply to
// one type or the other.
type CreateRouterRequest struct {
	Type           models.RouterType     `json:"type"            validate:"required,oneof=choice content"`
	Name           string                `json:"name"`
	Choices        []models.RouterChoice `json:"choices"`
	DefaultTargets []string              `json:"default_targets"`
	ExtractionPath string                `json:"extraction_path"`
	SourceType     models.SourceType     `json:"source_type"     validate:"omitempty,oneof=json xml"`
	Routes         map[string][]string   `json:"routes"`
	DefaultKey     string                `json:"default_key"`
}

// EvaluateRoutingRequest represents the request body for a dry-run routing
// evaluation.
type EvaluateRoutingRequest struct {
	FlowID  string         `json:"flow_id" validate:"required"`
	StepID  string         `json:"step_id"`
	Payload map[string]any `json:"payload"`
}

// ExecuteFlowRequest represents the request body for a direct flow
// execution.
type ExecuteFlowRequest struct {
	Input map[string]any `json:"input"`
	Async bool           `json:"async"`
}

// EnqueueMessageRequest represents the request body for admitting a message
// to the queue.
type EnqueueMessageRequest struct {
	Payload       map[string]any `json:"payload"`
	MaxAttempts   int            `json:"max_attempts"   validate:"gte=0"`
	CorrelationID string         `json:"correlation_id"`
}
