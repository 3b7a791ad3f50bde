package models

// ExecutionContext carries per-execution identity and data through every
// orchestration call. Identity fields come from an already-authenticated
// actor; nothing here performs authentication.
type ExecutionContext struct {
	ID            string         `json:"id"`
	FlowID        string         `json:"flow_id"`
	TenantID      string         `json:"tenant_id,omitempty"`
	ActorID       string         `json:"actor_id,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	TriggerData   map[string]any `json:"trigger_data,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	StepResults   map[string]any `json:"step_results,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}
