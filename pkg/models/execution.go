package models

import "time"

// ExecutionStatus represents the lifecycle state of one flow execution attempt.
type ExecutionStatus string

const (
	ExecutionStatusStarted    ExecutionStatus = "started"
	ExecutionStatusInProgress ExecutionStatus = "in_progress"
	ExecutionStatusCompleted  ExecutionStatus = "completed"
	ExecutionStatusFailed     ExecutionStatus = "failed"
	ExecutionStatusCancelled  ExecutionStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// ExecutionStep is one ordered step record within an execution trace.
type ExecutionStep struct {
	StepName  string    `json:"step_name"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// FlowExecution is the trace of one execution attempt. Step records preserve
// dispatch order; the trace is immutable once the status is terminal.
type FlowExecution struct {
	ID            string          `json:"id"`
	FlowID        string          `json:"flow_id"`
	FlowType      string          `json:"flow_type"`
	Status        ExecutionStatus `json:"status"`
	Steps         []ExecutionStep `json:"steps"`
	Message       string          `json:"message,omitempty"`
	ErrorDetail   string          `json:"error_detail,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	EndedAt       *time.Time      `json:"ended_at,omitempty"`
}

// FailureKind classifies why a target failed. Only dispatch failures are
// retried automatically; validation and configuration failures are reported
// to the caller and left for manual retry.
type FailureKind string

const (
	FailureKindValidation    FailureKind = "validation"
	FailureKindConfiguration FailureKind = "configuration"
	FailureKindDispatch      FailureKind = "dispatch"
)

// Retryable reports whether failures of this kind are retried per policy.
func (k FailureKind) Retryable() bool {
	return k == FailureKindDispatch
}

// TargetResult is the per-target outcome of an orchestration run.
type TargetResult struct {
	TargetID     string      `json:"target_id"`
	TargetName   string      `json:"target_name"`
	Success      bool        `json:"success"`
	Skipped      bool        `json:"skipped,omitempty"`
	ResponseData any         `json:"response_data,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	FailureKind  FailureKind `json:"failure_kind,omitempty"`
	Attempts     int         `json:"attempts"`
}

// OrchestrationResult is returned by the synchronous execution entry point.
// FailureKind carries the first failure's class; RetryPolicy is the failing
// target's effective policy when that failure is retryable.
type OrchestrationResult struct {
	ExecutionID   string         `json:"execution_id"`
	FlowID        string         `json:"flow_id"`
	Success       bool           `json:"success"`
	TargetResults []TargetResult `json:"target_results"`
	Message       string         `json:"message,omitempty"`
	FailureKind   FailureKind    `json:"failure_kind,omitempty"`
	RetryPolicy   *RetryPolicy   `json:"-"`
}

// ExecutionStatistics aggregates tracker state for monitoring endpoints.
type ExecutionStatistics struct {
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

// FlowMetrics summarizes historical executions of a single flow.
type FlowMetrics struct {
	FlowID          string        `json:"flow_id"`
	TotalExecutions int           `json:"total_executions"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	Cancelled       int           `json:"cancelled"`
	AverageDuration time.Duration `json:"average_duration"`
	LastExecutedAt  *time.Time    `json:"last_executed_at,omitempty"`
}
