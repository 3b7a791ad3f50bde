package models

import "time"

// MessageState represents the queue lifecycle state of an admitted message.
type MessageState string

const (
	MessageStatePending        MessageState = "pending"
	MessageStateProcessing     MessageState = "processing"
	MessageStateCompleted      MessageState = "completed"
	MessageStateFailed         MessageState = "failed"
	MessageStateRetryScheduled MessageState = "retry_scheduled"
	MessageStateCancelled      MessageState = "cancelled"
)

// QueuedMessage is an admitted unit of work awaiting or undergoing
// orchestration, with its own retry/cancellation lifecycle. State
// transitions are driven exclusively by the message queue.
type QueuedMessage struct {
	ID            string         `json:"id"`
	FlowID        string         `json:"flow_id"`
	Payload       map[string]any `json:"payload"`
	State         MessageState   `json:"state"`
	AttemptCount  int            `json:"attempt_count"`
	MaxAttempts   int            `json:"max_attempts"`
	NextAttemptAt *time.Time     `json:"next_attempt_at,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	EnqueuedAt    time.Time      `json:"enqueued_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// IsTerminal reports whether the message admits no further transitions.
// A FAILED message with attempts remaining may still be retried.
func (m *QueuedMessage) IsTerminal() bool {
	switch m.State {
	case MessageStateCompleted, MessageStateCancelled:
		return true
	case MessageStateFailed:
		return m.AttemptCount >= m.MaxAttempts
	default:
		return false
	}
}
