// Package events defines the event types published on the flow lifecycle bus.
package events

import (
	"time"
)

// EventType identifies an event on the bus.
type EventType string

// Topic is the bus topic all flow lifecycle events are published on.
const Topic = "flowmesh.events"

// EventTypeMetadataKey is the message metadata key carrying the event type.
const EventTypeMetadataKey = "event_type"

const (
	MessageQueuedEvent EventType = "message.queued"

	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"

	TargetDispatchedEvent EventType = "target.dispatched"
	TargetFailedEvent     EventType = "target.failed"
)

// Event is implemented by every event published on the bus.
type Event interface {
	GetType() EventType
}

// BaseEvent carries the fields common to all events.
type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	FlowID    string         `json:"flow_id"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// MessageQueued is published when a message is admitted to the queue.
type MessageQueued struct {
	BaseEvent

	MessageID     string         `json:"message_id"`
	Payload       map[string]any `json:"payload,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

func (m MessageQueued) GetType() EventType {
	return MessageQueuedEvent
}

// ExecutionStarted is published when an orchestration run begins.
type ExecutionStarted struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

// ExecutionCompleted is published when a run ends successfully.
type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

// ExecutionFailed is published when a run ends in FAILED.
type ExecutionFailed struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Error       string        `json:"error"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

// ExecutionCancelled is published when a run is cancelled cooperatively.
type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

// TargetDispatched is published after a successful adapter dispatch.
type TargetDispatched struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	TargetID    string        `json:"target_id"`
	TargetName  string        `json:"target_name"`
	Duration    time.Duration `json:"duration"`
}

func (t TargetDispatched) GetType() EventType {
	return TargetDispatchedEvent
}

// TargetFailed is published when an adapter dispatch fails.
type TargetFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	TargetID    string `json:"target_id"`
	TargetName  string `json:"target_name"`
	Error       string `json:"error"`
}

func (t TargetFailed) GetType() EventType {
	return TargetFailedEvent
}
