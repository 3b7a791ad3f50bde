// Package queue implements the message admission, retry and cancellation
// state machine for queued flow messages.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/google/uuid"
)

var (
	// ErrInvalidQueueRequest indicates admission of a message for a flow
	// that is not deployed.
	ErrInvalidQueueRequest = errors.New("invalid queue request")

	// ErrQueueCapacityExceeded indicates admission was rejected because the
	// queue is at its configured bound. Distinct from validation errors.
	ErrQueueCapacityExceeded = errors.New("queue capacity exceeded")

	// ErrMessageNotFound indicates a lookup for an unknown message id.
	ErrMessageNotFound = errors.New("message not found")

	// ErrAlreadyProcessing indicates an illegal transition to PROCESSING
	// from PROCESSING or a terminal state. Conflict semantics.
	ErrAlreadyProcessing = errors.New("message already processing or terminal")

	// ErrRetryNotAllowed indicates a retry on a terminal or
	// attempt-exhausted message. Conflict semantics.
	ErrRetryNotAllowed = errors.New("retry not allowed")

	// ErrCancelNotAllowed indicates cancellation of a terminal message.
	// Conflict semantics.
	ErrCancelNotAllowed = errors.New("cancel not allowed")

	// ErrInvalidTransition indicates a state transition outside the message
	// lifecycle graph.
	ErrInvalidTransition = errors.New("invalid message state transition")
)

// DeploymentChecker reports whether a flow currently accepts messages.
type DeploymentChecker interface {
	IsDeployed(ctx context.Context, flowID string) (bool, error)
}

// Repository persists queue state. The in-memory queue stays authoritative;
// the repository is a write-through for restart recovery.
type Repository interface {
	SaveMessage(ctx context.Context, message *models.QueuedMessage) error
	DeleteMessage(ctx context.Context, id string) error
	Messages(ctx context.Context) ([]*models.QueuedMessage, error)
}

const defaultCapacity = 10_000

// Queue is the message queue. All state transitions for a single message
// are atomic: a transition observes the expected state and applies the new
// one under the queue lock, so two concurrent ProcessMessage calls cannot
// both win.
type Queue struct {
	logger     *slog.Logger
	deployment DeploymentChecker
	repository Repository
	capacity   int
	now        func() time.Time

	mu       sync.RWMutex
	messages map[string]*models.QueuedMessage
}

// NewQueue creates a message queue. The repository is optional; capacity
// <= 0 falls back to the default bound.
func NewQueue(logger *slog.Logger, deployment DeploymentChecker, repository Repository, capacity int) *Queue {
	if logger == nil {
		logger = slog.Default()
	}

	if capacity <= 0 {
		capacity = defaultCapacity
	}

	return &Queue{
		logger:     logger.With("module", "message_queue"),
		deployment: deployment,
		repository: repository,
		capacity:   capacity,
		now:        func() time.Time { return time.Now().UTC() },
		messages:   make(map[string]*models.QueuedMessage),
	}
}

// Load restores persisted messages after a restart.
func (q *Queue) Load(ctx context.Context) error {
	if q.repository == nil {
		return nil
	}

	messages, err := q.repository.Messages(ctx)
	if err != nil {
		return fmt.Errorf("failed to load queued messages: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, message := range messages {
		q.messages[message.ID] = message
	}

	return nil
}

// QueueMessage admits a message for a deployed flow in PENDING state.
// Admission is rejected, never blocked, once the queue is at capacity.
func (q *Queue) QueueMessage(ctx context.Context, flowID string, payload map[string]any, maxAttempts int, correlationID string) (*models.QueuedMessage, error) {
	if flowID == "" {
		return nil, fmt.Errorf("%w: flow id must not be empty", ErrInvalidQueueRequest)
	}

	if q.deployment != nil {
		deployed, err := q.deployment.IsDeployed(ctx, flowID)
		if err != nil {
			return nil, fmt.Errorf("failed to check flow deployment: %w", err)
		}

		if !deployed {
			return nil, fmt.Errorf("%w: flow %s is not deployed", ErrInvalidQueueRequest, flowID)
		}
	}

	if maxAttempts <= 0 {
		maxAttempts = models.DefaultRetryPolicy.MaxAttempts
	}

	now := q.now()
	message := &models.QueuedMessage{
		ID:            uuid.New().String(),
		FlowID:        flowID,
		Payload:       payload,
		State:         models.MessageStatePending,
		MaxAttempts:   maxAttempts,
		CorrelationID: correlationID,
		EnqueuedAt:    now,
		UpdatedAt:     now,
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.activeCountLocked() >= q.capacity {
		return nil, fmt.Errorf("%w: bound of %d messages reached", ErrQueueCapacityExceeded, q.capacity)
	}

	q.messages[message.ID] = message
	q.persistLocked(ctx, message)

	return message, nil
}

// ProcessMessage moves a PENDING or RETRY_SCHEDULED message to PROCESSING.
func (q *Queue) ProcessMessage(ctx context.Context, id string) (*models.QueuedMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	message, ok := q.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}

	if err := q.processLocked(ctx, message); err != nil {
		return nil, err
	}

	return message, nil
}

// processLocked is the single PENDING/RETRY_SCHEDULED -> PROCESSING
// transition site. The attempt count increments on entry to PROCESSING.
func (q *Queue) processLocked(ctx context.Context, message *models.QueuedMessage) error {
	switch message.State {
	case models.MessageStatePending, models.MessageStateRetryScheduled:
	default:
		return fmt.Errorf("%w: message %s is %s", ErrAlreadyProcessing, message.ID, message.State)
	}

	message.State = models.MessageStateProcessing
	message.AttemptCount++
	message.UpdatedAt = q.now()
	q.persistLocked(ctx, message)

	return nil
}

// CompleteMessage moves a PROCESSING message to terminal COMPLETED.
func (q *Queue) CompleteMessage(ctx context.Context, id string) (*models.QueuedMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	message, ok := q.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}

	if message.State != models.MessageStateProcessing {
		return nil, fmt.Errorf("%w: cannot complete message in state %s", ErrInvalidTransition, message.State)
	}

	message.State = models.MessageStateCompleted
	message.NextAttemptAt = nil
	message.UpdatedAt = q.now()
	q.persistLocked(ctx, message)

	return message, nil
}

// ScheduleRetry records a dispatch failure for a PROCESSING message. With
// attempts remaining the message becomes RETRY_SCHEDULED with a backoff
// computed by the policy; otherwise it becomes terminal FAILED.
func (q *Queue) ScheduleRetry(ctx context.Context, id, errorMessage string, policy models.RetryPolicy) (*models.QueuedMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	message, ok := q.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}

	if message.State != models.MessageStateProcessing {
		return nil, fmt.Errorf("%w: cannot fail message in state %s", ErrInvalidTransition, message.State)
	}

	message.LastError = errorMessage
	message.UpdatedAt = q.now()

	if message.AttemptCount >= message.MaxAttempts {
		message.State = models.MessageStateFailed
		message.NextAttemptAt = nil
		q.persistLocked(ctx, message)

		return message, nil
	}

	nextAttempt := q.now().Add(policy.NextBackoff(message.AttemptCount))
	message.State = models.MessageStateRetryScheduled
	message.NextAttemptAt = &nextAttempt
	q.persistLocked(ctx, message)

	return message, nil
}

// FailMessage moves a PROCESSING message straight to FAILED without
// scheduling a retry, for failures that are never retried automatically.
// With attempts remaining the message stays eligible for RetryMessage.
func (q *Queue) FailMessage(ctx context.Context, id, errorMessage string) (*models.QueuedMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	message, ok := q.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}

	if message.State != models.MessageStateProcessing {
		return nil, fmt.Errorf("%w: cannot fail message in state %s", ErrInvalidTransition, message.State)
	}

	message.State = models.MessageStateFailed
	message.NextAttemptAt = nil
	message.LastError = errorMessage
	message.UpdatedAt = q.now()
	q.persistLocked(ctx, message)

	return message, nil
}

// RetryMessage manually re-arms a FAILED (not exhausted) or RETRY_SCHEDULED
// message, making it due immediately.
func (q *Queue) RetryMessage(ctx context.Context, id string) (*models.QueuedMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	message, ok := q.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}

	switch message.State {
	case models.MessageStateFailed, models.MessageStateRetryScheduled:
	default:
		return nil, fmt.Errorf("%w: message %s is %s", ErrRetryNotAllowed, id, message.State)
	}

	if message.AttemptCount >= message.MaxAttempts {
		return nil, fmt.Errorf("%w: message %s exhausted %d attempts", ErrRetryNotAllowed, id, message.MaxAttempts)
	}

	now := q.now()
	message.State = models.MessageStateRetryScheduled
	message.NextAttemptAt = &now
	message.UpdatedAt = now
	q.persistLocked(ctx, message)

	return message, nil
}

// CancelMessage cancels any non-terminal message.
func (q *Queue) CancelMessage(ctx context.Context, id string) (*models.QueuedMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	message, ok := q.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}

	if message.IsTerminal() {
		return nil, fmt.Errorf("%w: message %s is %s", ErrCancelNotAllowed, id, message.State)
	}

	message.State = models.MessageStateCancelled
	message.NextAttemptAt = nil
	message.UpdatedAt = q.now()
	q.persistLocked(ctx, message)

	return message, nil
}

// ProcessNextInQueue pops the oldest PENDING message (FIFO by enqueue time)
// and moves it to PROCESSING. An empty queue is a no-op returning nil.
func (q *Queue) ProcessNextInQueue(ctx context.Context) (*models.QueuedMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var oldest *models.QueuedMessage

	for _, message := range q.messages {
		if message.State != models.MessageStatePending {
			continue
		}

		if oldest == nil || message.EnqueuedAt.Before(oldest.EnqueuedAt) {
			oldest = message
		}
	}

	if oldest == nil {
		return nil, nil //nolint:nilnil // Empty queue is a documented no-op
	}

	if err := q.processLocked(ctx, oldest); err != nil {
		return nil, err
	}

	return oldest, nil
}

// DueMessages returns PENDING and RETRY_SCHEDULED messages whose next
// attempt time has passed, ordered by due time then enqueue time. A retried
// message sorts behind newer already-due messages; FIFO is best-effort
// across retries.
func (q *Queue) DueMessages(limit int) []*models.QueuedMessage {
	now := q.now()

	q.mu.RLock()
	defer q.mu.RUnlock()

	due := make([]*models.QueuedMessage, 0)

	for _, message := range q.messages {
		switch message.State {
		case models.MessageStatePending:
			due = append(due, message)
		case models.MessageStateRetryScheduled:
			if message.NextAttemptAt != nil && !message.NextAttemptAt.After(now) {
				due = append(due, message)
			}
		default:
		}
	}

	sort.Slice(due, func(i, j int) bool {
		iAt := due[i].EnqueuedAt
		if due[i].NextAttemptAt != nil {
			iAt = *due[i].NextAttemptAt
		}

		jAt := due[j].EnqueuedAt
		if due[j].NextAttemptAt != nil {
			jAt = *due[j].NextAttemptAt
		}

		if !iAt.Equal(jAt) {
			return iAt.Before(jAt)
		}

		return due[i].EnqueuedAt.Before(due[j].EnqueuedAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due
}

// Message returns a snapshot of one message.
func (q *Queue) Message(id string) (*models.QueuedMessage, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	message, ok := q.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, id)
	}

	snapshot := *message

	return &snapshot, nil
}

// Size counts messages not yet in a terminal state.
func (q *Queue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.activeCountLocked()
}

// ProcessingCount counts messages currently PROCESSING.
func (q *Queue) ProcessingCount() int {
	return q.countByState(models.MessageStateProcessing)
}

// FailedCount counts messages currently FAILED.
func (q *Queue) FailedCount() int {
	return q.countByState(models.MessageStateFailed)
}

// PendingMessages returns up to limit PENDING messages in FIFO order.
func (q *Queue) PendingMessages(limit int) []*models.QueuedMessage {
	q.mu.RLock()
	defer q.mu.RUnlock()

	pending := make([]*models.QueuedMessage, 0)

	for _, message := range q.messages {
		if message.State == models.MessageStatePending {
			snapshot := *message
			pending = append(pending, &snapshot)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].EnqueuedAt.Before(pending[j].EnqueuedAt)
	})

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	return pending
}

func (q *Queue) countByState(state models.MessageState) int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	count := 0

	for _, message := range q.messages {
		if message.State == state {
			count++
		}
	}

	return count
}

func (q *Queue) activeCountLocked() int {
	count := 0

	for _, message := range q.messages {
		if !message.IsTerminal() {
			count++
		}
	}

	return count
}

// persistLocked writes through to the repository. The in-memory state is
// authoritative; persistence failures are logged, not propagated.
func (q *Queue) persistLocked(ctx context.Context, message *models.QueuedMessage) {
	if q.repository == nil {
		return
	}

	snapshot := *message
	if err := q.repository.SaveMessage(ctx, &snapshot); err != nil {
		q.logger.ErrorContext(ctx, "Failed to persist queued message",
			"message_id", message.ID,
			"error", err)
	}
}
