// Package tracker keeps the ledger of active and historical flow
// executions, used for monitoring, cancellation lookup and statistics.
package tracker

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/google/uuid"
)

// SearchCriteria filters execution traces.
type SearchCriteria struct {
	FlowID   string
	Status   models.ExecutionStatus
	FlowType string
	Since    *time.Time
	Until    *time.Time
	Limit    int
}

// executionEntry serializes writes per execution while reads take snapshots.
type executionEntry struct {
	mu        sync.Mutex
	execution *models.FlowExecution
	cancelled bool
}

// Tracker is the in-memory execution ledger. Entries are append-mostly:
// concurrent progress updates for one execution serialize on the entry
// lock, reads copy a snapshot and never hold entry locks across calls.
type Tracker struct {
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*executionEntry
}

// NewTracker creates an empty execution tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Tracker{
		logger:  logger.With("module", "execution_tracker"),
		entries: make(map[string]*executionEntry),
	}
}

// StartMonitoring opens a new execution trace in STARTED state and returns
// its execution id.
func (t *Tracker) StartMonitoring(flowID, flowType, correlationID string) string {
	executionID := "exec-" + uuid.New().String()[:8]

	entry := &executionEntry{
		execution: &models.FlowExecution{
			ID:            executionID,
			FlowID:        flowID,
			FlowType:      flowType,
			Status:        models.ExecutionStatusStarted,
			Steps:         make([]models.ExecutionStep, 0),
			CorrelationID: correlationID,
			StartedAt:     time.Now().UTC(),
		},
	}

	t.mu.Lock()
	t.entries[executionID] = entry
	t.mu.Unlock()

	return executionID
}

func (t *Tracker) entry(executionID string) (*executionEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, ok := t.entries[executionID]

	return entry, ok
}

// UpdateProgress appends a step record. Unknown execution ids are a no-op;
// terminal traces are immutable.
func (t *Tracker) UpdateProgress(executionID, step, message string) {
	entry, ok := t.entry(executionID)
	if !ok {
		t.logger.Warn("Progress update for unknown execution", "execution_id", executionID)

		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.execution.Status.IsTerminal() {
		return
	}

	entry.execution.Status = models.ExecutionStatusInProgress
	entry.execution.Steps = append(entry.execution.Steps, models.ExecutionStep{
		StepName:  step,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// CompleteExecution moves the trace to terminal COMPLETED or FAILED.
// Unknown execution ids are a no-op.
func (t *Tracker) CompleteExecution(executionID string, success bool, message string) {
	entry, ok := t.entry(executionID)
	if !ok {
		t.logger.Warn("Completion for unknown execution", "execution_id", executionID)

		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.execution.Status.IsTerminal() {
		return
	}

	now := time.Now().UTC()
	entry.execution.Message = message
	entry.execution.EndedAt = &now

	if success {
		entry.execution.Status = models.ExecutionStatusCompleted
	} else {
		entry.execution.Status = models.ExecutionStatusFailed
	}
}

// RecordError appends an error step and stores the error detail without
// terminating the execution. Unknown execution ids are a no-op.
func (t *Tracker) RecordError(executionID, message, detail string) {
	entry, ok := t.entry(executionID)
	if !ok {
		t.logger.Warn("Error record for unknown execution", "execution_id", executionID)

		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.execution.Status.IsTerminal() {
		return
	}

	entry.execution.ErrorDetail = detail
	entry.execution.Steps = append(entry.execution.Steps, models.ExecutionStep{
		StepName:  "error",
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// CancelExecution requests cooperative cancellation. Returns true only when
// the execution exists and was not already terminal.
func (t *Tracker) CancelExecution(executionID string) bool {
	entry, ok := t.entry(executionID)
	if !ok {
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.execution.Status.IsTerminal() {
		return false
	}

	now := time.Now().UTC()
	entry.cancelled = true
	entry.execution.Status = models.ExecutionStatusCancelled
	entry.execution.EndedAt = &now

	return true
}

// IsCancelled reports whether cancellation was requested for an execution.
// The executor polls this before starting each target.
func (t *Tracker) IsCancelled(executionID string) bool {
	entry, ok := t.entry(executionID)
	if !ok {
		return false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return entry.cancelled
}

// GetExecutionTrace returns a snapshot of one execution, or nil when the id
// is unknown.
func (t *Tracker) GetExecutionTrace(executionID string) *models.FlowExecution {
	entry, ok := t.entry(executionID)
	if !ok {
		return nil
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	return snapshot(entry.execution)
}

// ActiveExecutions returns snapshots of all non-terminal executions.
func (t *Tracker) ActiveExecutions() []*models.FlowExecution {
	return t.collect(func(execution *models.FlowExecution) bool {
		return !execution.Status.IsTerminal()
	})
}

// SearchExecutions returns snapshots matching all provided criteria, newest
// first.
func (t *Tracker) SearchExecutions(criteria SearchCriteria) []*models.FlowExecution {
	matches := t.collect(func(execution *models.FlowExecution) bool {
		if criteria.FlowID != "" && execution.FlowID != criteria.FlowID {
			return false
		}

		if criteria.Status != "" && execution.Status != criteria.Status {
			return false
		}

		if criteria.FlowType != "" && !strings.EqualFold(execution.FlowType, criteria.FlowType) {
			return false
		}

		if criteria.Since != nil && execution.StartedAt.Before(*criteria.Since) {
			return false
		}

		if criteria.Until != nil && execution.StartedAt.After(*criteria.Until) {
			return false
		}

		return true
	})

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].StartedAt.After(matches[j].StartedAt)
	})

	if criteria.Limit > 0 && len(matches) > criteria.Limit {
		matches = matches[:criteria.Limit]
	}

	return matches
}

// Statistics aggregates execution counts by status.
func (t *Tracker) Statistics() models.ExecutionStatistics {
	stats := models.ExecutionStatistics{}

	for _, execution := range t.collect(nil) {
		stats.Total++

		switch execution.Status {
		case models.ExecutionStatusCompleted:
			stats.Completed++
		case models.ExecutionStatusFailed:
			stats.Failed++
		case models.ExecutionStatusCancelled:
			stats.Cancelled++
		default:
			stats.Active++
		}
	}

	return stats
}

// FlowExecutionHistory returns the flow's most recent executions.
func (t *Tracker) FlowExecutionHistory(flowID string, limit int) []*models.FlowExecution {
	return t.SearchExecutions(SearchCriteria{FlowID: flowID, Limit: limit})
}

// FlowMetrics summarizes the historical executions of one flow.
func (t *Tracker) FlowMetrics(flowID string) models.FlowMetrics {
	metrics := models.FlowMetrics{FlowID: flowID}

	var totalDuration time.Duration

	var finished int

	for _, execution := range t.collect(func(execution *models.FlowExecution) bool {
		return execution.FlowID == flowID
	}) {
		metrics.TotalExecutions++

		switch execution.Status {
		case models.ExecutionStatusCompleted:
			metrics.Succeeded++
		case models.ExecutionStatusFailed:
			metrics.Failed++
		case models.ExecutionStatusCancelled:
			metrics.Cancelled++
		default:
		}

		if execution.EndedAt != nil {
			totalDuration += execution.EndedAt.Sub(execution.StartedAt)
			finished++
		}

		if metrics.LastExecutedAt == nil || execution.StartedAt.After(*metrics.LastExecutedAt) {
			startedAt := execution.StartedAt
			metrics.LastExecutedAt = &startedAt
		}
	}

	if finished > 0 {
		metrics.AverageDuration = totalDuration / time.Duration(finished)
	}

	return metrics
}

func (t *Tracker) collect(filter func(*models.FlowExecution) bool) []*models.FlowExecution {
	t.mu.RLock()
	entries := make([]*executionEntry, 0, len(t.entries))

	for _, entry := range t.entries {
		entries = append(entries, entry)
	}
	t.mu.RUnlock()

	result := make([]*models.FlowExecution, 0, len(entries))

	for _, entry := range entries {
		entry.mu.Lock()
		execution := snapshot(entry.execution)
		entry.mu.Unlock()

		if filter == nil || filter(execution) {
			result = append(result, execution)
		}
	}

	return result
}

func snapshot(execution *models.FlowExecution) *models.FlowExecution {
	clone := *execution
	clone.Steps = append([]models.ExecutionStep(nil), execution.Steps...)

	return &clone
}
