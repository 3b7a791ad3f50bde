package tracker

import (
	"sync"
	"testing"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartMonitoringAndTrace(t *testing.T) {
	tr := NewTracker(nil)

	executionID := tr.StartMonitoring("flow-1", "orchestration", "corr-1")
	require.NotEmpty(t, executionID)

	trace := tr.GetExecutionTrace(executionID)
	require.NotNil(t, trace)
	assert.Equal(t, "flow-1", trace.FlowID)
	assert.Equal(t, models.ExecutionStatusStarted, trace.Status)
	assert.Equal(t, "corr-1", trace.CorrelationID)
	assert.Empty(t, trace.Steps)
}

func TestUpdateProgress_PreservesOrder(t *testing.T) {
	tr := NewTracker(nil)
	executionID := tr.StartMonitoring("flow-1", "orchestration", "")

	tr.UpdateProgress(executionID, "T1", "dispatched")
	tr.UpdateProgress(executionID, "T2", "dispatched")
	tr.UpdateProgress(executionID, "T3", "dispatched")

	trace := tr.GetExecutionTrace(executionID)
	require.Len(t, trace.Steps, 3)
	assert.Equal(t, "T1", trace.Steps[0].StepName)
	assert.Equal(t, "T2", trace.Steps[1].StepName)
	assert.Equal(t, "T3", trace.Steps[2].StepName)
	assert.Equal(t, models.ExecutionStatusInProgress, trace.Status)
}

func TestMutatorsAreNoOpsOnUnknownID(t *testing.T) {
	tr := NewTracker(nil)

	tr.UpdateProgress("ghost", "step", "message")
	tr.CompleteExecution("ghost", true, "done")
	tr.RecordError("ghost", "boom", "detail")

	assert.False(t, tr.CancelExecution("ghost"))
	assert.Nil(t, tr.GetExecutionTrace("ghost"))
}

func TestCompleteExecution_TerminalIsImmutable(t *testing.T) {
	tr := NewTracker(nil)
	executionID := tr.StartMonitoring("flow-1", "orchestration", "")

	tr.CompleteExecution(executionID, true, "all targets dispatched")

	trace := tr.GetExecutionTrace(executionID)
	assert.Equal(t, models.ExecutionStatusCompleted, trace.Status)
	require.NotNil(t, trace.EndedAt)

	// Later mutations must not alter the terminal trace.
	tr.UpdateProgress(executionID, "late", "ignored")
	tr.CompleteExecution(executionID, false, "ignored")

	trace = tr.GetExecutionTrace(executionID)
	assert.Equal(t, models.ExecutionStatusCompleted, trace.Status)
	assert.Empty(t, trace.Steps)
	assert.Equal(t, "all targets dispatched", trace.Message)
}

func TestCancelExecution(t *testing.T) {
	tr := NewTracker(nil)
	executionID := tr.StartMonitoring("flow-1", "orchestration", "")

	assert.True(t, tr.CancelExecution(executionID))
	assert.True(t, tr.IsCancelled(executionID))

	// A second cancel reports false: the execution is already terminal.
	assert.False(t, tr.CancelExecution(executionID))

	trace := tr.GetExecutionTrace(executionID)
	assert.Equal(t, models.ExecutionStatusCancelled, trace.Status)
}

func TestRecordError_KeepsExecutionRunning(t *testing.T) {
	tr := NewTracker(nil)
	executionID := tr.StartMonitoring("flow-1", "orchestration", "")

	tr.UpdateProgress(executionID, "T1", "dispatched")
	tr.RecordError(executionID, "T2 dispatch failed", "connection refused")

	trace := tr.GetExecutionTrace(executionID)
	assert.Equal(t, models.ExecutionStatusInProgress, trace.Status)
	assert.Equal(t, "connection refused", trace.ErrorDetail)
	require.Len(t, trace.Steps, 2)
	assert.Equal(t, "error", trace.Steps[1].StepName)
}

func TestActiveExecutionsAndStatistics(t *testing.T) {
	tr := NewTracker(nil)

	running := tr.StartMonitoring("flow-1", "orchestration", "")
	done := tr.StartMonitoring("flow-1", "orchestration", "")
	failed := tr.StartMonitoring("flow-2", "orchestration", "")

	tr.CompleteExecution(done, true, "")
	tr.CompleteExecution(failed, false, "")

	active := tr.ActiveExecutions()
	require.Len(t, active, 1)
	assert.Equal(t, running, active[0].ID)

	stats := tr.Statistics()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
}

func TestSearchExecutions(t *testing.T) {
	tr := NewTracker(nil)

	first := tr.StartMonitoring("flow-1", "orchestration", "")
	second := tr.StartMonitoring("flow-2", "orchestration", "")

	tr.CompleteExecution(first, true, "")

	byFlow := tr.SearchExecutions(SearchCriteria{FlowID: "flow-1"})
	require.Len(t, byFlow, 1)
	assert.Equal(t, first, byFlow[0].ID)

	byStatus := tr.SearchExecutions(SearchCriteria{Status: models.ExecutionStatusStarted})
	require.Len(t, byStatus, 1)
	assert.Equal(t, second, byStatus[0].ID)
}

func TestFlowMetrics(t *testing.T) {
	tr := NewTracker(nil)

	done := tr.StartMonitoring("flow-1", "orchestration", "")
	failed := tr.StartMonitoring("flow-1", "orchestration", "")
	tr.StartMonitoring("flow-2", "orchestration", "")

	tr.CompleteExecution(done, true, "")
	tr.CompleteExecution(failed, false, "")

	metrics := tr.FlowMetrics("flow-1")
	assert.Equal(t, 2, metrics.TotalExecutions)
	assert.Equal(t, 1, metrics.Succeeded)
	assert.Equal(t, 1, metrics.Failed)
	require.NotNil(t, metrics.LastExecutedAt)
}

func TestConcurrentProgressUpdates(t *testing.T) {
	tr := NewTracker(nil)
	executionID := tr.StartMonitoring("flow-1", "orchestration", "")

	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()
			tr.UpdateProgress(executionID, "step", "concurrent")
		}()
	}

	wg.Wait()

	trace := tr.GetExecutionTrace(executionID)
	assert.Len(t, trace.Steps, 50)
}
