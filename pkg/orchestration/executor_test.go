package orchestration

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/flowmesh/flowmesh/pkg/conditions"
	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/protocol"
	"github.com/flowmesh/flowmesh/pkg/queue"
	"github.com/flowmesh/flowmesh/pkg/registry"
	"github.com/flowmesh/flowmesh/pkg/router"
	"github.com/flowmesh/flowmesh/pkg/targets"
	"github.com/flowmesh/flowmesh/pkg/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFlowSource struct {
	mu    sync.Mutex
	flows map[string]*models.IntegrationFlow
}

func newStubFlowSource(flows ...*models.IntegrationFlow) *stubFlowSource {
	source := &stubFlowSource{flows: make(map[string]*models.IntegrationFlow)}
	for _, flow := range flows {
		source.flows[flow.ID] = flow
	}

	return source
}

func (s *stubFlowSource) FlowByID(_ context.Context, id string) (*models.IntegrationFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, ok := s.flows[id]
	if !ok {
		return nil, errors.New("not found")
	}

	return flow, nil
}

func (s *stubFlowSource) IsDeployed(ctx context.Context, id string) (bool, error) {
	flow, err := s.FlowByID(ctx, id)
	if err != nil {
		return false, nil
	}

	return flow.IsDeployed(), nil
}

type stubAdapter struct {
	dispatch func(target *models.OrchestrationTarget, payload map[string]any) (*protocol.DispatchResult, error)
}

func (a *stubAdapter) Dispatch(_ context.Context, target *models.OrchestrationTarget, payload map[string]any, _ models.ExecutionContext) (*protocol.DispatchResult, error) {
	return a.dispatch(target, payload)
}

type stubFactory struct {
	adapterID string
	dispatch  func(target *models.OrchestrationTarget, payload map[string]any) (*protocol.DispatchResult, error)
}

func (f *stubFactory) ID() string { return f.adapterID }

func (f *stubFactory) Schema() map[string]any { return nil }

func (f *stubFactory) Create(_ map[string]any) (protocol.Adapter, error) {
	return &stubAdapter{dispatch: f.dispatch}, nil
}

type fixture struct {
	executor *Executor
	flows    *stubFlowSource
	targets  *targets.Registry
	routers  *router.Engine
	tracker  *tracker.Tracker
	adapters *registry.Registry
}

func newFixture(t *testing.T, flow *models.IntegrationFlow, dispatch func(target *models.OrchestrationTarget, payload map[string]any) (*protocol.DispatchResult, error)) *fixture {
	t.Helper()

	logger := slog.Default()

	flows := newStubFlowSource(flow)
	targetRegistry := targets.NewRegistry()
	targetRegistry.LoadFlow(flow)

	routerEngine := router.NewEngine(logger, conditions.NewEvaluator(nil))
	executionTracker := tracker.NewTracker(logger)

	adapterRegistry := registry.NewRegistry(logger)
	adapterRegistry.Register(&stubFactory{adapterID: "stub", dispatch: dispatch})

	executor := NewExecutor(logger, flows, targetRegistry, routerEngine, executionTracker, adapterRegistry)

	return &fixture{
		executor: executor,
		flows:    flows,
		targets:  targetRegistry,
		routers:  routerEngine,
		tracker:  executionTracker,
		adapters: adapterRegistry,
	}
}

func deployedFlow(targets ...*models.OrchestrationTarget) *models.IntegrationFlow {
	return &models.IntegrationFlow{
		ID:      "flow-1",
		Name:    "order-routing",
		State:   models.DeploymentStateDeployed,
		Targets: targets,
	}
}

func target(id string, order int, active bool) *models.OrchestrationTarget {
	return &models.OrchestrationTarget{
		ID:             id,
		FlowID:         "flow-1",
		Name:           id,
		ExecutionOrder: order,
		Active:         active,
		AdapterType:    "stub",
		CreatedAt:      time.Now().UTC(),
	}
}

func okDispatch(_ *models.OrchestrationTarget, _ map[string]any) (*protocol.DispatchResult, error) {
	return &protocol.DispatchResult{Success: true, ResponseData: map[string]any{"ok": true}}, nil
}

func TestExecute_DispatchOrderSkipsInactiveTargets(t *testing.T) {
	flow := deployedFlow(
		target("T2", 2, false),
		target("T3", 3, true),
		target("T1", 1, true),
	)

	f := newFixture(t, flow, okDispatch)

	result, err := f.executor.Execute(context.Background(), "flow-1", map[string]any{"type": "A"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.Len(t, result.TargetResults, 2)
	assert.Equal(t, "T1", result.TargetResults[0].TargetID)
	assert.Equal(t, "T3", result.TargetResults[1].TargetID)

	trace := f.tracker.GetExecutionTrace(result.ExecutionID)
	require.NotNil(t, trace)
	assert.Equal(t, models.ExecutionStatusCompleted, trace.Status)
	require.Len(t, trace.Steps, 2)
	assert.Equal(t, "T1", trace.Steps[0].StepName)
	assert.Equal(t, "T3", trace.Steps[1].StepName)
}

func TestExecute_FlowNotFound(t *testing.T) {
	f := newFixture(t, deployedFlow(), okDispatch)

	_, err := f.executor.Execute(context.Background(), "missing", nil)
	require.ErrorIs(t, err, ErrFlowNotFound)
}

func TestExecute_DraftFlowRejected(t *testing.T) {
	flow := deployedFlow(target("T1", 1, true))
	flow.State = models.DeploymentStateDraft

	f := newFixture(t, flow, okDispatch)

	_, err := f.executor.Execute(context.Background(), "flow-1", nil)
	require.ErrorIs(t, err, ErrFlowNotExecutable)
}

func TestExecute_DispatchFailureFailsAllPolicy(t *testing.T) {
	flow := deployedFlow(target("T1", 1, true), target("T2", 2, true))

	f := newFixture(t, flow, func(tgt *models.OrchestrationTarget, _ map[string]any) (*protocol.DispatchResult, error) {
		if tgt.ID == "T1" {
			return &protocol.DispatchResult{Success: false, ErrorMessage: "boom"}, errors.New("boom")
		}

		return okDispatch(tgt, nil)
	})

	result, err := f.executor.Execute(context.Background(), "flow-1", nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.Len(t, result.TargetResults, 2)
	assert.False(t, result.TargetResults[0].Success)
	assert.True(t, result.TargetResults[1].Success)

	trace := f.tracker.GetExecutionTrace(result.ExecutionID)
	assert.Equal(t, models.ExecutionStatusFailed, trace.Status)
}

func TestExecute_AnyPolicySucceedsWithOneFailure(t *testing.T) {
	flow := deployedFlow(target("T1", 1, true), target("T2", 2, true))
	flow.SuccessPolicy = models.SuccessPolicyAnyTarget

	f := newFixture(t, flow, func(tgt *models.OrchestrationTarget, _ map[string]any) (*protocol.DispatchResult, error) {
		if tgt.ID == "T1" {
			return nil, errors.New("down")
		}

		return okDispatch(tgt, nil)
	})

	result, err := f.executor.Execute(context.Background(), "flow-1", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestExecute_FailFastStopsAfterFirstFailure(t *testing.T) {
	flow := deployedFlow(target("T1", 1, true), target("T2", 2, true))
	flow.FailFast = true

	var dispatched []string

	f := newFixture(t, flow, func(tgt *models.OrchestrationTarget, _ map[string]any) (*protocol.DispatchResult, error) {
		dispatched = append(dispatched, tgt.ID)

		return nil, errors.New("down")
	})

	result, err := f.executor.Execute(context.Background(), "flow-1", nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, []string{"T1"}, dispatched)
	require.Len(t, result.TargetResults, 1)
}

func TestExecute_MissingRequiredMappingFailsTargetOnly(t *testing.T) {
	t1 := target("T1", 1, true)
	t1.Mappings = []*models.FieldMapping{
		{ID: "m1", TargetID: "T1", SourcePath: "order.absent", TargetPath: "x", Required: true, Active: true},
	}

	flow := deployedFlow(t1, target("T2", 2, true))

	f := newFixture(t, flow, okDispatch)

	result, err := f.executor.Execute(context.Background(), "flow-1", map[string]any{"order": map[string]any{}})
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.Len(t, result.TargetResults, 2)
	assert.False(t, result.TargetResults[0].Success)
	assert.Contains(t, result.TargetResults[0].ErrorMessage, "mapping failed")
	assert.True(t, result.TargetResults[1].Success)
}

func TestExecute_MappingsShapeOutboundPayload(t *testing.T) {
	t1 := target("T1", 1, true)
	t1.Mappings = []*models.FieldMapping{
		{ID: "m1", TargetID: "T1", SourcePath: "order.id", TargetPath: "reference", Active: true},
	}

	flow := deployedFlow(t1)

	var outbound map[string]any

	f := newFixture(t, flow, func(_ *models.OrchestrationTarget, payload map[string]any) (*protocol.DispatchResult, error) {
		outbound = payload

		return &protocol.DispatchResult{Success: true}, nil
	})

	_, err := f.executor.Execute(context.Background(), "flow-1", map[string]any{
		"order": map[string]any{"id": "o-42"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"reference": "o-42"}, outbound)
}

func TestExecute_RouterExcludesTarget(t *testing.T) {
	t1 := target("T1", 1, true)
	t1.RouterID = "r-1"

	t2 := target("T2", 2, true)
	t2.RouterID = "r-1"

	flow := deployedFlow(t1, t2)

	f := newFixture(t, flow, okDispatch)

	_, err := f.routers.CreateChoiceRouter("r-1", "flow-1", "type-router", []models.RouterChoice{
		{Condition: `type == "A"`, ConditionType: models.ConditionTypeSimple, TargetIDs: []string{"T1"}},
	}, nil)
	require.NoError(t, err)

	result, err := f.executor.Execute(context.Background(), "flow-1", map[string]any{"type": "A"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.Len(t, result.TargetResults, 2)
	assert.True(t, result.TargetResults[0].Success)
	assert.True(t, result.TargetResults[1].Skipped)

	trace := f.tracker.GetExecutionTrace(result.ExecutionID)
	require.Len(t, trace.Steps, 1)
	assert.Equal(t, "T1", trace.Steps[0].StepName)
}

func TestExecute_DanglingRouterIsStepFailure(t *testing.T) {
	t1 := target("T1", 1, true)
	t1.RouterID = "missing"

	flow := deployedFlow(t1)

	f := newFixture(t, flow, okDispatch)

	result, err := f.executor.Execute(context.Background(), "flow-1", nil)
	require.NoError(t, err)

	require.Len(t, result.TargetResults, 1)
	assert.False(t, result.TargetResults[0].Success)
	assert.Contains(t, result.TargetResults[0].ErrorMessage, "router")
	assert.Equal(t, models.FailureKindConfiguration, result.TargetResults[0].FailureKind)

	// The configuration failure counts against the all-targets policy.
	assert.False(t, result.Success)
	assert.Equal(t, models.FailureKindConfiguration, result.FailureKind)

	trace := f.tracker.GetExecutionTrace(result.ExecutionID)
	assert.Equal(t, models.ExecutionStatusFailed, trace.Status)
}

func TestCancelExecution_StopsBeforeNextTarget(t *testing.T) {
	flow := deployedFlow(target("T1", 1, true), target("T2", 2, true))

	f := newFixture(t, flow, okDispatch)

	var executor *Executor

	dispatchCount := 0
	f.adapters.Register(&stubFactory{adapterID: "stub", dispatch: func(_ *models.OrchestrationTarget, _ map[string]any) (*protocol.DispatchResult, error) {
		dispatchCount++

		// Cancel during the first dispatch; the executor must stop before T2.
		trace := f.tracker.ActiveExecutions()
		if len(trace) > 0 {
			executor.CancelExecution(context.Background(), trace[0].ID)
		}

		return &protocol.DispatchResult{Success: true}, nil
	}})

	executor = f.executor

	result, err := executor.Execute(context.Background(), "flow-1", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, dispatchCount)
	assert.False(t, result.Success)
	assert.Equal(t, "execution cancelled", result.Message)

	trace := f.tracker.GetExecutionTrace(result.ExecutionID)
	assert.Equal(t, models.ExecutionStatusCancelled, trace.Status)
}

func TestCancelExecution_FalseWhenTerminal(t *testing.T) {
	flow := deployedFlow(target("T1", 1, true))

	f := newFixture(t, flow, okDispatch)

	result, err := f.executor.Execute(context.Background(), "flow-1", nil)
	require.NoError(t, err)

	assert.False(t, f.executor.CancelExecution(context.Background(), result.ExecutionID))
	assert.False(t, f.executor.CancelExecution(context.Background(), "unknown"))
}

func TestExecuteAsync_CompletionObservableViaTracker(t *testing.T) {
	flow := deployedFlow(target("T1", 1, true))

	f := newFixture(t, flow, okDispatch)

	executionID, err := f.executor.ExecuteAsync(context.Background(), "flow-1", nil)
	require.NoError(t, err)
	require.NotEmpty(t, executionID)

	require.Eventually(t, func() bool {
		trace := f.tracker.GetExecutionTrace(executionID)

		return trace != nil && trace.Status.IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)

	trace := f.tracker.GetExecutionTrace(executionID)
	assert.Equal(t, models.ExecutionStatusCompleted, trace.Status)
}

func TestExecuteQueuedMessage_Lifecycle(t *testing.T) {
	flow := deployedFlow(target("T1", 1, true))

	f := newFixture(t, flow, okDispatch)

	q := queue.NewQueue(slog.Default(), f.flows, nil, 10)
	f.executor.WithQueue(q)

	message, err := q.QueueMessage(context.Background(), "flow-1", map[string]any{"type": "A"}, 3, "corr-1")
	require.NoError(t, err)

	result, err := f.executor.ExecuteQueuedMessage(context.Background(), message.ID)
	require.NoError(t, err)
	assert.True(t, result.Success)

	stored, err := q.Message(message.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MessageStateCompleted, stored.State)
}

func TestExecuteQueuedMessage_FailureSchedulesRetry(t *testing.T) {
	flow := deployedFlow(target("T1", 1, true))

	f := newFixture(t, flow, func(_ *models.OrchestrationTarget, _ map[string]any) (*protocol.DispatchResult, error) {
		return nil, errors.New("endpoint down")
	})

	q := queue.NewQueue(slog.Default(), f.flows, nil, 10)
	f.executor.WithQueue(q)

	message, err := q.QueueMessage(context.Background(), "flow-1", nil, 3, "")
	require.NoError(t, err)

	result, err := f.executor.ExecuteQueuedMessage(context.Background(), message.ID)
	require.NoError(t, err)
	assert.False(t, result.Success)

	stored, err := q.Message(message.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MessageStateRetryScheduled, stored.State)
	assert.Equal(t, 1, stored.AttemptCount)
}

func TestExecute_ValidationFailureNotRetried(t *testing.T) {
	t1 := target("T1", 1, true)
	t1.Mappings = []*models.FieldMapping{
		{ID: "m1", TargetID: "T1", SourcePath: "order.absent", TargetPath: "x", Required: true, Active: true},
	}

	f := newFixture(t, deployedFlow(t1), okDispatch)

	q := queue.NewQueue(slog.Default(), f.flows, nil, 10)
	f.executor.WithQueue(q)

	result, err := f.executor.Execute(context.Background(), "flow-1", map[string]any{"order": map[string]any{}})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, models.FailureKindValidation, result.TargetResults[0].FailureKind)

	// Validation failures are reported to the caller, never retried.
	assert.Empty(t, q.PendingMessages(10))
}

func TestExecute_DispatchFailureEnqueuesRetry(t *testing.T) {
	flow := deployedFlow(target("T1", 1, true))

	f := newFixture(t, flow, func(_ *models.OrchestrationTarget, _ map[string]any) (*protocol.DispatchResult, error) {
		return nil, errors.New("endpoint down")
	})

	q := queue.NewQueue(slog.Default(), f.flows, nil, 10)
	f.executor.WithQueue(q)

	result, err := f.executor.Execute(context.Background(), "flow-1", nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, models.FailureKindDispatch, result.FailureKind)
	require.Len(t, q.PendingMessages(10), 1)
}

func TestExecuteQueuedMessage_ValidationFailureGoesTerminal(t *testing.T) {
	t1 := target("T1", 1, true)
	t1.Mappings = []*models.FieldMapping{
		{ID: "m1", TargetID: "T1", SourcePath: "order.absent", TargetPath: "x", Required: true, Active: true},
	}

	f := newFixture(t, deployedFlow(t1), okDispatch)

	q := queue.NewQueue(slog.Default(), f.flows, nil, 10)
	f.executor.WithQueue(q)

	message, err := q.QueueMessage(context.Background(), "flow-1", map[string]any{"order": map[string]any{}}, 3, "")
	require.NoError(t, err)

	result, err := f.executor.ExecuteQueuedMessage(context.Background(), message.ID)
	require.NoError(t, err)
	assert.False(t, result.Success)

	stored, err := q.Message(message.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MessageStateFailed, stored.State)
	assert.Nil(t, stored.NextAttemptAt)
}

func TestExecuteQueuedMessage_RetryUsesTargetPolicy(t *testing.T) {
	t1 := target("T1", 1, true)
	t1.RetryPolicy = &models.RetryPolicy{MaxAttempts: 5, BaseBackoff: time.Minute, MaxBackoff: 10 * time.Minute}

	f := newFixture(t, deployedFlow(t1), func(_ *models.OrchestrationTarget, _ map[string]any) (*protocol.DispatchResult, error) {
		return nil, errors.New("endpoint down")
	})

	q := queue.NewQueue(slog.Default(), f.flows, nil, 10)
	f.executor.WithQueue(q)

	message, err := q.QueueMessage(context.Background(), "flow-1", nil, 5, "")
	require.NoError(t, err)

	_, err = f.executor.ExecuteQueuedMessage(context.Background(), message.ID)
	require.NoError(t, err)

	stored, err := q.Message(message.ID)
	require.NoError(t, err)
	require.Equal(t, models.MessageStateRetryScheduled, stored.State)
	require.NotNil(t, stored.NextAttemptAt)

	// The target's one-minute base backoff puts the due time well past the
	// default policy's ten seconds.
	assert.True(t, stored.NextAttemptAt.After(time.Now().Add(time.Minute)))
}

func TestValidateFlow(t *testing.T) {
	t1 := target("T1", 1, true)
	t1.Mappings = []*models.FieldMapping{
		{ID: "m1", TargetID: "T1", SourcePath: "order.id", TargetPath: "reference", Active: true},
	}

	flow := deployedFlow(t1)

	f := newFixture(t, flow, okDispatch)

	result, err := f.executor.ValidateFlow(context.Background(), "flow-1")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestValidateFlow_UnknownAdapterType(t *testing.T) {
	t1 := target("T1", 1, true)
	t1.AdapterType = "nope"

	f := newFixture(t, deployedFlow(t1), okDispatch)

	result, err := f.executor.ValidateFlow(context.Background(), "flow-1")
	require.NoError(t, err)

	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "not registered")
}

func TestValidateFlow_DanglingRouterReference(t *testing.T) {
	t1 := target("T1", 1, true)
	t1.RouterID = "r-1"

	f := newFixture(t, deployedFlow(t1), okDispatch)

	_, err := f.routers.CreateChoiceRouter("r-1", "flow-1", "router", []models.RouterChoice{
		{Condition: `type == "A"`, ConditionType: models.ConditionTypeSimple, TargetIDs: []string{"ghost"}},
	}, nil)
	require.NoError(t, err)

	result, err := f.executor.ValidateFlow(context.Background(), "flow-1")
	require.NoError(t, err)

	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "ghost")
}

func TestValidateFlow_NeverDispatches(t *testing.T) {
	dispatched := false

	t1 := target("T1", 1, true)

	f := newFixture(t, deployedFlow(t1), func(_ *models.OrchestrationTarget, _ map[string]any) (*protocol.DispatchResult, error) {
		dispatched = true

		return &protocol.DispatchResult{Success: true}, nil
	})

	_, err := f.executor.ValidateFlow(context.Background(), "flow-1")
	require.NoError(t, err)
	assert.False(t, dispatched)
}
