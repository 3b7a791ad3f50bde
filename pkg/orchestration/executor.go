// Package orchestration executes integration flows: it walks the flow's
// targets in execution order, resolves routing, applies field mappings,
// dispatches through adapters and records every step in the tracker.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowmesh/flowmesh/pkg/eventbus"
	"github.com/flowmesh/flowmesh/pkg/events"
	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/otelhelper"
	"github.com/flowmesh/flowmesh/pkg/queue"
	"github.com/flowmesh/flowmesh/pkg/registry"
	"github.com/flowmesh/flowmesh/pkg/router"
	"github.com/flowmesh/flowmesh/pkg/targets"
	"github.com/flowmesh/flowmesh/pkg/tracker"
	"github.com/flowmesh/flowmesh/pkg/transform"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const defaultDispatchTimeout = 30 * time.Second

var (
	// ErrFlowNotFound is returned when the flow id does not resolve.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrFlowNotExecutable is returned when the flow is not in DEPLOYED state.
	ErrFlowNotExecutable = errors.New("flow is not executable")
)

// FlowSource resolves flow definitions for execution.
type FlowSource interface {
	FlowByID(ctx context.Context, id string) (*models.IntegrationFlow, error)
}

// ExecutionStore persists finished execution traces for history queries
// across restarts.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, execution *models.FlowExecution) error
}

// Executor coordinates the per-target orchestration algorithm. Within one
// execution targets are dispatched sequentially; separate executions run
// concurrently without coordination.
type Executor struct {
	logger          *slog.Logger
	flows           FlowSource
	targets         *targets.Registry
	routers         *router.Engine
	tracker         *tracker.Tracker
	adapters        *registry.Registry
	queue           *queue.Queue
	publisher       eventbus.EventPublisher
	executions      ExecutionStore
	tracer          trace.Tracer
	workerID        string
	dispatchTimeout time.Duration
}

// NewExecutor creates an executor over the given collaborators. The queue,
// publisher and tracer are optional and attached with the With* methods.
func NewExecutor(
	logger *slog.Logger,
	flows FlowSource,
	targetRegistry *targets.Registry,
	routerEngine *router.Engine,
	executionTracker *tracker.Tracker,
	adapterRegistry *registry.Registry,
) *Executor {
	return &Executor{
		logger:          logger.With("module", "orchestration"),
		flows:           flows,
		targets:         targetRegistry,
		routers:         routerEngine,
		tracker:         executionTracker,
		adapters:        adapterRegistry,
		tracer:          noop.NewTracerProvider().Tracer("orchestration"),
		dispatchTimeout: defaultDispatchTimeout,
	}
}

// WithQueue attaches the message queue used to schedule dispatch retries.
func (e *Executor) WithQueue(q *queue.Queue) *Executor {
	e.queue = q

	return e
}

// WithExecutionStore attaches the store terminal execution traces are
// written to.
func (e *Executor) WithExecutionStore(store ExecutionStore) *Executor {
	e.executions = store

	return e
}

// WithPublisher attaches the lifecycle event publisher.
func (e *Executor) WithPublisher(publisher eventbus.EventPublisher) *Executor {
	e.publisher = publisher

	return e
}

// WithTracer attaches an OpenTelemetry tracer.
func (e *Executor) WithTracer(tracer trace.Tracer) *Executor {
	e.tracer = tracer

	return e
}

// WithWorkerID tags published events with the worker identity.
func (e *Executor) WithWorkerID(workerID string) *Executor {
	e.workerID = workerID

	return e
}

// WithDispatchTimeout bounds each adapter dispatch.
func (e *Executor) WithDispatchTimeout(timeout time.Duration) *Executor {
	if timeout > 0 {
		e.dispatchTimeout = timeout
	}

	return e
}

// Execute runs a flow synchronously, blocking until every target is
// processed or the flow fails terminally.
func (e *Executor) Execute(ctx context.Context, flowID string, input map[string]any) (*models.OrchestrationResult, error) {
	return e.execute(ctx, flowID, input, "", false)
}

// ExecuteAsync starts a flow execution and returns its execution id
// immediately. Completion is observable through the tracker only.
func (e *Executor) ExecuteAsync(ctx context.Context, flowID string, input map[string]any) (string, error) {
	flow, err := e.resolveFlow(ctx, flowID)
	if err != nil {
		return "", err
	}

	executionID := e.tracker.StartMonitoring(flow.ID, "orchestration", "")

	go func() {
		result := e.run(context.WithoutCancel(ctx), flow, executionID, input, "", false)
		e.logger.Debug("Async execution finished",
			"execution_id", executionID,
			"success", result.Success)
	}()

	return executionID, nil
}

// ExecuteQueuedMessage drives one queued message through an execution
// attempt: PROCESSING before the run, COMPLETED on success, RETRY_SCHEDULED
// or FAILED on failure.
func (e *Executor) ExecuteQueuedMessage(ctx context.Context, messageID string) (*models.OrchestrationResult, error) {
	if e.queue == nil {
		return nil, errors.New("no queue attached")
	}

	message, err := e.queue.ProcessMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	result, err := e.execute(ctx, message.FlowID, message.Payload, message.CorrelationID, true)
	if err != nil {
		// Flow resolution failures are not dispatch errors; the message goes
		// FAILED and stays eligible for manual retry.
		if _, failErr := e.queue.FailMessage(ctx, message.ID, err.Error()); failErr != nil {
			e.logger.Error("Failed to fail message", "message_id", message.ID, "error", failErr)
		}

		return nil, err
	}

	switch {
	case result.Success:
		if _, err := e.queue.CompleteMessage(ctx, message.ID); err != nil {
			e.logger.Error("Failed to complete message", "message_id", message.ID, "error", err)
		}
	case result.FailureKind.Retryable():
		policy := models.DefaultRetryPolicy
		if result.RetryPolicy != nil {
			policy = *result.RetryPolicy
		}

		if _, err := e.queue.ScheduleRetry(ctx, message.ID, result.Message, policy); err != nil {
			e.logger.Error("Failed to schedule retry", "message_id", message.ID, "error", err)
		}
	default:
		// Validation and configuration failures are reported, not retried.
		if _, err := e.queue.FailMessage(ctx, message.ID, result.Message); err != nil {
			e.logger.Error("Failed to fail message", "message_id", message.ID, "error", err)
		}
	}

	return result, nil
}

// CancelExecution requests cooperative cancellation. The executor stops
// before starting the next target; an in-flight dispatch runs to its own
// timeout and its result is discarded.
func (e *Executor) CancelExecution(ctx context.Context, executionID string) bool {
	cancelled := e.tracker.CancelExecution(executionID)
	if cancelled {
		executionTrace := e.tracker.GetExecutionTrace(executionID)
		flowID := ""

		if executionTrace != nil {
			flowID = executionTrace.FlowID
		}

		e.publish(ctx, events.ExecutionCancelled{
			BaseEvent:   e.baseEvent(events.ExecutionCancelledEvent, flowID),
			ExecutionID: executionID,
		})
	}

	return cancelled
}

func (e *Executor) execute(ctx context.Context, flowID string, input map[string]any, correlationID string, fromQueue bool) (*models.OrchestrationResult, error) {
	flow, err := e.resolveFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}

	executionID := e.tracker.StartMonitoring(flow.ID, "orchestration", correlationID)

	return e.run(ctx, flow, executionID, input, correlationID, fromQueue), nil
}

func (e *Executor) resolveFlow(ctx context.Context, flowID string) (*models.IntegrationFlow, error) {
	flow, err := e.flows.FlowByID(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, flowID)
	}

	if !flow.IsDeployed() {
		return nil, fmt.Errorf("%w: flow %s is %s", ErrFlowNotExecutable, flow.ID, flow.State)
	}

	return flow, nil
}

// run walks the active targets in ascending execution order.
func (e *Executor) run(ctx context.Context, flow *models.IntegrationFlow, executionID string, input map[string]any, correlationID string, fromQueue bool) *models.OrchestrationResult {
	startedAt := time.Now()

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "orchestration.execute",
		attribute.String(otelhelper.FlowIDKey, flow.ID),
		attribute.String(otelhelper.ExecutionIDKey, executionID),
	)
	defer span.End()

	e.publish(ctx, events.ExecutionStarted{
		BaseEvent:   e.baseEvent(events.ExecutionStartedEvent, flow.ID),
		ExecutionID: executionID,
		TriggerData: input,
	})

	executionCtx := models.ExecutionContext{
		ID:            executionID,
		FlowID:        flow.ID,
		CorrelationID: correlationID,
		TriggerData:   input,
		Variables:     flow.Variables,
		StepResults:   map[string]any{},
		Metadata:      flow.Metadata,
	}

	result := &models.OrchestrationResult{
		ExecutionID: executionID,
		FlowID:      flow.ID,
	}

	var dispatched, succeeded int

	for _, target := range e.targets.GetFlowTargets(flow.ID, true) {
		if e.tracker.IsCancelled(executionID) {
			result.Success = false
			result.Message = "execution cancelled"

			e.publish(ctx, events.ExecutionCancelled{
				BaseEvent:   e.baseEvent(events.ExecutionCancelledEvent, flow.ID),
				ExecutionID: executionID,
			})
			e.persistTrace(ctx, executionID)

			return result
		}

		if target.RouterID != "" {
			matched, skip := e.resolveRouting(ctx, executionID, target, input, result)
			if skip {
				// Router configuration failures count against the success
				// policy; routing exclusions do not.
				if !matched {
					dispatched++
					noteFailure(result, models.FailureKindConfiguration, nil)

					if flow.FailFast {
						result.Message = fmt.Sprintf("fail-fast after router step for target %s", target.Name)

						break
					}
				}

				continue
			}
		}

		targetResult := e.dispatchTarget(ctx, executionID, target, input, &executionCtx)
		result.TargetResults = append(result.TargetResults, targetResult)

		dispatched++
		if targetResult.Success {
			succeeded++

			continue
		}

		noteFailure(result, targetResult.FailureKind, target)

		if !fromQueue && targetResult.FailureKind.Retryable() {
			e.scheduleFlowRetry(ctx, flow, target, input, correlationID)
		}

		if flow.FailFast {
			result.Message = fmt.Sprintf("fail-fast after target %s: %s", target.Name, targetResult.ErrorMessage)

			break
		}
	}

	result.Success = e.evaluateSuccess(flow, dispatched, succeeded)
	if result.Message == "" {
		result.Message = fmt.Sprintf("%d/%d targets dispatched successfully", succeeded, dispatched)
	}

	e.tracker.CompleteExecution(executionID, result.Success, result.Message)
	e.finish(ctx, flow, executionID, result, time.Since(startedAt))

	return result
}

// resolveRouting checks whether the router attached to a target includes it
// in the effective target set. Returns skip=true when the target must not be
// dispatched; matched is false only for configuration errors.
func (e *Executor) resolveRouting(ctx context.Context, executionID string, target *models.OrchestrationTarget, payload map[string]any, result *models.OrchestrationResult) (matched, skip bool) {
	config, err := e.routers.Router(target.RouterID)
	if err != nil {
		message := fmt.Sprintf("router %s not found", target.RouterID)

		e.tracker.UpdateProgress(executionID, target.Name, message)
		e.tracker.RecordError(executionID, message, err.Error())

		result.TargetResults = append(result.TargetResults, models.TargetResult{
			TargetID:     target.ID,
			TargetName:   target.Name,
			Success:      false,
			ErrorMessage: message,
			FailureKind:  models.FailureKindConfiguration,
		})

		return false, true
	}

	matchedTargets, err := e.routers.ExecuteRouting(ctx, config, payload)
	if err != nil {
		message := fmt.Sprintf("routing via %s failed", target.RouterID)

		e.tracker.UpdateProgress(executionID, target.Name, message)
		e.tracker.RecordError(executionID, message, err.Error())

		result.TargetResults = append(result.TargetResults, models.TargetResult{
			TargetID:     target.ID,
			TargetName:   target.Name,
			Success:      false,
			ErrorMessage: message,
			FailureKind:  models.FailureKindConfiguration,
		})

		return false, true
	}

	for _, id := range matchedTargets {
		if id == target.ID {
			return true, false
		}
	}

	e.logger.Debug("Target excluded by router",
		"target_id", target.ID,
		"router_id", target.RouterID)

	result.TargetResults = append(result.TargetResults, models.TargetResult{
		TargetID:   target.ID,
		TargetName: target.Name,
		Skipped:    true,
	})

	return true, true
}

// dispatchTarget applies the target's mappings and dispatches the outbound
// payload through its adapter. A step entry is recorded whatever the outcome.
func (e *Executor) dispatchTarget(ctx context.Context, executionID string, target *models.OrchestrationTarget, input map[string]any, executionCtx *models.ExecutionContext) models.TargetResult {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "orchestration.dispatch",
		attribute.String(otelhelper.TargetIDKey, target.ID),
		attribute.String(otelhelper.AdapterTypeKey, target.AdapterType),
	)
	defer span.End()

	startedAt := time.Now()

	targetResult := models.TargetResult{
		TargetID:   target.ID,
		TargetName: target.Name,
		Attempts:   1,
	}

	mappings := target.ActiveMappings()
	models.SortMappings(mappings)

	payload, err := transform.ApplyMappings(mappings, input, executionCtx)
	if err != nil {
		e.recordTargetFailure(ctx, executionID, target, &targetResult, "mapping failed", models.FailureKindValidation, err)

		return targetResult
	}

	adapter, err := e.adapters.CreateAdapter(target.AdapterType, target.AdapterConfig)
	if err != nil {
		e.recordTargetFailure(ctx, executionID, target, &targetResult, "adapter configuration invalid", models.FailureKindConfiguration, err)

		return targetResult
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, e.dispatchTimeout)
	dispatchResult, err := adapter.Dispatch(dispatchCtx, target, payload, *executionCtx)

	cancel()

	if err != nil || dispatchResult == nil || !dispatchResult.Success {
		if err == nil {
			if dispatchResult != nil {
				err = errors.New(dispatchResult.ErrorMessage)
			} else {
				err = errors.New("adapter returned no result")
			}
		}

		e.recordTargetFailure(ctx, executionID, target, &targetResult, "dispatch failed", models.FailureKindDispatch, err)

		return targetResult
	}

	targetResult.Success = true
	targetResult.ResponseData = dispatchResult.ResponseData
	executionCtx.StepResults[target.Name] = dispatchResult.ResponseData

	e.tracker.UpdateProgress(executionID, target.Name, "dispatched")
	e.publish(ctx, events.TargetDispatched{
		BaseEvent:   e.baseEvent(events.TargetDispatchedEvent, target.FlowID),
		ExecutionID: executionID,
		TargetID:    target.ID,
		TargetName:  target.Name,
		Duration:    time.Since(startedAt),
	})

	return targetResult
}

func (e *Executor) recordTargetFailure(ctx context.Context, executionID string, target *models.OrchestrationTarget, targetResult *models.TargetResult, message string, kind models.FailureKind, err error) {
	targetResult.Success = false
	targetResult.ErrorMessage = fmt.Sprintf("%s: %v", message, err)
	targetResult.FailureKind = kind

	e.logger.Warn("Target dispatch failed",
		"target_id", target.ID,
		"flow_id", target.FlowID,
		"error", err)

	e.tracker.UpdateProgress(executionID, target.Name, targetResult.ErrorMessage)
	e.tracker.RecordError(executionID, targetResult.ErrorMessage, err.Error())

	e.publish(ctx, events.TargetFailed{
		BaseEvent:   e.baseEvent(events.TargetFailedEvent, target.FlowID),
		ExecutionID: executionID,
		TargetID:    target.ID,
		TargetName:  target.Name,
		Error:       targetResult.ErrorMessage,
	})
}

// noteFailure records the first failure's class and, when retryable, the
// failing target's effective retry policy. Later failures keep the first
// classification.
func noteFailure(result *models.OrchestrationResult, kind models.FailureKind, target *models.OrchestrationTarget) {
	if result.FailureKind != "" {
		return
	}

	result.FailureKind = kind

	if kind.Retryable() && target != nil {
		policy := target.EffectiveRetryPolicy()
		result.RetryPolicy = &policy
	}
}

// scheduleFlowRetry enqueues a retry message when a directly-executed flow
// hits a dispatch failure and attempts remain. Queue-originated executions
// are retried on their own message instead.
func (e *Executor) scheduleFlowRetry(ctx context.Context, flow *models.IntegrationFlow, target *models.OrchestrationTarget, input map[string]any, correlationID string) {
	if e.queue == nil {
		return
	}

	policy := target.EffectiveRetryPolicy()

	message, err := e.queue.QueueMessage(ctx, flow.ID, input, policy.MaxAttempts, correlationID)
	if err != nil {
		e.logger.Error("Failed to enqueue retry", "flow_id", flow.ID, "error", err)

		return
	}

	e.publish(ctx, events.MessageQueued{
		BaseEvent:     e.baseEvent(events.MessageQueuedEvent, flow.ID),
		MessageID:     message.ID,
		CorrelationID: correlationID,
	})
}

// evaluateSuccess applies the flow's success policy over dispatched targets.
// Skipped targets do not count against either policy.
func (e *Executor) evaluateSuccess(flow *models.IntegrationFlow, dispatched, succeeded int) bool {
	switch flow.EffectiveSuccessPolicy() {
	case models.SuccessPolicyAnyTarget:
		return dispatched == 0 || succeeded > 0
	case models.SuccessPolicyAllTargets:
		return succeeded == dispatched
	default:
		return succeeded == dispatched
	}
}

func (e *Executor) finish(ctx context.Context, flow *models.IntegrationFlow, executionID string, result *models.OrchestrationResult, duration time.Duration) {
	e.persistTrace(ctx, executionID)

	if result.Success {
		e.publish(ctx, events.ExecutionCompleted{
			BaseEvent:   e.baseEvent(events.ExecutionCompletedEvent, flow.ID),
			ExecutionID: executionID,
			Duration:    duration,
		})

		return
	}

	e.publish(ctx, events.ExecutionFailed{
		BaseEvent:   e.baseEvent(events.ExecutionFailedEvent, flow.ID),
		ExecutionID: executionID,
		Error:       result.Message,
		Duration:    duration,
	})
}

// persistTrace writes the terminal trace through to the execution store.
// The tracker stays authoritative; store failures are logged, not fatal.
func (e *Executor) persistTrace(ctx context.Context, executionID string) {
	if e.executions == nil {
		return
	}

	execution := e.tracker.GetExecutionTrace(executionID)
	if execution == nil {
		return
	}

	if err := e.executions.SaveExecution(ctx, execution); err != nil {
		e.logger.Error("Failed to persist execution trace",
			"execution_id", executionID,
			"error", err)
	}
}

func (e *Executor) baseEvent(eventType events.EventType, flowID string) events.BaseEvent {
	return events.BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		FlowID:    flowID,
		WorkerID:  e.workerID,
	}
}

func (e *Executor) publish(ctx context.Context, event events.Event) {
	if e.publisher == nil {
		return
	}

	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Error("Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
