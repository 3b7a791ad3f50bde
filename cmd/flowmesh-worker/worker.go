// Package main provides the FlowMesh worker, which consumes queued message
// events and dispatches them through the orchestration executor.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowmesh/flowmesh/pkg/conditions"
	"github.com/flowmesh/flowmesh/pkg/eventbus"
	"github.com/flowmesh/flowmesh/pkg/events"
	"github.com/flowmesh/flowmesh/pkg/orchestration"
	"github.com/flowmesh/flowmesh/pkg/persistence"
	"github.com/flowmesh/flowmesh/pkg/queue"
	"github.com/flowmesh/flowmesh/pkg/registry"
	"github.com/flowmesh/flowmesh/pkg/router"
	"github.com/flowmesh/flowmesh/pkg/services"
	"github.com/flowmesh/flowmesh/pkg/targets"
	"github.com/flowmesh/flowmesh/pkg/tracker"
	"github.com/robfig/cron/v3"
)

// retrySweepSchedule re-arms due retry-scheduled messages every ten seconds.
const retrySweepSchedule = "*/10 * * * * *"

const sweepBatchSize = 50

type WorkerManager struct {
	id            string
	logger        *slog.Logger
	persistence   persistence.Persistence
	eventBus      eventbus.EventBus
	queue         *queue.Queue
	flowService   *services.Flow
	routerService *services.Router
	executor      *orchestration.Executor
	cron          *cron.Cron
}

func NewWorkerManager(
	id string,
	store persistence.Persistence,
	queueRepository queue.Repository,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	adapterRegistry *registry.Registry,
) *WorkerManager {
	logger = logger.With("module", "flowmesh-worker", "worker_id", id)

	targetRegistry := targets.NewRegistry()
	routerEngine := router.NewEngine(logger, conditions.NewEvaluator(nil))
	executionTracker := tracker.NewTracker(logger)

	flowService := services.NewFlow(store, targetRegistry)
	messageQueue := queue.NewQueue(logger, flowService, queueRepository, 0)

	executor := orchestration.NewExecutor(
		logger, flowService, targetRegistry, routerEngine, executionTracker, adapterRegistry,
	).WithQueue(messageQueue).WithPublisher(eventBus).WithWorkerID(id).WithExecutionStore(store)

	return &WorkerManager{
		id:            id,
		logger:        logger,
		persistence:   store,
		eventBus:      eventBus,
		queue:         messageQueue,
		flowService:   flowService,
		routerService: services.NewRouter(routerEngine, store),
		executor:      executor,
		cron:          cron.New(cron.WithSeconds()),
	}
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	if err := w.warmup(ctx); err != nil {
		return err
	}

	err := w.eventBus.Subscribe(ctx, func(ctx context.Context, event events.Event) error {
		queued, ok := event.(*events.MessageQueued)
		if !ok {
			// Other lifecycle events are published for observers, not workers.
			return nil
		}

		return w.handleMessageQueued(ctx, queued)
	})
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	if _, err := w.cron.AddFunc(retrySweepSchedule, func() {
		w.sweepDueMessages(ctx)
	}); err != nil {
		return err
	}

	w.cron.Start()
	defer w.cron.Stop()

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

// warmup restores runtime state from the store so the worker can execute
// flows deployed before it started.
func (w *WorkerManager) warmup(ctx context.Context) error {
	if err := w.flowService.LoadDeployedFlows(ctx); err != nil {
		return err
	}

	flows, err := w.persistence.Flows(ctx)
	if err != nil {
		return err
	}

	flowIDs := make([]string, 0, len(flows))
	for _, flow := range flows {
		flowIDs = append(flowIDs, flow.ID)
	}

	if err := w.routerService.LoadRouters(ctx, flowIDs); err != nil {
		return err
	}

	return w.queue.Load(ctx)
}

func (w *WorkerManager) handleMessageQueued(ctx context.Context, event *events.MessageQueued) error {
	logger := w.logger.With(
		"flow_id", event.FlowID,
		"message_id", event.MessageID,
		"event_id", event.ID,
	)
	logger.InfoContext(ctx, "Processing queued message event")

	// The queue is write-through; pick up messages admitted by other
	// processes before dispatching.
	if err := w.queue.Load(ctx); err != nil {
		return err
	}

	result, err := w.executor.ExecuteQueuedMessage(ctx, event.MessageID)
	if err != nil {
		// Another worker already claimed the message; ack, don't redeliver.
		if errors.Is(err, queue.ErrAlreadyProcessing) || errors.Is(err, queue.ErrMessageNotFound) {
			logger.InfoContext(ctx, "Message already claimed", "error", err)

			return nil
		}

		logger.ErrorContext(ctx, "Failed to execute queued message", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Queued message processed",
		"execution_id", result.ExecutionID,
		"success", result.Success)

	return nil
}

// sweepDueMessages re-dispatches messages whose retry backoff has elapsed.
func (w *WorkerManager) sweepDueMessages(ctx context.Context) {
	if err := w.queue.Load(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to refresh queue state", "error", err)

		return
	}

	for _, message := range w.queue.DueMessages(sweepBatchSize) {
		result, err := w.executor.ExecuteQueuedMessage(ctx, message.ID)
		if err != nil {
			w.logger.ErrorContext(ctx, "Failed to dispatch due message",
				"message_id", message.ID,
				"error", err)

			continue
		}

		w.logger.InfoContext(ctx, "Due message dispatched",
			"message_id", message.ID,
			"execution_id", result.ExecutionID,
			"success", result.Success)
	}
}
