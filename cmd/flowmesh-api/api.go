// Package main provides the FlowMesh API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/flowmesh/flowmesh/pkg/conditions"
	"github.com/flowmesh/flowmesh/pkg/eventbus"
	"github.com/flowmesh/flowmesh/pkg/orchestration"
	"github.com/flowmesh/flowmesh/pkg/persistence"
	"github.com/flowmesh/flowmesh/pkg/queue"
	"github.com/flowmesh/flowmesh/pkg/registry"
	"github.com/flowmesh/flowmesh/pkg/router"
	"github.com/flowmesh/flowmesh/pkg/services"
	"github.com/flowmesh/flowmesh/pkg/targets"
	"github.com/flowmesh/flowmesh/pkg/tracker"
	"github.com/flowmesh/flowmesh/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger        *slog.Logger
	persistence   persistence.Persistence
	registry      *registry.Registry
	eventBus      eventbus.EventBus
	validate      *validator.Validate
	flowService   *services.Flow
	targetService *services.Target
	routerService *services.Router
	queue         *queue.Queue
	executor      *orchestration.Executor
	tracker       *tracker.Tracker
}

func NewAPI(
	logger *slog.Logger,
	store persistence.Persistence,
	queueRepository queue.Repository,
	adapterRegistry *registry.Registry,
	eventBus eventbus.EventBus,
) *API {
	targetRegistry := targets.NewRegistry()
	routerEngine := router.NewEngine(logger, conditions.NewEvaluator(nil))
	executionTracker := tracker.NewTracker(logger)

	flowService := services.NewFlow(store, targetRegistry)
	messageQueue := queue.NewQueue(logger, flowService, queueRepository, 0)

	executor := orchestration.NewExecutor(
		logger, flowService, targetRegistry, routerEngine, executionTracker, adapterRegistry,
	).WithQueue(messageQueue).WithPublisher(eventBus).WithExecutionStore(store)

	return &API{
		logger:        logger,
		persistence:   store,
		registry:      adapterRegistry,
		eventBus:      eventBus,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		flowService:   flowService,
		targetService: services.NewTarget(store),
		routerService: services.NewRouter(routerEngine, store),
		queue:         messageQueue,
		executor:      executor,
		tracker:       executionTracker,
	}
}

// Warmup restores runtime state from the store: deployed flows into the
// target registry, routers and routes into the engine, queued messages into
// the queue.
func (a *API) Warmup(ctx context.Context) error {
	if err := a.flowService.LoadDeployedFlows(ctx); err != nil {
		return err
	}

	flows, err := a.persistence.Flows(ctx)
	if err != nil {
		return err
	}

	flowIDs := make([]string, 0, len(flows))
	for _, flow := range flows {
		flowIDs = append(flowIDs, flow.ID)
	}

	if err := a.routerService.LoadRouters(ctx, flowIDs); err != nil {
		return err
	}

	return a.queue.Load(ctx)
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		a.flowService, a.targetService, a.routerService,
		a.queue, a.executor, a.tracker,
		a.registry, a.validate, a.eventBus,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("FlowMesh API")
	})

	f := app.Group("/flows")
	f.Get("/", handlers.GetFlows)
	f.Post("/", handlers.CreateFlow)
	f.Get("/:id", handlers.GetFlow)
	f.Patch("/:id", handlers.UpdateFlow)
	f.Delete("/:id", handlers.DeleteFlow)
	f.Post("/:id/deploy", handlers.DeployFlow)
	f.Post("/:id/undeploy", handlers.UndeployFlow)
	f.Get("/:id/validate", handlers.ValidateFlow)
	f.Post("/:id/execute", handlers.ExecuteFlow)

	// Target and mapping endpoints:
	f.Post("/:id/targets", handlers.CreateTarget)
	f.Patch("/:id/targets/:targetId", handlers.UpdateTarget)
	f.Delete("/:id/targets/:targetId", handlers.DeleteTarget)
	f.Post("/:id/targets/:targetId/mappings", handlers.CreateMapping)
	f.Delete("/:id/targets/:targetId/mappings/:mappingId", handlers.DeleteMapping)

	// Router and route endpoints:
	f.Post("/:id/routers", handlers.CreateRouter)
	f.Get("/:id/routers", handlers.GetFlowRouters)
	f.Post("/:id/routes", handlers.CreateRoute)
	f.Get("/:id/routes", handlers.GetFlowRoutes)

	app.Get("/routers/:routerId", handlers.GetRouter)
	app.Delete("/routers/:routerId", handlers.DeleteRouter)
	app.Post("/routers/:routerId/evaluate", handlers.EvaluateRouting)
	app.Patch("/routes/:routeId", handlers.UpdateRoute)
	app.Delete("/routes/:routeId", handlers.DeleteRoute)

	// Queue endpoints:
	f.Post("/:id/messages", handlers.EnqueueMessage)
	app.Get("/messages/:messageId", handlers.GetMessage)
	app.Post("/messages/:messageId/retry", handlers.RetryMessage)
	app.Post("/messages/:messageId/cancel", handlers.CancelMessage)
	app.Get("/queue/messages", handlers.GetPendingMessages)
	app.Get("/queue/stats", handlers.GetQueueStats)

	// Execution endpoints:
	f.Get("/:id/executions", handlers.GetFlowExecutions)
	f.Get("/:id/metrics", handlers.GetFlowMetrics)
	app.Get("/executions", handlers.SearchExecutions)
	app.Get("/executions/active", handlers.GetActiveExecutions)
	app.Get("/executions/stats", handlers.GetExecutionStats)
	app.Get("/executions/:executionId", handlers.GetExecution)
	app.Post("/executions/:executionId/cancel", handlers.CancelExecution)

	// Adapter endpoints:
	app.Get("/adapters", handlers.GetAdapterTypes)
	app.Get("/adapters/:type/schema", handlers.GetAdapterSchema)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
