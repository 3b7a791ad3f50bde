// Package web provides HTTP handlers and REST API endpoints for flow
// management, routing, queue operations and execution monitoring.
package web

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/flowmesh/flowmesh/pkg/eventbus"
	"github.com/flowmesh/flowmesh/pkg/events"
	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/orchestration"
	"github.com/flowmesh/flowmesh/pkg/queue"
	"github.com/flowmesh/flowmesh/pkg/registry"
	"github.com/flowmesh/flowmesh/pkg/services"
	"github.com/flowmesh/flowmesh/pkg/tracker"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	flowService   *services.Flow
	targetService *services.Target
	routerService *services.Router
	queue         *queue.Queue
	executor      *orchestration.Executor
	tracker       *tracker.Tracker
	registry      *registry.Registry
	validator     *validator.Validate
	publisher     eventbus.EventPublisher
}

func NewAPIHandlers(
	flowService *services.Flow,
	targetService *services.Target,
	routerService *services.Router,
	messageQueue *queue.Queue,
	executor *orchestration.Executor,
	executionTracker *tracker.Tracker,
	registry *registry.Registry,
	validator *validator.Validate,
	publisher eventbus.EventPublisher,
) *APIHandlers {
	return &APIHandlers{
		flowService:   flowService,
		targetService: targetService,
		routerService: routerService,
		queue:         messageQueue,
		executor:      executor,
		tracker:       executionTracker,
		registry:      registry,
		validator:     validator,
		publisher:     publisher,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.flowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "FlowMesh API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "FlowMesh API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
			"adapters":   h.registry.AdapterTypes(),
		},
		"timestamp": time.Now().UTC(),
	})
}

// Flow endpoints

func (h *APIHandlers) GetFlows(c fiber.Ctx) error {
	flows, err := h.flowService.ListFlows(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"flows":       flows,
		"total_count": len(flows),
	})
}

func (h *APIHandlers) CreateFlow(c fiber.Ctx) error {
	var req services.CreateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	created, err := h.flowService.CreateFlow(c.Context(), &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	flow, err := h.flowService.GetFlow(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) UpdateFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	var req services.UpdateFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	updated, err := h.flowService.UpdateFlow(c.Context(), id, &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	if err := h.flowService.DeleteFlow(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) DeployFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	deployed, err := h.flowService.DeployFlow(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(deployed)
}

func (h *APIHandlers) UndeployFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	undeployed, err := h.flowService.UndeployFlow(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(undeployed)
}

func (h *APIHandlers) ValidateFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	result, err := h.executor.ValidateFlow(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

func (h *APIHandlers) ExecuteFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Flow ID is required")
	}

	var req ExecuteFlowRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if req.Async {
		executionID, err := h.executor.ExecuteAsync(c.Context(), id, req.Input)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"execution_id": executionID,
			"flow_id":      id,
		})
	}

	result, err := h.executor.Execute(c.Context(), id, req.Input)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

// Target endpoints

func (h *APIHandlers) CreateTarget(c fiber.Ctx) error {
	flowID := c.Params("id")
	if flowID == "" {
		return badRequest(c, "Flow ID is required")
	}

	var req services.CreateTargetRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	target, err := h.targetService.CreateTarget(c.Context(), flowID, &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(target)
}

func (h *APIHandlers) UpdateTarget(c fiber.Ctx) error {
	flowID := c.Params("id")
	targetID := c.Params("targetId")

	if flowID == "" || targetID == "" {
		return badRequest(c, "Flow ID and target ID are required")
	}

	var req services.UpdateTargetRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	target, err := h.targetService.UpdateTarget(c.Context(), flowID, targetID, &req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(target)
}

func (h *APIHandlers) DeleteTarget(c fiber.Ctx) error {
	flowID := c.Params("id")
	targetID := c.Params("targetId")

	if flowID == "" || targetID == "" {
		return badRequest(c, "Flow ID and target ID are required")
	}

	if err := h.targetService.DeleteTarget(c.Context(), flowID, targetID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateMapping(c fiber.Ctx) error {
	flowID := c.Params("id")
	targetID := c.Params("targetId")

	if flowID == "" || targetID == "" {
		return badRequest(c, "Flow ID and target ID are required")
	}

	var mapping models.FieldMapping
	if err := c.Bind().JSON(&mapping); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	created, err := h.targetService.CreateMapping(c.Context(), flowID, targetID, &mapping)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) DeleteMapping(c fiber.Ctx) error {
	flowID := c.Params("id")
	targetID := c.Params("targetId")
	mappingID := c.Params("mappingId")

	if flowID == "" || targetID == "" || mappingID == "" {
		return badRequest(c, "Flow ID, target ID and mapping ID are required")
	}

	if err := h.targetService.DeleteMapping(c.Context(), flowID, targetID, mappingID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// Router endpoints

func (h *APIHandlers) CreateRouter(c fiber.Ctx) error {
	flowID := c.Params("id")
	if flowID == "" {
		return badRequest(c, "Flow ID is required")
	}

	var req CreateRouterRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	var (
		config *models.RouterConfig
		err    error
	)

	switch req.Type {
	case models.RouterTypeChoice:
		config, err = h.routerService.CreateChoiceRouter(c.Context(), flowID, &services.CreateChoiceRouterRequest{
			Name:           req.Name,
			Choices:        req.Choices,
			DefaultTargets: req.DefaultTargets,
		})
	case models.RouterTypeContent:
		config, err = h.routerService.CreateContentRouter(c.Context(), flowID, &services.CreateContentRouterRequest{
			Name:           req.Name,
			ExtractionPath: req.ExtractionPath,
			SourceType:     req.SourceType,
			Routes:         req.Routes,
			DefaultKey:     req.DefaultKey,
		})
	}

	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(config)
}

func (h *APIHandlers) GetRouter(c fiber.Ctx) error {
	routerID := c.Params("routerId")
	if routerID == "" {
		return badRequest(c, "Router ID is required")
	}

	config, err := h.routerService.GetRouter(routerID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(config)
}

func (h *APIHandlers) GetFlowRouters(c fiber.Ctx) error {
	flowID := c.Params("id")
	if flowID == "" {
		return badRequest(c, "Flow ID is required")
	}

	routers := h.routerService.FlowRouters(flowID)

	return c.JSON(fiber.Map{
		"routers":     routers,
		"total_count": len(routers),
	})
}

func (h *APIHandlers) DeleteRouter(c fiber.Ctx) error {
	routerID := c.Params("routerId")
	if routerID == "" {
		return badRequest(c, "Router ID is required")
	}

	if err := h.routerService.DeleteRouter(c.Context(), routerID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) EvaluateRouting(c fiber.Ctx) error {
	routerID := c.Params("routerId")
	if routerID == "" {
		return badRequest(c, "Router ID is required")
	}

	var req EvaluateRoutingRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	decision, err := h.routerService.EvaluateRouting(c.Context(), routerID, req.FlowID, req.StepID, req.Payload)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(decision)
}

// Route endpoints

func (h *APIHandlers) CreateRoute(c fiber.Ctx) error {
	flowID := c.Params("id")
	if flowID == "" {
		return badRequest(c, "Flow ID is required")
	}

	var route models.Route
	if err := c.Bind().JSON(&route); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	route.FlowID = flowID

	created, err := h.routerService.CreateRoute(c.Context(), &route)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateRoute(c fiber.Ctx) error {
	routeID := c.Params("routeId")
	if routeID == "" {
		return badRequest(c, "Route ID is required")
	}

	var route models.Route
	if err := c.Bind().JSON(&route); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	route.ID = routeID

	updated, err := h.routerService.UpdateRoute(c.Context(), &route)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteRoute(c fiber.Ctx) error {
	routeID := c.Params("routeId")
	if routeID == "" {
		return badRequest(c, "Route ID is required")
	}

	if err := h.routerService.DeleteRoute(c.Context(), routeID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetFlowRoutes(c fiber.Ctx) error {
	flowID := c.Params("id")
	if flowID == "" {
		return badRequest(c, "Flow ID is required")
	}

	routes := h.routerService.FlowRoutes(flowID)

	return c.JSON(fiber.Map{
		"routes":      routes,
		"total_count": len(routes),
	})
}

// Queue endpoints

func (h *APIHandlers) EnqueueMessage(c fiber.Ctx) error {
	flowID := c.Params("id")
	if flowID == "" {
		return badRequest(c, "Flow ID is required")
	}

	var req EnqueueMessageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	message, err := h.queue.QueueMessage(c.Context(), flowID, req.Payload, req.MaxAttempts, req.CorrelationID)
	if err != nil {
		return handleQueueError(c, err)
	}

	if h.publisher != nil {
		event := events.MessageQueued{
			BaseEvent: events.BaseEvent{
				ID:        "evt-" + message.ID,
				Type:      events.MessageQueuedEvent,
				Timestamp: time.Now().UTC(),
				FlowID:    flowID,
			},
			MessageID:     message.ID,
			Payload:       message.Payload,
			CorrelationID: message.CorrelationID,
		}
		if err := h.publisher.Publish(c.Context(), event); err != nil {
			// Admission already succeeded; the retry sweeper picks the
			// message up even when the event is lost.
			slog.Default().WarnContext(c.Context(), "Failed to publish message queued event",
				"message_id", message.ID, "error", err)
		}
	}

	return c.Status(fiber.StatusAccepted).JSON(message)
}

func (h *APIHandlers) GetMessage(c fiber.Ctx) error {
	messageID := c.Params("messageId")
	if messageID == "" {
		return badRequest(c, "Message ID is required")
	}

	message, err := h.queue.Message(messageID)
	if err != nil {
		return handleQueueError(c, err)
	}

	return c.JSON(message)
}

func (h *APIHandlers) RetryMessage(c fiber.Ctx) error {
	messageID := c.Params("messageId")
	if messageID == "" {
		return badRequest(c, "Message ID is required")
	}

	message, err := h.queue.RetryMessage(c.Context(), messageID)
	if err != nil {
		return handleQueueError(c, err)
	}

	return c.JSON(message)
}

func (h *APIHandlers) CancelMessage(c fiber.Ctx) error {
	messageID := c.Params("messageId")
	if messageID == "" {
		return badRequest(c, "Message ID is required")
	}

	message, err := h.queue.CancelMessage(c.Context(), messageID)
	if err != nil {
		return handleQueueError(c, err)
	}

	return c.JSON(message)
}

func (h *APIHandlers) GetPendingMessages(c fiber.Ctx) error {
	limit, err := parseLimit(c)
	if err != nil {
		return badRequest(c, "Invalid limit parameter")
	}

	messages := h.queue.PendingMessages(limit)

	return c.JSON(fiber.Map{
		"messages":    messages,
		"total_count": len(messages),
	})
}

func (h *APIHandlers) GetQueueStats(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"size":       h.queue.Size(),
		"processing": h.queue.ProcessingCount(),
		"failed":     h.queue.FailedCount(),
	})
}

// Execution endpoints

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	executionID := c.Params("executionId")
	if executionID == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution := h.tracker.GetExecutionTrace(executionID)
	if execution == nil {
		return notFound(c, "Execution not found")
	}

	return c.JSON(execution)
}

func (h *APIHandlers) SearchExecutions(c fiber.Ctx) error {
	criteria, err := h.parseSearchCriteria(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	executions := h.tracker.SearchExecutions(*criteria)

	return c.JSON(fiber.Map{
		"executions":  executions,
		"total_count": len(executions),
	})
}

// parseSearchCriteria parses and validates query parameters for searching
// execution traces.
func (h *APIHandlers) parseSearchCriteria(c fiber.Ctx) (*tracker.SearchCriteria, error) {
	criteria := &tracker.SearchCriteria{
		FlowID:   c.Query("flow_id"),
		FlowType: c.Query("flow_type"),
	}

	if statusStr := c.Query("status"); statusStr != "" {
		criteria.Status = models.ExecutionStatus(statusStr)
	}

	if sinceStr := c.Query("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			return nil, err
		}

		criteria.Since = &since
	}

	if untilStr := c.Query("until"); untilStr != "" {
		until, err := time.Parse(time.RFC3339, untilStr)
		if err != nil {
			return nil, err
		}

		criteria.Until = &until
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		criteria.Limit = limit
	}

	return criteria, nil
}

func (h *APIHandlers) GetActiveExecutions(c fiber.Ctx) error {
	executions := h.tracker.ActiveExecutions()

	return c.JSON(fiber.Map{
		"executions":  executions,
		"total_count": len(executions),
	})
}

func (h *APIHandlers) GetExecutionStats(c fiber.Ctx) error {
	return c.JSON(h.tracker.Statistics())
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	executionID := c.Params("executionId")
	if executionID == "" {
		return badRequest(c, "Execution ID is required")
	}

	if !h.executor.CancelExecution(c.Context(), executionID) {
		return conflict(c, "execution is unknown or already terminal")
	}

	return c.JSON(fiber.Map{
		"execution_id": executionID,
		"cancelled":    true,
	})
}

func (h *APIHandlers) GetFlowExecutions(c fiber.Ctx) error {
	flowID := c.Params("id")
	if flowID == "" {
		return badRequest(c, "Flow ID is required")
	}

	limit, err := parseLimit(c)
	if err != nil {
		return badRequest(c, "Invalid limit parameter")
	}

	executions := h.tracker.FlowExecutionHistory(flowID, limit)
	if len(executions) == 0 {
		// Fall back to persisted traces from before this process started.
		persisted, err := h.flowService.ExecutionHistory(c.Context(), flowID, limit)
		if err != nil {
			return internalError(c, err)
		}

		executions = persisted
	}

	return c.JSON(fiber.Map{
		"executions":  executions,
		"total_count": len(executions),
	})
}

func (h *APIHandlers) GetFlowMetrics(c fiber.Ctx) error {
	flowID := c.Params("id")
	if flowID == "" {
		return badRequest(c, "Flow ID is required")
	}

	return c.JSON(h.tracker.FlowMetrics(flowID))
}

// Adapter endpoints

func (h *APIHandlers) GetAdapterTypes(c fiber.Ctx) error {
	types := h.registry.AdapterTypes()

	return c.JSON(fiber.Map{
		"adapter_types": types,
		"total_count":   len(types),
	})
}

func (h *APIHandlers) GetAdapterSchema(c fiber.Ctx) error {
	adapterType := c.Params("type")
	if adapterType == "" {
		return badRequest(c, "Adapter type is required")
	}

	schema, err := h.registry.Schema(adapterType)
	if err != nil {
		return notFound(c, "Adapter type not registered")
	}

	return c.JSON(schema)
}

func parseLimit(c fiber.Ctx) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return 0, nil
	}

	return strconv.Atoi(limitStr)
}
