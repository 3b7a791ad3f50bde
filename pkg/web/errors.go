package web

import (
	"errors"

	"github.com/flowmesh/flowmesh/pkg/orchestration"
	"github.com/flowmesh/flowmesh/pkg/persistence"
	"github.com/flowmesh/flowmesh/pkg/queue"
	"github.com/flowmesh/flowmesh/pkg/router"
	"github.com/flowmesh/flowmesh/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		return badRequest(c, err.Error())

	case services.IsConflictError(err),
		errors.Is(err, services.ErrDuplicateExecutionOrder):
		return conflict(c, err.Error())

	case errors.Is(err, services.ErrTargetNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("target_not_found").
			WithDetail(err.Error())

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, orchestration.ErrFlowNotExecutable):
		return conflict(c, err.Error())

	case errors.Is(err, orchestration.ErrFlowNotFound), persistence.IsFlowNotFound(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("flow_not_found").
			WithDetail("flow not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, router.ErrRouterNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("router_not_found").
			WithDetail("router not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, router.ErrRouteNotFound), persistence.IsRouterNotFound(err):
		return notFound(c, err.Error())

	case errors.Is(err, router.ErrInvalidRouterConfig):
		return badRequest(c, err.Error())

	default:
		return internalError(c, err)
	}
}

// handleQueueError maps queue state machine errors onto problem responses.
// Capacity rejections get 429 so clients can back off and retry.
func handleQueueError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, queue.ErrMessageNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("message_not_found").
			WithDetail("message not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, queue.ErrInvalidQueueRequest):
		return badRequest(c, err.Error())

	case errors.Is(err, queue.ErrQueueCapacityExceeded):
		problem := problems.NewStatusProblem(429).
			WithInstance(c.Path()).
			WithType("queue_capacity_exceeded").
			WithDetail(err.Error())

		return c.Status(fiber.StatusTooManyRequests).JSON(problem)

	case errors.Is(err, queue.ErrAlreadyProcessing),
		errors.Is(err, queue.ErrRetryNotAllowed),
		errors.Is(err, queue.ErrCancelNotAllowed),
		errors.Is(err, queue.ErrInvalidTransition):
		return conflict(c, err.Error())

	default:
		return internalError(c, err)
	}
}
