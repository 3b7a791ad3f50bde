// Package persistence provides the storage abstraction for flows, routers,
// execution traces and queued messages.
package persistence

import (
	"context"

	"github.com/flowmesh/flowmesh/pkg/models"
)

// Persistence is the storage contract every backend implements. Entities are
// keyed by stable identifiers that never change after creation; flows embed
// their targets and mappings.
type Persistence interface {
	Flows(ctx context.Context) ([]*models.IntegrationFlow, error)
	SaveFlow(ctx context.Context, flow *models.IntegrationFlow) error
	FlowByID(ctx context.Context, id string) (*models.IntegrationFlow, error)
	DeleteFlow(ctx context.Context, id string) error

	Routers(ctx context.Context, flowID string) ([]*models.RouterConfig, error)
	SaveRouter(ctx context.Context, config *models.RouterConfig) error
	RouterByID(ctx context.Context, id string) (*models.RouterConfig, error)
	DeleteRouter(ctx context.Context, id string) error

	Routes(ctx context.Context, flowID string) ([]*models.Route, error)
	SaveRoute(ctx context.Context, route *models.Route) error
	DeleteRoute(ctx context.Context, id string) error

	SaveExecution(ctx context.Context, execution *models.FlowExecution) error
	Executions(ctx context.Context, flowID string, limit int) ([]*models.FlowExecution, error)

	QueueRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// QueueRepository persists queued messages. The in-memory queue is
// authoritative at runtime; the repository is its write-through store.
type QueueRepository interface {
	SaveMessage(ctx context.Context, message *models.QueuedMessage) error
	DeleteMessage(ctx context.Context, id string) error
	Messages(ctx context.Context) ([]*models.QueuedMessage, error)
}
