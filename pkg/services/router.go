package services

import (
	"context"
	"fmt"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/persistence"
	"github.com/flowmesh/flowmesh/pkg/router"
	"github.com/google/uuid"
)

// CreateChoiceRouterRequest represents the request to create a choice router.
type CreateChoiceRouterRequest struct {
	Name           string                `json:"name"`
	Choices        []models.RouterChoice `json:"choices"         validate:"required,min=1"`
	DefaultTargets []string              `json:"default_targets"`
}

// CreateContentRouterRequest represents the request to create a
// content-based router.
type CreateContentRouterRequest struct {
	Name           string              `json:"name"`
	ExtractionPath string              `json:"extraction_path" validate:"required"`
	SourceType     models.SourceType   `json:"source_type"     validate:"omitempty,oneof=json xml"`
	Routes         map[string][]string `json:"routes"`
	DefaultKey     string              `json:"default_key"`
}

// Router mediates router and route management between the engine and the
// store: the engine holds the runtime state, the store the durable copy.
type Router struct {
	engine      *router.Engine
	persistence persistence.Persistence
}

// NewRouter creates a new router service.
func NewRouter(engine *router.Engine, store persistence.Persistence) *Router {
	return &Router{
		engine:      engine,
		persistence: store,
	}
}

// LoadRouters warms the engine with every persisted router and route,
// called once at startup.
func (s *Router) LoadRouters(ctx context.Context, flowIDs []string) error {
	for _, flowID := range flowIDs {
		routers, err := s.persistence.Routers(ctx, flowID)
		if err != nil {
			return fmt.Errorf("failed to load routers for flow %s: %w", flowID, err)
		}

		for _, config := range routers {
			if err := s.restore(config); err != nil {
				return err
			}
		}

		routes, err := s.persistence.Routes(ctx, flowID)
		if err != nil {
			return fmt.Errorf("failed to load routes for flow %s: %w", flowID, err)
		}

		for _, route := range routes {
			if _, err := s.engine.CreateRoute(route); err != nil {
				return fmt.Errorf("failed to restore route %s: %w", route.ID, err)
			}
		}
	}

	return nil
}

func (s *Router) restore(config *models.RouterConfig) error {
	var err error

	switch config.Type {
	case models.RouterTypeChoice:
		_, err = s.engine.CreateChoiceRouter(config.ID, config.FlowID, config.Name, config.Choices, config.DefaultTargets)
	case models.RouterTypeContent:
		_, err = s.engine.CreateContentRouter(config.ID, config.FlowID, config.Name,
			config.ExtractionPath, config.SourceType, config.Routes, config.DefaultKey)
	default:
		err = fmt.Errorf("unknown router type %q", config.Type)
	}

	if err != nil {
		return fmt.Errorf("failed to restore router %s: %w", config.ID, err)
	}

	return nil
}

// CreateChoiceRouter creates and persists a choice router for a flow.
func (s *Router) CreateChoiceRouter(ctx context.Context, flowID string, req *CreateChoiceRouterRequest) (*models.RouterConfig, error) {
	config, err := s.engine.CreateChoiceRouter(uuid.New().String(), flowID, req.Name, req.Choices, req.DefaultTargets)
	if err != nil {
		return nil, err
	}

	if err := s.persistence.SaveRouter(ctx, config); err != nil {
		return nil, fmt.Errorf("failed to persist router: %w", err)
	}

	return config, nil
}

// CreateContentRouter creates and persists a content-based router for a flow.
func (s *Router) CreateContentRouter(ctx context.Context, flowID string, req *CreateContentRouterRequest) (*models.RouterConfig, error) {
	config, err := s.engine.CreateContentRouter(uuid.New().String(), flowID, req.Name,
		req.ExtractionPath, req.SourceType, req.Routes, req.DefaultKey)
	if err != nil {
		return nil, err
	}

	if err := s.persistence.SaveRouter(ctx, config); err != nil {
		return nil, fmt.Errorf("failed to persist router: %w", err)
	}

	return config, nil
}

// GetRouter returns one router from the engine.
func (s *Router) GetRouter(routerID string) (*models.RouterConfig, error) {
	return s.engine.Router(routerID)
}

// FlowRouters returns a flow's routers from the engine.
func (s *Router) FlowRouters(flowID string) []*models.RouterConfig {
	return s.engine.FlowRouters(flowID)
}

// DeleteRouter removes a router from the engine and the store.
func (s *Router) DeleteRouter(ctx context.Context, routerID string) error {
	if err := s.engine.DeleteRouter(routerID); err != nil {
		return err
	}

	if err := s.persistence.DeleteRouter(ctx, routerID); err != nil && !persistence.IsRouterNotFound(err) {
		return fmt.Errorf("failed to delete persisted router: %w", err)
	}

	return nil
}

// EvaluateRouting runs a router against a payload without dispatching.
func (s *Router) EvaluateRouting(ctx context.Context, routerID, flowID, stepID string, payload map[string]any) (*models.RoutingDecision, error) {
	return s.engine.EvaluateRouting(ctx, routerID, flowID, stepID, payload)
}

// CreateRoute creates and persists a standalone route.
func (s *Router) CreateRoute(ctx context.Context, route *models.Route) (*models.Route, error) {
	if route.ID == "" {
		route.ID = uuid.New().String()
	}

	created, err := s.engine.CreateRoute(route)
	if err != nil {
		return nil, err
	}

	if err := s.persistence.SaveRoute(ctx, created); err != nil {
		return nil, fmt.Errorf("failed to persist route: %w", err)
	}

	return created, nil
}

// UpdateRoute updates a route in the engine and the store.
func (s *Router) UpdateRoute(ctx context.Context, route *models.Route) (*models.Route, error) {
	updated, err := s.engine.UpdateRoute(route)
	if err != nil {
		return nil, err
	}

	if err := s.persistence.SaveRoute(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to persist route: %w", err)
	}

	return updated, nil
}

// DeleteRoute removes a route from the engine and the store.
func (s *Router) DeleteRoute(ctx context.Context, routeID string) error {
	if err := s.engine.DeleteRoute(routeID); err != nil {
		return err
	}

	if err := s.persistence.DeleteRoute(ctx, routeID); err != nil {
		return fmt.Errorf("failed to delete persisted route: %w", err)
	}

	return nil
}

// FlowRoutes returns a flow's routes from the engine.
func (s *Router) FlowRoutes(flowID string) []*models.Route {
	return s.engine.FlowRoutes(flowID)
}
