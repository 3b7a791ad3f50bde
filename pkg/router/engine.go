// Package router builds and executes choice and content-based routing
// configurations, narrowing which targets apply to a given message.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowmesh/flowmesh/pkg/conditions"
	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/google/uuid"
)

var (
	// ErrInvalidRouterConfig indicates a router definition that cannot be stored.
	ErrInvalidRouterConfig = errors.New("invalid router config")

	// ErrRouterNotFound indicates a lookup for an unknown router id.
	ErrRouterNotFound = errors.New("router not found")

	// ErrRouteNotFound indicates a lookup for an unknown route id.
	ErrRouteNotFound = errors.New("route not found")
)

// Engine owns router and route configurations and evaluates them against
// payloads. Reads are concurrent; writes are serialized.
type Engine struct {
	logger    *slog.Logger
	evaluator *conditions.Evaluator

	mu      sync.RWMutex
	routers map[string]*models.RouterConfig
	routes  map[string]*models.Route
}

// NewEngine creates a routing engine backed by the given condition evaluator.
func NewEngine(logger *slog.Logger, evaluator *conditions.Evaluator) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		logger:    logger.With("module", "router_engine"),
		evaluator: evaluator,
		routers:   make(map[string]*models.RouterConfig),
		routes:    make(map[string]*models.Route),
	}
}

// CreateChoiceRouter validates and stores a choice router. Choices are
// evaluated in declaration order at execution time.
func (e *Engine) CreateChoiceRouter(routerID, flowID, name string, choices []models.RouterChoice, defaultTargets []string) (*models.RouterConfig, error) {
	if routerID == "" {
		routerID = uuid.New().String()
	}

	if len(choices) == 0 {
		return nil, fmt.Errorf("%w: choice router needs at least one choice", ErrInvalidRouterConfig)
	}

	for i, choice := range choices {
		issues := e.evaluator.ValidateCondition(choice.Condition, choice.ConditionType)
		if !issues.Valid {
			return nil, fmt.Errorf("%w: choice %d: %v", ErrInvalidRouterConfig, i, issues.Issues)
		}
	}

	config := &models.RouterConfig{
		ID:             routerID,
		FlowID:         flowID,
		Name:           name,
		Type:           models.RouterTypeChoice,
		Choices:        choices,
		DefaultTargets: defaultTargets,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	return config, e.store(config)
}

// CreateContentRouter validates and stores a content-based router.
func (e *Engine) CreateContentRouter(routerID, flowID, name, extractionPath string, sourceType models.SourceType, routes map[string][]string, defaultKey string) (*models.RouterConfig, error) {
	if routerID == "" {
		routerID = uuid.New().String()
	}

	if extractionPath == "" {
		return nil, fmt.Errorf("%w: extraction path must not be empty", ErrInvalidRouterConfig)
	}

	switch sourceType {
	case models.SourceTypeJSON, models.SourceTypeXML:
	default:
		return nil, fmt.Errorf("%w: unsupported source type %q", ErrInvalidRouterConfig, sourceType)
	}

	config := &models.RouterConfig{
		ID:             routerID,
		FlowID:         flowID,
		Name:           name,
		Type:           models.RouterTypeContent,
		ExtractionPath: extractionPath,
		SourceType:     sourceType,
		Routes:         routes,
		DefaultKey:     defaultKey,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	return config, e.store(config)
}

func (e *Engine) store(config *models.RouterConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.routers[config.ID]; exists {
		return fmt.Errorf("%w: duplicate router id %q", ErrInvalidRouterConfig, config.ID)
	}

	e.routers[config.ID] = config

	return nil
}

// Router returns a stored router config by id.
func (e *Engine) Router(routerID string) (*models.RouterConfig, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	config, ok := e.routers[routerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRouterNotFound, routerID)
	}

	return config, nil
}

// FlowRouters returns all routers belonging to a flow.
func (e *Engine) FlowRouters(flowID string) []*models.RouterConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	configs := make([]*models.RouterConfig, 0)

	for _, config := range e.routers {
		if config.FlowID == flowID {
			configs = append(configs, config)
		}
	}

	return configs
}

// DeleteRouter removes a router config.
func (e *Engine) DeleteRouter(routerID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.routers[routerID]; !ok {
		return fmt.Errorf("%w: %s", ErrRouterNotFound, routerID)
	}

	delete(e.routers, routerID)

	return nil
}

// ExecuteRouting evaluates a router config against a payload and returns the
// target ids the message must visit. "No match" yields the configured
// default (an empty list means "drop"), never an error.
func (e *Engine) ExecuteRouting(ctx context.Context, config *models.RouterConfig, payload map[string]any) ([]string, error) {
	switch config.Type {
	case models.RouterTypeChoice:
		return e.executeChoice(ctx, config, payload)
	case models.RouterTypeContent:
		return e.executeContent(config, payload)
	default:
		return nil, fmt.Errorf("%w: unknown router type %q", ErrInvalidRouterConfig, config.Type)
	}
}

// executeChoice applies first-match semantics: choices are evaluated in
// declaration order and the first matching condition wins.
func (e *Engine) executeChoice(ctx context.Context, config *models.RouterConfig, payload map[string]any) ([]string, error) {
	for i, choice := range config.Choices {
		matched, err := e.evaluator.Evaluate(ctx, choice.Condition, choice.ConditionType, payload)
		if err != nil {
			// Evaluation failures count as "no match": log and keep going.
			e.logger.WarnContext(ctx, "Condition evaluation failed, treating as no match",
				"router_id", config.ID,
				"choice", i,
				"error", err)

			continue
		}

		if matched {
			return append([]string(nil), choice.TargetIDs...), nil
		}
	}

	return append([]string(nil), config.DefaultTargets...), nil
}

// executeContent extracts a value from the payload and resolves it through
// the route map, exact match first, then the configured default key.
func (e *Engine) executeContent(config *models.RouterConfig, payload map[string]any) ([]string, error) {
	value, found, err := extractValue(config, payload)
	if err != nil {
		return nil, err
	}

	if found {
		if targets, ok := config.Routes[value]; ok {
			return append([]string(nil), targets...), nil
		}
	}

	if config.DefaultKey != "" {
		if targets, ok := config.Routes[config.DefaultKey]; ok {
			return append([]string(nil), targets...), nil
		}
	}

	e.logger.Warn("Routing miss, no route for extracted value",
		"router_id", config.ID,
		"extraction_path", config.ExtractionPath,
		"value", value)

	return []string{}, nil
}

// EvaluateRouting is the flow-execution-facing entry point: it wraps
// ExecuteRouting with flow/step identity for traceability.
func (e *Engine) EvaluateRouting(ctx context.Context, routerID, flowID, stepID string, payload map[string]any) (*models.RoutingDecision, error) {
	config, err := e.Router(routerID)
	if err != nil {
		return nil, err
	}

	targets, err := e.ExecuteRouting(ctx, config, payload)
	if err != nil {
		return nil, err
	}

	return &models.RoutingDecision{
		FlowID:         flowID,
		StepID:         stepID,
		MatchedTargets: targets,
		RuleApplied:    config.ID,
		EvaluatedAt:    time.Now().UTC(),
	}, nil
}

// CreateRoute stores a flow-scoped ad-hoc route.
func (e *Engine) CreateRoute(route *models.Route) (*models.Route, error) {
	if route.ID == "" {
		route.ID = uuid.New().String()
	}

	if route.Name == "" || route.Condition == "" || route.Destination == "" {
		return nil, fmt.Errorf("%w: route needs name, condition and destination", ErrInvalidRouterConfig)
	}

	if route.ConditionType == "" {
		route.ConditionType = models.ConditionTypeSimple
	}

	issues := e.evaluator.ValidateCondition(route.Condition, route.ConditionType)
	if !issues.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRouterConfig, issues.Issues)
	}

	route.CreatedAt = time.Now().UTC()
	route.UpdatedAt = route.CreatedAt

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.routes[route.ID]; exists {
		return nil, fmt.Errorf("%w: duplicate route id %q", ErrInvalidRouterConfig, route.ID)
	}

	e.routes[route.ID] = route

	return route, nil
}

// UpdateRoute replaces a stored route's mutable fields.
func (e *Engine) UpdateRoute(route *models.Route) (*models.Route, error) {
	issues := e.evaluator.ValidateCondition(route.Condition, route.ConditionType)
	if !issues.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRouterConfig, issues.Issues)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	existing, ok := e.routes[route.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, route.ID)
	}

	existing.Name = route.Name
	existing.Condition = route.Condition
	existing.ConditionType = route.ConditionType
	existing.Destination = route.Destination
	existing.Active = route.Active
	existing.UpdatedAt = time.Now().UTC()

	return existing, nil
}

// DeleteRoute removes a stored route.
func (e *Engine) DeleteRoute(routeID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.routes[routeID]; !ok {
		return fmt.Errorf("%w: %s", ErrRouteNotFound, routeID)
	}

	delete(e.routes, routeID)

	return nil
}

// FlowRoutes returns all ad-hoc routes belonging to a flow.
func (e *Engine) FlowRoutes(flowID string) []*models.Route {
	e.mu.RLock()
	defer e.mu.RUnlock()

	routes := make([]*models.Route, 0)

	for _, route := range e.routes {
		if route.FlowID == flowID {
			routes = append(routes, route)
		}
	}

	return routes
}

// MatchRoute evaluates a single ad-hoc route against a payload and returns
// the destination when the condition matches.
func (e *Engine) MatchRoute(ctx context.Context, routeID string, payload map[string]any) (string, bool, error) {
	e.mu.RLock()
	route, ok := e.routes[routeID]
	e.mu.RUnlock()

	if !ok {
		return "", false, fmt.Errorf("%w: %s", ErrRouteNotFound, routeID)
	}

	if !route.Active {
		return "", false, nil
	}

	matched, err := e.evaluator.Evaluate(ctx, route.Condition, route.ConditionType, payload)
	if err != nil {
		return "", false, err
	}

	if !matched {
		return "", false, nil
	}

	return route.Destination, true, nil
}
