package file

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/persistence"
)

const (
	routersKind = "routers"
	routesKind  = "routes"
)

// Routers returns the routers owned by a flow, oldest first.
func (p *Persistence) Routers(_ context.Context, flowID string) ([]*models.RouterConfig, error) {
	ids, err := p.listIDs(routersKind)
	if err != nil {
		return nil, fmt.Errorf("failed to list routers: %w", err)
	}

	routers := make([]*models.RouterConfig, 0, len(ids))

	for _, id := range ids {
		var config models.RouterConfig

		if err := p.readDoc(routersKind, id, &config); err != nil {
			return nil, fmt.Errorf("failed to load router %s: %w", id, err)
		}

		if config.FlowID == flowID {
			routers = append(routers, &config)
		}
	}

	sort.Slice(routers, func(i, j int) bool {
		return routers[i].CreatedAt.Before(routers[j].CreatedAt)
	})

	return routers, nil
}

// SaveRouter writes one router document.
func (p *Persistence) SaveRouter(_ context.Context, config *models.RouterConfig) error {
	return p.writeDoc(routersKind, config.ID, config)
}

// RouterByID loads one router by id.
func (p *Persistence) RouterByID(_ context.Context, id string) (*models.RouterConfig, error) {
	var config models.RouterConfig

	if err := p.readDoc(routersKind, id, &config); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", persistence.ErrRouterNotFound, id)
		}

		return nil, err
	}

	return &config, nil
}

// DeleteRouter removes one router document.
func (p *Persistence) DeleteRouter(_ context.Context, id string) error {
	if err := p.removeDoc(routersKind, id); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", persistence.ErrRouterNotFound, id)
		}

		return err
	}

	return nil
}

// Routes returns the standalone routes owned by a flow.
func (p *Persistence) Routes(_ context.Context, flowID string) ([]*models.Route, error) {
	ids, err := p.listIDs(routesKind)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}

	routes := make([]*models.Route, 0, len(ids))

	for _, id := range ids {
		var route models.Route

		if err := p.readDoc(routesKind, id, &route); err != nil {
			return nil, fmt.Errorf("failed to load route %s: %w", id, err)
		}

		if route.FlowID == flowID {
			routes = append(routes, &route)
		}
	}

	sort.Slice(routes, func(i, j int) bool {
		return routes[i].CreatedAt.Before(routes[j].CreatedAt)
	})

	return routes, nil
}

// SaveRoute writes one route document.
func (p *Persistence) SaveRoute(_ context.Context, route *models.Route) error {
	return p.writeDoc(routesKind, route.ID, route)
}

// DeleteRoute removes one route document.
func (p *Persistence) DeleteRoute(_ context.Context, id string) error {
	if err := p.removeDoc(routesKind, id); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", persistence.ErrRouteNotFound, id)
		}

		return err
	}

	return nil
}
