// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"context"
	"log/slog"

	"github.com/flowmesh/flowmesh/pkg/adapters/httprequest"
	logadapter "github.com/flowmesh/flowmesh/pkg/adapters/log"
	"github.com/flowmesh/flowmesh/pkg/registry"
)

// NewRegistry creates the adapter registry with the built-in adapters
// registered and any adapter plugins loaded from pluginsPath.
func NewRegistry(ctx context.Context, logger *slog.Logger, pluginsPath string) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.Register(logadapter.NewAdapterFactory(logger))
	reg.Register(httprequest.NewAdapterFactory(logger))

	if pluginsPath != "" {
		plugins, err := reg.LoadAdapterPlugins(pluginsPath)
		if err != nil {
			logger.WarnContext(ctx, "Failed to load adapter plugins", "path", pluginsPath, "error", err)

			return reg
		}

		for _, plugin := range plugins {
			reg.Register(plugin)
		}
	}

	return reg
}
