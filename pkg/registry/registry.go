// Package registry holds the adapter factories available to the
// orchestration engine and validates adapter configuration against each
// factory's schema.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"sync"

	"github.com/flowmesh/flowmesh/pkg/protocol"
)

var (
	// ErrAdapterNotRegistered is returned when a target references an
	// adapter type no factory is registered for.
	ErrAdapterNotRegistered = errors.New("adapter type not registered")

	// ErrInvalidAdapterConfig is returned when an adapter configuration
	// fails schema validation.
	ErrInvalidAdapterConfig = errors.New("invalid adapter configuration")
)

// Registry maps adapter type identifiers to their factories.
type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	factories map[string]protocol.AdapterFactory
}

// NewRegistry creates an empty adapter registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:    logger.With("module", "registry"),
		factories: make(map[string]protocol.AdapterFactory),
	}
}

// Register adds an adapter factory, replacing any factory previously
// registered under the same ID.
func (r *Registry) Register(factory protocol.AdapterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[factory.ID()] = factory
}

// CreateAdapter validates the configuration against the factory schema and
// builds an adapter instance.
func (r *Registry) CreateAdapter(adapterType string, config map[string]any) (protocol.Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[adapterType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotRegistered, adapterType)
	}

	if err := ValidateConfig(factory.Schema(), config); err != nil {
		return nil, err
	}

	return factory.Create(config)
}

// AdapterTypes returns the registered adapter type identifiers.
func (r *Registry) AdapterTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for adapterType := range r.factories {
		types = append(types, adapterType)
	}

	return types
}

// Schema returns the configuration schema for a registered adapter type.
func (r *Registry) Schema(adapterType string) (map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[adapterType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotRegistered, adapterType)
	}

	return factory.Schema(), nil
}

// LoadAdapterPlugins loads adapter factories from .so files under
// <pluginsPath>/adapters. Each plugin must export an Adapter symbol
// implementing protocol.AdapterFactory.
func (r *Registry) LoadAdapterPlugins(pluginsPath string) ([]protocol.AdapterFactory, error) {
	rootPath := pluginsPath + "/adapters"
	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "**/*.so")
	if err != nil {
		return nil, err
	}

	logger := r.logger.With(slog.String("path", pluginsPath))
	logger.Info("Loading adapter plugins")

	factories := make([]protocol.AdapterFactory, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		symbol, err := plg.Lookup("Adapter")
		if err != nil {
			return nil, fmt.Errorf("plugin %s has no Adapter symbol: %w", p, err)
		}

		factory, ok := symbol.(protocol.AdapterFactory)
		if !ok {
			return nil, fmt.Errorf("plugin %s Adapter symbol is not an AdapterFactory", p)
		}

		factories = append(factories, factory)

		logger.Info("Loaded adapter plugin", slog.String("plugin", p))
	}

	return factories, nil
}
