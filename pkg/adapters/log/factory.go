package log

import (
	"log/slog"

	"github.com/flowmesh/flowmesh/pkg/protocol"
)

// AdapterFactory creates log adapters.
type AdapterFactory struct {
	logger *slog.Logger
}

// NewAdapterFactory creates a new log adapter factory.
func NewAdapterFactory(logger *slog.Logger) *AdapterFactory {
	return &AdapterFactory{logger: logger}
}

// ID returns the unique identifier for the adapter type.
func (*AdapterFactory) ID() string {
	return "log"
}

// Create builds a log adapter from the given configuration.
func (f *AdapterFactory) Create(config map[string]any) (protocol.Adapter, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewAdapter(config, f.logger), nil
}

// Schema returns the JSON schema for the adapter configuration.
func (f *AdapterFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "The message to log. Supports templating for dynamic content.",
				"examples": []string{
					"Order {{.trigger_data.order.id}} routed",
					"Dispatched {{.step_results.lookup.count}} records at {{now}}",
				},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "warning", "error"},
			},
		},
		"additionalProperties": false,
	}
}
