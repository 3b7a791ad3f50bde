package httprequest

import (
	"log/slog"

	"github.com/flowmesh/flowmesh/pkg/protocol"
)

// AdapterFactory creates HTTP dispatch adapters.
type AdapterFactory struct {
	logger *slog.Logger
}

// NewAdapterFactory creates a new HTTP adapter factory.
func NewAdapterFactory(logger *slog.Logger) *AdapterFactory {
	return &AdapterFactory{logger: logger}
}

// ID returns the unique identifier for the adapter type.
func (*AdapterFactory) ID() string {
	return "http_request"
}

// Create builds an HTTP adapter from the given configuration.
func (f *AdapterFactory) Create(config map[string]any) (protocol.Adapter, error) {
	return NewAdapter(config, f.logger)
}

// Schema returns the JSON schema for the adapter configuration.
func (f *AdapterFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The endpoint URL. Supports templating with execution context data.",
				"examples": []string{
					"https://api.example.com/orders",
					"https://api.example.com/users/{{.trigger_data.user_id}}",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use",
				"default":     "POST",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers to include. Values support templating.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Optional body template. When omitted the mapped payload is sent as JSON.",
			},
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Request timeout in seconds",
				"default":     defaultTimeoutSeconds,
				"minimum":     1,
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}
