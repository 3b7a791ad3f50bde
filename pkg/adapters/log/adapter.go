// Package log provides a dispatch adapter that writes the payload to the
// structured log. It is mainly useful for flow debugging and demos.
package log

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/protocol"
	"github.com/flowmesh/flowmesh/pkg/template"
)

// Adapter logs the outbound payload instead of delivering it anywhere.
type Adapter struct {
	message string
	level   string
	logger  *slog.Logger
}

// NewAdapter creates a log adapter from configuration.
func NewAdapter(config map[string]any, logger *slog.Logger) *Adapter {
	message, _ := config["message"].(string)

	level, _ := config["level"].(string)
	if level == "" {
		level = "info"
	}

	return &Adapter{
		message: message,
		level:   level,
		logger:  logger.With("adapter_type", "log"),
	}
}

// Dispatch renders the configured message against the execution context and
// logs it together with the payload.
func (a *Adapter) Dispatch(ctx context.Context, target *models.OrchestrationTarget, payload map[string]any, executionCtx models.ExecutionContext) (*protocol.DispatchResult, error) {
	message := a.message
	if message == "" {
		message = "dispatching payload"
	}

	rendered, err := template.RenderWithContext(message, &executionCtx)
	if err != nil {
		return &protocol.DispatchResult{
			Success:      false,
			ErrorMessage: err.Error(),
		}, err
	}

	text := fmt.Sprintf("%v", rendered)

	args := []any{
		"target_id", target.ID,
		"flow_id", target.FlowID,
		"payload", payload,
	}

	switch a.level {
	case "debug":
		a.logger.DebugContext(ctx, text, args...)
	case "warn", "warning":
		a.logger.WarnContext(ctx, text, args...)
	case "error":
		a.logger.ErrorContext(ctx, text, args...)
	default:
		a.logger.InfoContext(ctx, text, args...)
	}

	return &protocol.DispatchResult{
		Success: true,
		ResponseData: map[string]any{
			"message": rendered,
			"level":   a.level,
		},
	}, nil
}
