// Package template provides templating for dynamic adapter configuration
// and mapping transformations.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/flowmesh/flowmesh/pkg/models"
)

// RenderWithContext renders a template against the execution context,
// exposing trigger data, step results, variables and execution identity.
func RenderWithContext(input string, executionCtx *models.ExecutionContext) (any, error) {
	data := map[string]any{
		"trigger_data": executionCtx.TriggerData,
		"step_results": executionCtx.StepResults,
		"variables":    executionCtx.Variables,
		"vars":         executionCtx.Variables,
		"metadata":     executionCtx.Metadata,
		"execution": map[string]any{
			"id":             executionCtx.ID,
			"flow_id":        executionCtx.FlowID,
			"tenant_id":      executionCtx.TenantID,
			"correlation_id": executionCtx.CorrelationID,
		},
	}

	return Render(input, data)
}

// Render executes a template over arbitrary data. Output that looks like a
// JSON document or array is decoded before being returned.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("transform").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}

				num := make([]byte, 1)
				if _, err := rand.Read(num); err != nil {
					return 0
				}

				return int(num[0]) % max
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"trim":  strings.TrimSpace,
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var decoded any
		if err := json.Unmarshal([]byte(result), &decoded); err == nil {
			return decoded, nil
		}
	}

	return result, nil
}

// RenderMap renders every string value of a configuration map, recursing
// into nested maps.
func RenderMap(config map[string]any, executionCtx *models.ExecutionContext) (map[string]any, error) {
	rendered := make(map[string]any, len(config))

	for key, value := range config {
		switch v := value.(type) {
		case string:
			out, err := RenderWithContext(v, executionCtx)
			if err != nil {
				return nil, err
			}

			rendered[key] = out
		case map[string]any:
			out, err := RenderMap(v, executionCtx)
			if err != nil {
				return nil, err
			}

			rendered[key] = out
		default:
			rendered[key] = value
		}
	}

	return rendered, nil
}
