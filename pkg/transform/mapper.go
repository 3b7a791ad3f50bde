// Package transform applies target-scoped field mappings to build outbound
// dispatch payloads.
package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/template"
	"github.com/tidwall/gjson"
)

var (
	// ErrMissingRequiredSource indicates a required mapping whose source
	// path does not resolve against the payload.
	ErrMissingRequiredSource = errors.New("required mapping source missing")

	// ErrMappingFailed indicates a transformation that could not be applied.
	ErrMappingFailed = errors.New("mapping failed")
)

// ApplyMappings builds the outbound payload for a target by applying its
// active mappings, in mapping order, to the inbound payload. A required
// mapping with no resolvable source aborts with ErrMissingRequiredSource;
// optional mappings with no source are skipped.
func ApplyMappings(mappings []*models.FieldMapping, payload map[string]any, executionCtx *models.ExecutionContext) (map[string]any, error) {
	if len(mappings) == 0 {
		return payload, nil
	}

	doc, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot encode payload: %w", ErrMappingFailed, err)
	}

	outbound := make(map[string]any)

	for _, mapping := range mappings {
		value, found := resolveSource(doc, mapping.SourcePath)

		if !found {
			if mapping.Required {
				return nil, fmt.Errorf("%w: mapping %s path %q", ErrMissingRequiredSource, mapping.ID, mapping.SourcePath)
			}

			continue
		}

		if mapping.Transform != "" {
			value, err = applyTransform(mapping, value, executionCtx)
			if err != nil {
				return nil, err
			}
		}

		if err := setPath(outbound, mapping.TargetPath, value); err != nil {
			return nil, fmt.Errorf("%w: mapping %s: %w", ErrMappingFailed, mapping.ID, err)
		}
	}

	return outbound, nil
}

func resolveSource(doc []byte, path string) (any, bool) {
	result := gjson.GetBytes(doc, path)
	if !result.Exists() || result.Type == gjson.Null {
		return nil, false
	}

	return result.Value(), true
}

// applyTransform renders the mapping's template with the source value bound
// as .value alongside the execution context data.
func applyTransform(mapping *models.FieldMapping, value any, executionCtx *models.ExecutionContext) (any, error) {
	data := map[string]any{"value": value}

	if executionCtx != nil {
		data["trigger_data"] = executionCtx.TriggerData
		data["step_results"] = executionCtx.StepResults
		data["variables"] = executionCtx.Variables
	}

	transformed, err := template.Render(mapping.Transform, data)
	if err != nil {
		return nil, fmt.Errorf("%w: mapping %s transform: %w", ErrMappingFailed, mapping.ID, err)
	}

	return transformed, nil
}

// setPath writes a value into a nested map along a dotted path, creating
// intermediate maps as needed.
func setPath(target map[string]any, path string, value any) error {
	if path == "" {
		return errors.New("target path must not be empty")
	}

	segments := strings.Split(path, ".")
	current := target

	for i, segment := range segments {
		if segment == "" {
			return fmt.Errorf("target path %q has an empty segment", path)
		}

		if i == len(segments)-1 {
			current[segment] = value

			return nil
		}

		next, ok := current[segment]
		if !ok {
			child := make(map[string]any)
			current[segment] = child
			current = child

			continue
		}

		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("target path %q collides with a non-object value at %q", path, segment)
		}

		current = child
	}

	return nil
}
