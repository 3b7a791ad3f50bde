package orchestration

import (
	"context"
	"fmt"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/registry"
)

// ValidationResult is the outcome of a static flow validation pass.
type ValidationResult struct {
	FlowID   string                                     `json:"flow_id"`
	Valid    bool                                       `json:"valid"`
	Errors   []string                                   `json:"errors,omitempty"`
	Warnings []string                                   `json:"warnings,omitempty"`
	Mappings map[string]*models.MappingValidationResult `json:"mappings,omitempty"`
}

// ValidateFlow statically checks a flow: mapping validation for every active
// target, adapter type and configuration checks, and router target-id
// resolution. Nothing is dispatched.
func (e *Executor) ValidateFlow(ctx context.Context, flowID string) (*ValidationResult, error) {
	flow, err := e.flows.FlowByID(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, flowID)
	}

	result := &ValidationResult{
		FlowID:   flow.ID,
		Valid:    true,
		Mappings: make(map[string]*models.MappingValidationResult),
	}

	flowTargets := e.targets.GetFlowTargets(flow.ID, false)
	if len(flowTargets) == 0 {
		result.Warnings = append(result.Warnings, "flow has no targets")
	}

	for _, target := range flowTargets {
		e.validateTarget(flow.ID, target, result)
	}

	result.Valid = len(result.Errors) == 0

	return result, nil
}

func (e *Executor) validateTarget(flowID string, target *models.OrchestrationTarget, result *ValidationResult) {
	if !target.Active {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("target %s is inactive and will be skipped", target.Name))
	}

	schema, err := e.adapters.Schema(target.AdapterType)
	if err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("target %s: adapter type %q is not registered", target.Name, target.AdapterType))
	} else if err := registry.ValidateConfig(schema, target.AdapterConfig); err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("target %s: %v", target.Name, err))
	}

	mappingResult, err := e.targets.ValidateMappings(flowID, target.ID, nil)
	if err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("target %s: mapping validation failed: %v", target.Name, err))
	} else {
		result.Mappings[target.ID] = mappingResult

		if !mappingResult.Valid {
			for _, issue := range mappingResult.Errors {
				result.Errors = append(result.Errors,
					fmt.Sprintf("target %s: %s", target.Name, issue))
			}
		}

		for _, warning := range mappingResult.Warnings {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("target %s: %s", target.Name, warning))
		}
	}

	if target.RouterID != "" {
		e.validateRouter(flowID, target, result)
	}
}

// validateRouter checks that the attached router exists and every target id
// it references resolves within the flow.
func (e *Executor) validateRouter(flowID string, target *models.OrchestrationTarget, result *ValidationResult) {
	config, err := e.routers.Router(target.RouterID)
	if err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("target %s: router %q not found", target.Name, target.RouterID))

		return
	}

	referenced := make(map[string]struct{})

	switch config.Type {
	case models.RouterTypeChoice:
		for _, choice := range config.Choices {
			for _, id := range choice.TargetIDs {
				referenced[id] = struct{}{}
			}
		}

		for _, id := range config.DefaultTargets {
			referenced[id] = struct{}{}
		}
	case models.RouterTypeContent:
		for _, ids := range config.Routes {
			for _, id := range ids {
				referenced[id] = struct{}{}
			}
		}
	}

	for id := range referenced {
		if _, err := e.targets.GetTarget(flowID, id); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("router %s references unknown target %q", config.ID, id))
		}
	}
}
