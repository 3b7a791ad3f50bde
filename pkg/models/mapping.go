package models

import (
	"sort"
	"time"
)

// FieldMapping is a source-path to target-path transformation applied to the
// outbound payload before a target is dispatched.
type FieldMapping struct {
	ID           string    `json:"id"`
	TargetID     string    `json:"target_id"     validate:"required"`
	SourcePath   string    `json:"source_path"   validate:"required"`
	TargetPath   string    `json:"target_path"   validate:"required"`
	Transform    string    `json:"transform,omitempty"` // Optional template applied to the source value
	Required     bool      `json:"required"`
	MappingOrder int       `json:"mapping_order"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SortMappings orders mappings by mapping order, creation time breaking ties.
func SortMappings(mappings []*FieldMapping) {
	sort.SliceStable(mappings, func(i, j int) bool {
		if mappings[i].MappingOrder != mappings[j].MappingOrder {
			return mappings[i].MappingOrder < mappings[j].MappingOrder
		}

		return mappings[i].CreatedAt.Before(mappings[j].CreatedAt)
	})
}

// SortTargets orders targets by execution order, creation time breaking ties.
func SortTargets(targets []*OrchestrationTarget) {
	sort.SliceStable(targets, func(i, j int) bool {
		if targets[i].ExecutionOrder != targets[j].ExecutionOrder {
			return targets[i].ExecutionOrder < targets[j].ExecutionOrder
		}

		return targets[i].CreatedAt.Before(targets[j].CreatedAt)
	})
}

// MappingValidationResult is the report produced by mapping validation.
type MappingValidationResult struct {
	Valid                   bool     `json:"valid"`
	Errors                  []string `json:"errors"`
	Warnings                []string `json:"warnings"`
	TotalMappings           int      `json:"total_mappings"`
	ValidMappings           int      `json:"valid_mappings"`
	RequiredMappings        int      `json:"required_mappings"`
	MissingRequiredMappings int      `json:"missing_required_mappings"`
}
