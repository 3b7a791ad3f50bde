package targets

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

var (
	// ErrMappingNotFound indicates a lookup for an unknown mapping id.
	ErrMappingNotFound = errors.New("mapping not found")

	// ErrDuplicateMappingOrder indicates a mutation that would leave two
	// active mappings of one target with the same mapping order.
	ErrDuplicateMappingOrder = errors.New("duplicate mapping order")

	// ErrInvalidMapping indicates a mapping definition that cannot be stored.
	ErrInvalidMapping = errors.New("invalid mapping")
)

// CreateMapping attaches a field mapping to a target, keeping mapping order
// unique among the target's active mappings.
func (r *Registry) CreateMapping(flowID string, mapping *models.FieldMapping) (*models.FieldMapping, error) {
	ft := r.flow(flowID)

	ft.mu.Lock()
	defer ft.mu.Unlock()

	target, ok := ft.targets[mapping.TargetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, mapping.TargetID)
	}

	if mapping.Active {
		for _, existing := range target.Mappings {
			if existing.Active && existing.MappingOrder == mapping.MappingOrder {
				return nil, fmt.Errorf("%w: order %d already held by mapping %s",
					ErrDuplicateMappingOrder, mapping.MappingOrder, existing.ID)
			}
		}
	}

	if mapping.ID == "" {
		mapping.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	mapping.CreatedAt = now
	mapping.UpdatedAt = now

	target.Mappings = append(target.Mappings, mapping)

	return mapping, nil
}

// CreateMappings creates a batch of mappings all-or-nothing: a single
// invalid entry rejects the whole batch before any state is written.
func (r *Registry) CreateMappings(flowID, targetID string, mappings []*models.FieldMapping) ([]*models.FieldMapping, error) {
	ft := r.flow(flowID)

	ft.mu.Lock()
	defer ft.mu.Unlock()

	target, ok := ft.targets[targetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, targetID)
	}

	seen := make(map[int]string)

	for _, existing := range target.Mappings {
		if existing.Active {
			seen[existing.MappingOrder] = existing.ID
		}
	}

	for _, mapping := range mappings {
		if mapping.SourcePath == "" || mapping.TargetPath == "" {
			return nil, fmt.Errorf("%w: mapping needs source and target paths", ErrInvalidMapping)
		}

		if !mapping.Active {
			continue
		}

		if holder, dup := seen[mapping.MappingOrder]; dup {
			return nil, fmt.Errorf("%w: order %d already held by mapping %s",
				ErrDuplicateMappingOrder, mapping.MappingOrder, holder)
		}

		seen[mapping.MappingOrder] = mapping.ID
	}

	now := time.Now().UTC()

	for _, mapping := range mappings {
		if mapping.ID == "" {
			mapping.ID = uuid.New().String()
		}

		mapping.TargetID = targetID
		mapping.CreatedAt = now
		mapping.UpdatedAt = now
		target.Mappings = append(target.Mappings, mapping)
	}

	return mappings, nil
}

// UpdateMapping replaces a mapping's mutable fields.
func (r *Registry) UpdateMapping(flowID string, mapping *models.FieldMapping) (*models.FieldMapping, error) {
	ft := r.flow(flowID)

	ft.mu.Lock()
	defer ft.mu.Unlock()

	target, ok := ft.targets[mapping.TargetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, mapping.TargetID)
	}

	var existing *models.FieldMapping

	for _, candidate := range target.Mappings {
		if candidate.ID == mapping.ID {
			existing = candidate

			break
		}
	}

	if existing == nil {
		return nil, fmt.Errorf("%w: %s", ErrMappingNotFound, mapping.ID)
	}

	if mapping.Active {
		for _, other := range target.Mappings {
			if other.ID != mapping.ID && other.Active && other.MappingOrder == mapping.MappingOrder {
				return nil, fmt.Errorf("%w: order %d already held by mapping %s",
					ErrDuplicateMappingOrder, mapping.MappingOrder, other.ID)
			}
		}
	}

	existing.SourcePath = mapping.SourcePath
	existing.TargetPath = mapping.TargetPath
	existing.Transform = mapping.Transform
	existing.Required = mapping.Required
	existing.MappingOrder = mapping.MappingOrder
	existing.Active = mapping.Active
	existing.UpdatedAt = time.Now().UTC()

	return existing, nil
}

// DeleteMapping removes a mapping from its target.
func (r *Registry) DeleteMapping(flowID, targetID, mappingID string) error {
	ft := r.flow(flowID)

	ft.mu.Lock()
	defer ft.mu.Unlock()

	target, ok := ft.targets[targetID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, targetID)
	}

	for i, mapping := range target.Mappings {
		if mapping.ID == mappingID {
			target.Mappings = append(target.Mappings[:i], target.Mappings[i+1:]...)

			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrMappingNotFound, mappingID)
}

// MappingOrder pairs a mapping id with its new order for reordering.
type MappingOrder struct {
	MappingID string `json:"mapping_id" validate:"required"`
	NewOrder  int    `json:"new_order"`
}

// ReorderMappings applies a batch of mapping order changes atomically.
func (r *Registry) ReorderMappings(flowID, targetID string, orders []MappingOrder) ([]*models.FieldMapping, error) {
	ft := r.flow(flowID)

	ft.mu.Lock()
	defer ft.mu.Unlock()

	target, ok := ft.targets[targetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, targetID)
	}

	byID := make(map[string]*models.FieldMapping, len(target.Mappings))
	proposed := make(map[string]int, len(target.Mappings))

	for _, mapping := range target.Mappings {
		byID[mapping.ID] = mapping
		proposed[mapping.ID] = mapping.MappingOrder
	}

	for _, order := range orders {
		if _, ok := proposed[order.MappingID]; !ok {
			return nil, fmt.Errorf("%w: unknown mapping %s", ErrInvalidOrdering, order.MappingID)
		}

		proposed[order.MappingID] = order.NewOrder
	}

	seen := make(map[int]string)

	for id, order := range proposed {
		if !byID[id].Active {
			continue
		}

		if holder, dup := seen[order]; dup {
			return nil, fmt.Errorf("%w: mappings %s and %s would share order %d",
				ErrInvalidOrdering, holder, id, order)
		}

		seen[order] = id
	}

	now := time.Now().UTC()

	for id, order := range proposed {
		if byID[id].MappingOrder != order {
			byID[id].MappingOrder = order
			byID[id].UpdatedAt = now
		}
	}

	sorted := append([]*models.FieldMapping(nil), target.Mappings...)
	models.SortMappings(sorted)

	return sorted, nil
}

// ValidateMappings checks a target's mappings against a sample payload. A
// required mapping whose source path does not resolve is an error; an
// inactive-but-required mapping is a warning since it will be skipped at
// execution time. With a nil payload only static checks run.
func (r *Registry) ValidateMappings(flowID, targetID string, samplePayload map[string]any) (*models.MappingValidationResult, error) {
	ft := r.flow(flowID)

	ft.mu.RLock()
	defer ft.mu.RUnlock()

	target, ok := ft.targets[targetID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, targetID)
	}

	result := &models.MappingValidationResult{
		Errors:        make([]string, 0),
		Warnings:      make([]string, 0),
		TotalMappings: len(target.Mappings),
	}

	var doc []byte

	if samplePayload != nil {
		encoded, err := json.Marshal(samplePayload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode sample payload: %w", err)
		}

		doc = encoded
	}

	for _, mapping := range target.Mappings {
		if mapping.Required {
			result.RequiredMappings++
		}

		if mapping.Required && !mapping.Active {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"mapping %s is required but inactive and will be skipped at execution", mapping.ID))
		}

		if mapping.SourcePath == "" || mapping.TargetPath == "" {
			result.Errors = append(result.Errors, fmt.Sprintf(
				"mapping %s is missing a source or target path", mapping.ID))

			continue
		}

		if doc != nil && mapping.Active {
			resolved := gjson.GetBytes(doc, mapping.SourcePath)
			if !resolved.Exists() || resolved.Type == gjson.Null {
				if mapping.Required {
					result.Errors = append(result.Errors, fmt.Sprintf(
						"required mapping %s: source path %q does not resolve", mapping.ID, mapping.SourcePath))
					result.MissingRequiredMappings++

					continue
				}

				result.Warnings = append(result.Warnings, fmt.Sprintf(
					"mapping %s: source path %q does not resolve", mapping.ID, mapping.SourcePath))
			}
		}

		result.ValidMappings++
	}

	result.Valid = len(result.Errors) == 0

	return result, nil
}
