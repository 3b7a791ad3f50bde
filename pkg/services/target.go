package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrDuplicateExecutionOrder indicates two targets of one flow sharing an
// execution order.
var ErrDuplicateExecutionOrder = errors.New("duplicate execution order")

// ErrTargetNotFound indicates a target id that does not resolve in the flow.
var ErrTargetNotFound = errors.New("target not found")

// CreateTargetRequest represents the request to add a target to a draft flow.
type CreateTargetRequest struct {
	Name           string              `json:"name"            validate:"required"`
	ExecutionOrder int                 `json:"execution_order" validate:"gte=0"`
	AdapterType    string              `json:"adapter_type"    validate:"required"`
	AdapterConfig  map[string]any      `json:"adapter_config"`
	RouterID       string              `json:"router_id"`
	Active         bool                `json:"active"`
	RetryPolicy    *models.RetryPolicy `json:"retry_policy"`
}

// UpdateTargetRequest represents a partial target update.
type UpdateTargetRequest struct {
	Name           string              `json:"name"`
	ExecutionOrder *int                `json:"execution_order" validate:"omitempty,gte=0"`
	AdapterConfig  map[string]any      `json:"adapter_config"`
	RouterID       *string             `json:"router_id"`
	Active         *bool               `json:"active"`
	RetryPolicy    *models.RetryPolicy `json:"retry_policy"`
}

// Target handles design-time target and mapping edits on draft flows. The
// runtime registry is only reloaded when the flow is deployed.
type Target struct {
	persistence persistence.Persistence
	validator   *validator.Validate
}

// NewTarget creates a new target service.
func NewTarget(store persistence.Persistence) *Target {
	return &Target{
		persistence: store,
		validator:   validator.New(),
	}
}

func (s *Target) draftFlow(ctx context.Context, flowID string) (*models.IntegrationFlow, error) {
	flow, err := s.persistence.FlowByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if flow.State == models.DeploymentStateDeployed {
		return nil, ErrCannotModifyDeployed
	}

	return flow, nil
}

// CreateTarget adds a target to a draft flow. Execution orders must be
// unique within the flow.
func (s *Target) CreateTarget(ctx context.Context, flowID string, req *CreateTargetRequest) (*models.OrchestrationTarget, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, NewValidationError("CreateTarget", "invalid_request", err.Error(), ErrInvalidRequest)
	}

	flow, err := s.draftFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}

	for _, existing := range flow.Targets {
		if existing.ExecutionOrder == req.ExecutionOrder {
			return nil, fmt.Errorf("%w: order %d is taken by target %s",
				ErrDuplicateExecutionOrder, req.ExecutionOrder, existing.ID)
		}
	}

	now := time.Now().UTC()
	target := &models.OrchestrationTarget{
		ID:             uuid.New().String(),
		FlowID:         flow.ID,
		Name:           req.Name,
		ExecutionOrder: req.ExecutionOrder,
		Active:         req.Active,
		AdapterType:    req.AdapterType,
		AdapterConfig:  req.AdapterConfig,
		RouterID:       req.RouterID,
		RetryPolicy:    req.RetryPolicy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	flow.Targets = append(flow.Targets, target)
	flow.UpdatedAt = now

	if err := s.persistence.SaveFlow(ctx, flow); err != nil {
		return nil, fmt.Errorf("failed to save flow: %w", err)
	}

	return target, nil
}

// UpdateTarget applies a partial update to a target on a draft flow.
func (s *Target) UpdateTarget(ctx context.Context, flowID, targetID string, req *UpdateTargetRequest) (*models.OrchestrationTarget, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, NewValidationError("UpdateTarget", "invalid_request", err.Error(), ErrInvalidRequest)
	}

	flow, err := s.draftFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}

	target, ok := flow.TargetByID(targetID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, targetID)
	}

	if req.ExecutionOrder != nil {
		for _, existing := range flow.Targets {
			if existing.ID != targetID && existing.ExecutionOrder == *req.ExecutionOrder {
				return nil, fmt.Errorf("%w: order %d is taken by target %s",
					ErrDuplicateExecutionOrder, *req.ExecutionOrder, existing.ID)
			}
		}

		target.ExecutionOrder = *req.ExecutionOrder
	}

	if req.Name != "" {
		target.Name = req.Name
	}

	if req.AdapterConfig != nil {
		target.AdapterConfig = req.AdapterConfig
	}

	if req.RouterID != nil {
		target.RouterID = *req.RouterID
	}

	if req.Active != nil {
		target.Active = *req.Active
	}

	if req.RetryPolicy != nil {
		target.RetryPolicy = req.RetryPolicy
	}

	target.UpdatedAt = time.Now().UTC()
	flow.UpdatedAt = target.UpdatedAt

	if err := s.persistence.SaveFlow(ctx, flow); err != nil {
		return nil, fmt.Errorf("failed to save flow: %w", err)
	}

	return target, nil
}

// DeleteTarget removes a target from a draft flow.
func (s *Target) DeleteTarget(ctx context.Context, flowID, targetID string) error {
	flow, err := s.draftFlow(ctx, flowID)
	if err != nil {
		return err
	}

	for i, target := range flow.Targets {
		if target.ID == targetID {
			flow.Targets = append(flow.Targets[:i], flow.Targets[i+1:]...)
			flow.UpdatedAt = time.Now().UTC()

			return s.persistence.SaveFlow(ctx, flow)
		}
	}

	return fmt.Errorf("%w: %s", ErrTargetNotFound, targetID)
}

// CreateMapping adds a field mapping to a target on a draft flow.
func (s *Target) CreateMapping(ctx context.Context, flowID, targetID string, mapping *models.FieldMapping) (*models.FieldMapping, error) {
	if mapping == nil || mapping.SourcePath == "" || mapping.TargetPath == "" {
		return nil, NewValidationError("CreateMapping", "invalid_request",
			"source_path and target_path are required", ErrInvalidRequest)
	}

	flow, err := s.draftFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}

	target, ok := flow.TargetByID(targetID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, targetID)
	}

	now := time.Now().UTC()
	mapping.ID = uuid.New().String()
	mapping.TargetID = target.ID
	mapping.CreatedAt = now
	mapping.UpdatedAt = now

	target.Mappings = append(target.Mappings, mapping)
	target.UpdatedAt = now
	flow.UpdatedAt = now

	if err := s.persistence.SaveFlow(ctx, flow); err != nil {
		return nil, fmt.Errorf("failed to save flow: %w", err)
	}

	return mapping, nil
}

// DeleteMapping removes a field mapping from a target on a draft flow.
func (s *Target) DeleteMapping(ctx context.Context, flowID, targetID, mappingID string) error {
	flow, err := s.draftFlow(ctx, flowID)
	if err != nil {
		return err
	}

	target, ok := flow.TargetByID(targetID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, targetID)
	}

	for i, mapping := range target.Mappings {
		if mapping.ID == mappingID {
			target.Mappings = append(target.Mappings[:i], target.Mappings[i+1:]...)
			flow.UpdatedAt = time.Now().UTC()

			return s.persistence.SaveFlow(ctx, flow)
		}
	}

	return fmt.Errorf("mapping %s: %w", mappingID, ErrTargetNotFound)
}
