package services

import (
	"context"
	"fmt"
	"time"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/persistence"
	"github.com/flowmesh/flowmesh/pkg/targets"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// CreateFlowRequest represents the request to create a new integration flow.
type CreateFlowRequest struct {
	Name          string               `json:"name"           validate:"required,min=3"`
	Description   string               `json:"description"`
	Owner         string               `json:"owner"`
	SuccessPolicy models.SuccessPolicy `json:"success_policy" validate:"omitempty,oneof=all any"`
	FailFast      bool                 `json:"fail_fast"`
	Variables     map[string]any       `json:"variables"`
}

// UpdateFlowRequest represents the request to update a draft flow.
type UpdateFlowRequest struct {
	Name          string               `json:"name"           validate:"omitempty,min=3"`
	Description   *string              `json:"description"`
	SuccessPolicy models.SuccessPolicy `json:"success_policy" validate:"omitempty,oneof=all any"`
	FailFast      *bool                `json:"fail_fast"`
	Variables     map[string]any       `json:"variables"`
}

// Flow handles flow lifecycle business operations. Deployed flows are loaded
// into the target registry so the executor sees them.
type Flow struct {
	persistence persistence.Persistence
	registry    *targets.Registry
	validator   *validator.Validate
}

// NewFlow creates a new flow service.
func NewFlow(store persistence.Persistence, registry *targets.Registry) *Flow {
	return &Flow{
		persistence: store,
		registry:    registry,
		validator:   validator.New(),
	}
}

// CreateFlow creates a new flow in DRAFT state.
func (s *Flow) CreateFlow(ctx context.Context, req *CreateFlowRequest) (*models.IntegrationFlow, error) {
	if req == nil {
		return nil, ErrFlowNil
	}

	if err := s.validator.Struct(req); err != nil {
		return nil, NewValidationError("CreateFlow", "invalid_request", err.Error(), ErrInvalidRequest)
	}

	now := time.Now().UTC()
	flow := &models.IntegrationFlow{
		ID:            uuid.New().String(),
		Name:          req.Name,
		Description:   req.Description,
		Version:       1,
		State:         models.DeploymentStateDraft,
		SuccessPolicy: req.SuccessPolicy,
		FailFast:      req.FailFast,
		Variables:     req.Variables,
		Owner:         req.Owner,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.persistence.SaveFlow(ctx, flow); err != nil {
		return nil, fmt.Errorf("failed to save flow: %w", err)
	}

	return flow, nil
}

// GetFlow loads one flow by id.
func (s *Flow) GetFlow(ctx context.Context, id string) (*models.IntegrationFlow, error) {
	return s.persistence.FlowByID(ctx, id)
}

// ListFlows returns every stored flow.
func (s *Flow) ListFlows(ctx context.Context) ([]*models.IntegrationFlow, error) {
	return s.persistence.Flows(ctx)
}

// UpdateFlow applies a partial update to a DRAFT flow.
func (s *Flow) UpdateFlow(ctx context.Context, id string, req *UpdateFlowRequest) (*models.IntegrationFlow, error) {
	if req == nil {
		return nil, ErrFlowNil
	}

	if err := s.validator.Struct(req); err != nil {
		return nil, NewValidationError("UpdateFlow", "invalid_request", err.Error(), ErrInvalidRequest)
	}

	flow, err := s.persistence.FlowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if flow.State == models.DeploymentStateDeployed {
		return nil, ErrCannotModifyDeployed
	}

	if req.Name != "" {
		flow.Name = req.Name
	}

	if req.Description != nil {
		flow.Description = *req.Description
	}

	if req.SuccessPolicy != "" {
		flow.SuccessPolicy = req.SuccessPolicy
	}

	if req.FailFast != nil {
		flow.FailFast = *req.FailFast
	}

	if req.Variables != nil {
		flow.Variables = req.Variables
	}

	flow.UpdatedAt = time.Now().UTC()

	if err := s.persistence.SaveFlow(ctx, flow); err != nil {
		return nil, fmt.Errorf("failed to save flow: %w", err)
	}

	return flow, nil
}

// DeleteFlow removes a flow and drops its targets from the registry.
// Deployed flows must be undeployed first.
func (s *Flow) DeleteFlow(ctx context.Context, id string) error {
	flow, err := s.persistence.FlowByID(ctx, id)
	if err != nil {
		return err
	}

	if flow.State == models.DeploymentStateDeployed {
		return ErrCannotDeleteDeployed
	}

	if err := s.persistence.DeleteFlow(ctx, id); err != nil {
		return err
	}

	s.registry.DropFlow(id)

	return nil
}

// DeployFlow moves a DRAFT or UNDEPLOYED flow to DEPLOYED. Deployment
// requires at least one active target and loads the flow into the registry.
func (s *Flow) DeployFlow(ctx context.Context, id string) (*models.IntegrationFlow, error) {
	flow, err := s.persistence.FlowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if flow.State == models.DeploymentStateDeployed {
		return nil, ErrAlreadyDeployed
	}

	active := 0

	for _, target := range flow.Targets {
		if target.Active {
			active++
		}
	}

	if active == 0 {
		return nil, ErrNoActiveTargets
	}

	now := time.Now().UTC()
	flow.State = models.DeploymentStateDeployed
	flow.DeployedAt = &now
	flow.UpdatedAt = now
	flow.Version++

	if err := s.persistence.SaveFlow(ctx, flow); err != nil {
		return nil, fmt.Errorf("failed to save flow: %w", err)
	}

	s.registry.LoadFlow(flow)

	return flow, nil
}

// UndeployFlow moves a DEPLOYED flow to UNDEPLOYED and drops it from the
// registry so no further executions are admitted.
func (s *Flow) UndeployFlow(ctx context.Context, id string) (*models.IntegrationFlow, error) {
	flow, err := s.persistence.FlowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if flow.State != models.DeploymentStateDeployed {
		return nil, ErrNotDeployed
	}

	flow.State = models.DeploymentStateUndeployed
	flow.DeployedAt = nil
	flow.UpdatedAt = time.Now().UTC()

	if err := s.persistence.SaveFlow(ctx, flow); err != nil {
		return nil, fmt.Errorf("failed to save flow: %w", err)
	}

	s.registry.DropFlow(id)

	return flow, nil
}

// FlowByID implements the executor's flow source.
func (s *Flow) FlowByID(ctx context.Context, id string) (*models.IntegrationFlow, error) {
	return s.persistence.FlowByID(ctx, id)
}

// IsDeployed implements the queue's deployment checker.
func (s *Flow) IsDeployed(ctx context.Context, flowID string) (bool, error) {
	flow, err := s.persistence.FlowByID(ctx, flowID)
	if err != nil {
		if persistence.IsFlowNotFound(err) {
			return false, nil
		}

		return false, err
	}

	return flow.IsDeployed(), nil
}

// ExecutionHistory returns persisted execution traces for a flow, newest
// first.
func (s *Flow) ExecutionHistory(ctx context.Context, flowID string, limit int) ([]*models.FlowExecution, error) {
	return s.persistence.Executions(ctx, flowID, limit)
}

// HealthCheck reports whether the backing store is reachable.
func (s *Flow) HealthCheck(ctx context.Context) (string, bool) {
	if err := s.persistence.HealthCheck(ctx); err != nil {
		return err.Error(), false
	}

	return "ok", true
}

// LoadDeployedFlows warms the target registry with every deployed flow,
// called once at startup.
func (s *Flow) LoadDeployedFlows(ctx context.Context) error {
	flows, err := s.persistence.Flows(ctx)
	if err != nil {
		return err
	}

	for _, flow := range flows {
		if flow.IsDeployed() {
			s.registry.LoadFlow(flow)
		}
	}

	return nil
}
