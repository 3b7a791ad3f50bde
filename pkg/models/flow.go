// Package models defines the core domain models for integration-flow orchestration.
package models

import "time"

// DeploymentState represents the lifecycle state of an integration flow.
type DeploymentState string

const (
	DeploymentStateDraft      DeploymentState = "draft"      // Editable, not executable
	DeploymentStateDeployed   DeploymentState = "deployed"   // Accepts execution requests
	DeploymentStateUndeployed DeploymentState = "undeployed" // Historical, not executable
)

// SuccessPolicy decides when an execution counts as successful.
type SuccessPolicy string

const (
	SuccessPolicyAllTargets SuccessPolicy = "all" // Every active target must succeed
	SuccessPolicyAnyTarget  SuccessPolicy = "any" // At least one active target must succeed
)

// IntegrationFlow represents a configured, deployable sequence of orchestration targets.
type IntegrationFlow struct {
	ID            string                `json:"id"`
	Name          string                `json:"name"          validate:"required,min=3"`
	Description   string                `json:"description"`
	Version       int                   `json:"version"`
	State         DeploymentState       `json:"state"         validate:"required"`
	Targets       []*OrchestrationTarget `json:"targets"`
	SuccessPolicy SuccessPolicy         `json:"success_policy,omitempty"`
	FailFast      bool                  `json:"fail_fast,omitempty"`
	Variables     map[string]any        `json:"variables,omitempty"`
	Metadata      map[string]any        `json:"metadata,omitempty"`
	Owner         string                `json:"owner"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
	DeployedAt    *time.Time            `json:"deployed_at,omitempty"`
	DeletedAt     *time.Time            `json:"deleted_at,omitempty"`
}

// IsDeployed reports whether the flow currently accepts execution requests.
func (f *IntegrationFlow) IsDeployed() bool {
	return f.State == DeploymentStateDeployed && f.DeletedAt == nil
}

// EffectiveSuccessPolicy returns the configured policy, defaulting to all-targets.
func (f *IntegrationFlow) EffectiveSuccessPolicy() SuccessPolicy {
	if f.SuccessPolicy == "" {
		return SuccessPolicyAllTargets
	}

	return f.SuccessPolicy
}

// TargetByID finds a target owned by this flow.
func (f *IntegrationFlow) TargetByID(targetID string) (*OrchestrationTarget, bool) {
	for _, target := range f.Targets {
		if target.ID == targetID {
			return target, true
		}
	}

	return nil, false
}
