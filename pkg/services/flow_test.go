package services

import (
	"context"
	"testing"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/flowmesh/flowmesh/pkg/persistence"
	"github.com/flowmesh/flowmesh/pkg/persistence/file"
	"github.com/flowmesh/flowmesh/pkg/targets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlowService(t *testing.T) (*Flow, *targets.Registry) {
	t.Helper()

	registry := targets.NewRegistry()

	return NewFlow(file.NewPersistence(t.TempDir()), registry), registry
}

func TestCreateFlow(t *testing.T) {
	s, _ := newFlowService(t)

	flow, err := s.CreateFlow(context.Background(), &CreateFlowRequest{
		Name:  "order-routing",
		Owner: "ops",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, flow.ID)
	assert.Equal(t, models.DeploymentStateDraft, flow.State)
	assert.Equal(t, 1, flow.Version)

	loaded, err := s.GetFlow(context.Background(), flow.ID)
	require.NoError(t, err)
	assert.Equal(t, "order-routing", loaded.Name)
}

func TestCreateFlow_ValidationFails(t *testing.T) {
	s, _ := newFlowService(t)

	_, err := s.CreateFlow(context.Background(), &CreateFlowRequest{Name: "ab"})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestDeployFlow_RequiresActiveTarget(t *testing.T) {
	s, _ := newFlowService(t)
	ctx := context.Background()

	flow, err := s.CreateFlow(ctx, &CreateFlowRequest{Name: "order-routing"})
	require.NoError(t, err)

	_, err = s.DeployFlow(ctx, flow.ID)
	require.ErrorIs(t, err, ErrNoActiveTargets)
	assert.True(t, IsConflictError(err))
}

func TestDeployUndeployLifecycle(t *testing.T) {
	s, registry := newFlowService(t)
	ctx := context.Background()

	flow, err := s.CreateFlow(ctx, &CreateFlowRequest{Name: "order-routing"})
	require.NoError(t, err)

	targetService := NewTarget(s.persistence)
	_, err = targetService.CreateTarget(ctx, flow.ID, &CreateTargetRequest{
		Name:           "crm",
		ExecutionOrder: 1,
		AdapterType:    "log",
		Active:         true,
	})
	require.NoError(t, err)

	deployed, err := s.DeployFlow(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeploymentStateDeployed, deployed.State)
	assert.NotNil(t, deployed.DeployedAt)
	assert.Equal(t, 2, deployed.Version)

	ok, err := s.IsDeployed(ctx, flow.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Len(t, registry.GetFlowTargets(flow.ID, true), 1)

	_, err = s.DeployFlow(ctx, flow.ID)
	require.ErrorIs(t, err, ErrAlreadyDeployed)

	undeployed, err := s.UndeployFlow(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeploymentStateUndeployed, undeployed.State)
	assert.Nil(t, undeployed.DeployedAt)

	ok, err = s.IsDeployed(ctx, flow.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.UndeployFlow(ctx, flow.ID)
	require.ErrorIs(t, err, ErrNotDeployed)
}

func TestUpdateFlow_DeployedRejected(t *testing.T) {
	s, _ := newFlowService(t)
	ctx := context.Background()

	flow, err := s.CreateFlow(ctx, &CreateFlowRequest{Name: "order-routing"})
	require.NoError(t, err)

	targetService := NewTarget(s.persistence)
	_, err = targetService.CreateTarget(ctx, flow.ID, &CreateTargetRequest{
		Name: "crm", ExecutionOrder: 1, AdapterType: "log", Active: true,
	})
	require.NoError(t, err)

	_, err = s.DeployFlow(ctx, flow.ID)
	require.NoError(t, err)

	_, err = s.UpdateFlow(ctx, flow.ID, &UpdateFlowRequest{Name: "renamed"})
	require.ErrorIs(t, err, ErrCannotModifyDeployed)
	assert.True(t, IsConflictError(err))
}

func TestDeleteFlow(t *testing.T) {
	s, _ := newFlowService(t)
	ctx := context.Background()

	flow, err := s.CreateFlow(ctx, &CreateFlowRequest{Name: "order-routing"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteFlow(ctx, flow.ID))

	_, err = s.GetFlow(ctx, flow.ID)
	assert.True(t, persistence.IsFlowNotFound(err))
}

func TestDeleteFlow_DeployedRejected(t *testing.T) {
	s, _ := newFlowService(t)
	ctx := context.Background()

	flow, err := s.CreateFlow(ctx, &CreateFlowRequest{Name: "order-routing"})
	require.NoError(t, err)

	targetService := NewTarget(s.persistence)
	_, err = targetService.CreateTarget(ctx, flow.ID, &CreateTargetRequest{
		Name: "crm", ExecutionOrder: 1, AdapterType: "log", Active: true,
	})
	require.NoError(t, err)

	_, err = s.DeployFlow(ctx, flow.ID)
	require.NoError(t, err)

	require.ErrorIs(t, s.DeleteFlow(ctx, flow.ID), ErrCannotDeleteDeployed)
}

func TestLoadDeployedFlows(t *testing.T) {
	s, registry := newFlowService(t)
	ctx := context.Background()

	flow, err := s.CreateFlow(ctx, &CreateFlowRequest{Name: "order-routing"})
	require.NoError(t, err)

	targetService := NewTarget(s.persistence)
	_, err = targetService.CreateTarget(ctx, flow.ID, &CreateTargetRequest{
		Name: "crm", ExecutionOrder: 1, AdapterType: "log", Active: true,
	})
	require.NoError(t, err)

	_, err = s.DeployFlow(ctx, flow.ID)
	require.NoError(t, err)

	fresh := targets.NewRegistry()
	reloaded := NewFlow(s.persistence, fresh)
	require.NoError(t, reloaded.LoadDeployedFlows(ctx))

	assert.Len(t, fresh.GetFlowTargets(flow.ID, true), 1)
	_ = registry
}
