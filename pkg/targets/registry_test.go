package targets

import (
	"testing"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addTarget(t *testing.T, registry *Registry, flowID, id string, order int, active bool) *models.OrchestrationTarget {
	t.Helper()

	target, err := registry.AddTarget(&models.OrchestrationTarget{
		ID:             id,
		FlowID:         flowID,
		Name:           id,
		ExecutionOrder: order,
		Active:         active,
		AdapterType:    "log",
	})
	require.NoError(t, err)

	return target
}

func TestAddTarget_RejectsDuplicateOrder(t *testing.T) {
	registry := NewRegistry()
	addTarget(t, registry, "flow-1", "t1", 1, true)

	_, err := registry.AddTarget(&models.OrchestrationTarget{
		FlowID:         "flow-1",
		Name:           "t2",
		ExecutionOrder: 1,
		AdapterType:    "log",
	})
	require.ErrorIs(t, err, ErrDuplicateExecutionOrder)
}

func TestAddTarget_SameOrderDifferentFlows(t *testing.T) {
	registry := NewRegistry()
	addTarget(t, registry, "flow-1", "t1", 1, true)
	addTarget(t, registry, "flow-2", "t2", 1, true)
}

func TestUpdateTarget_RejectsDuplicateOrder(t *testing.T) {
	registry := NewRegistry()
	addTarget(t, registry, "flow-1", "t1", 1, true)
	target := addTarget(t, registry, "flow-1", "t2", 2, true)

	target.ExecutionOrder = 1
	_, err := registry.UpdateTarget(target)
	require.ErrorIs(t, err, ErrDuplicateExecutionOrder)
}

func TestGetFlowTargets_SortedAscending(t *testing.T) {
	registry := NewRegistry()

	// Creation order deliberately differs from execution order.
	addTarget(t, registry, "flow-1", "t3", 30, true)
	addTarget(t, registry, "flow-1", "t1", 10, true)
	addTarget(t, registry, "flow-1", "t2", 20, false)

	all := registry.GetFlowTargets("flow-1", false)
	require.Len(t, all, 3)
	assert.Equal(t, "t1", all[0].ID)
	assert.Equal(t, "t2", all[1].ID)
	assert.Equal(t, "t3", all[2].ID)

	active := registry.GetFlowTargets("flow-1", true)
	require.Len(t, active, 2)
	assert.Equal(t, "t1", active[0].ID)
	assert.Equal(t, "t3", active[1].ID)
}

func TestActivateDeactivateTarget(t *testing.T) {
	registry := NewRegistry()
	addTarget(t, registry, "flow-1", "t1", 1, true)

	require.NoError(t, registry.DeactivateTarget("flow-1", "t1"))
	assert.Empty(t, registry.GetFlowTargets("flow-1", true))

	require.NoError(t, registry.ActivateTarget("flow-1", "t1"))
	assert.Len(t, registry.GetFlowTargets("flow-1", true), 1)

	require.ErrorIs(t, registry.ActivateTarget("flow-1", "ghost"), ErrTargetNotFound)
}

func TestReorderTargets_Atomic(t *testing.T) {
	registry := NewRegistry()
	addTarget(t, registry, "flow-1", "t1", 1, true)
	addTarget(t, registry, "flow-1", "t2", 2, true)
	addTarget(t, registry, "flow-1", "t3", 3, true)

	// Duplicate target order in the batch: nothing may change.
	_, err := registry.ReorderTargets("flow-1", []TargetOrder{
		{TargetID: "t1", NewOrder: 5},
		{TargetID: "t2", NewOrder: 5},
	})
	require.ErrorIs(t, err, ErrInvalidOrdering)

	unchanged := registry.GetFlowTargets("flow-1", false)
	assert.Equal(t, 1, unchanged[0].ExecutionOrder)
	assert.Equal(t, 2, unchanged[1].ExecutionOrder)
	assert.Equal(t, 3, unchanged[2].ExecutionOrder)

	// A consistent batch swaps cleanly.
	reordered, err := registry.ReorderTargets("flow-1", []TargetOrder{
		{TargetID: "t1", NewOrder: 3},
		{TargetID: "t3", NewOrder: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "t3", reordered[0].ID)
	assert.Equal(t, "t2", reordered[1].ID)
	assert.Equal(t, "t1", reordered[2].ID)
}

func TestReorderTargets_UnknownTarget(t *testing.T) {
	registry := NewRegistry()
	addTarget(t, registry, "flow-1", "t1", 1, true)

	_, err := registry.ReorderTargets("flow-1", []TargetOrder{{TargetID: "ghost", NewOrder: 2}})
	require.ErrorIs(t, err, ErrInvalidOrdering)
}

func TestRemoveTarget(t *testing.T) {
	registry := NewRegistry()
	addTarget(t, registry, "flow-1", "t1", 1, true)

	require.NoError(t, registry.RemoveTarget("flow-1", "t1"))
	require.ErrorIs(t, registry.RemoveTarget("flow-1", "t1"), ErrTargetNotFound)
}

func TestLoadFlowAndDropFlow(t *testing.T) {
	registry := NewRegistry()

	registry.LoadFlow(&models.IntegrationFlow{
		ID: "flow-1",
		Targets: []*models.OrchestrationTarget{
			{ID: "t1", FlowID: "flow-1", ExecutionOrder: 1, Active: true},
			{ID: "t2", FlowID: "flow-1", ExecutionOrder: 2, Active: true},
		},
	})

	assert.Len(t, registry.GetFlowTargets("flow-1", false), 2)

	registry.DropFlow("flow-1")
	assert.Empty(t, registry.GetFlowTargets("flow-1", false))
}
