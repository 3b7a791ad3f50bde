package targets

import (
	"testing"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistryWithTarget(t *testing.T) *Registry {
	t.Helper()

	registry := NewRegistry()
	addTarget(t, registry, "flow-1", "t1", 1, true)

	return registry
}

func TestCreateMapping(t *testing.T) {
	registry := newRegistryWithTarget(t)

	mapping, err := registry.CreateMapping("flow-1", &models.FieldMapping{
		TargetID:     "t1",
		SourcePath:   "order.id",
		TargetPath:   "reference",
		MappingOrder: 1,
		Active:       true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, mapping.ID)
}

func TestCreateMapping_RejectsDuplicateActiveOrder(t *testing.T) {
	registry := newRegistryWithTarget(t)

	_, err := registry.CreateMapping("flow-1", &models.FieldMapping{
		TargetID: "t1", SourcePath: "a", TargetPath: "b", MappingOrder: 1, Active: true,
	})
	require.NoError(t, err)

	_, err = registry.CreateMapping("flow-1", &models.FieldMapping{
		TargetID: "t1", SourcePath: "c", TargetPath: "d", MappingOrder: 1, Active: true,
	})
	require.ErrorIs(t, err, ErrDuplicateMappingOrder)

	// Inactive mappings may share an order with an active one.
	_, err = registry.CreateMapping("flow-1", &models.FieldMapping{
		TargetID: "t1", SourcePath: "e", TargetPath: "f", MappingOrder: 1, Active: false,
	})
	require.NoError(t, err)
}

func TestCreateMappings_AllOrNothing(t *testing.T) {
	registry := newRegistryWithTarget(t)

	_, err := registry.CreateMappings("flow-1", "t1", []*models.FieldMapping{
		{SourcePath: "a", TargetPath: "b", MappingOrder: 1, Active: true},
		{SourcePath: "", TargetPath: "d", MappingOrder: 2, Active: true},
	})
	require.Error(t, err)

	// The valid first entry must not have been written.
	target, err := registry.GetTarget("flow-1", "t1")
	require.NoError(t, err)
	assert.Empty(t, target.Mappings)
}

func TestUpdateMapping(t *testing.T) {
	registry := newRegistryWithTarget(t)

	mapping, err := registry.CreateMapping("flow-1", &models.FieldMapping{
		TargetID: "t1", SourcePath: "a", TargetPath: "b", MappingOrder: 1, Active: true,
	})
	require.NoError(t, err)

	mapping.SourcePath = "a.b"
	mapping.Required = true

	updated, err := registry.UpdateMapping("flow-1", mapping)
	require.NoError(t, err)
	assert.Equal(t, "a.b", updated.SourcePath)
	assert.True(t, updated.Required)
}

func TestDeleteMapping(t *testing.T) {
	registry := newRegistryWithTarget(t)

	mapping, err := registry.CreateMapping("flow-1", &models.FieldMapping{
		TargetID: "t1", SourcePath: "a", TargetPath: "b", MappingOrder: 1, Active: true,
	})
	require.NoError(t, err)

	require.NoError(t, registry.DeleteMapping("flow-1", "t1", mapping.ID))
	require.ErrorIs(t, registry.DeleteMapping("flow-1", "t1", mapping.ID), ErrMappingNotFound)
}

func TestReorderMappings_Atomic(t *testing.T) {
	registry := newRegistryWithTarget(t)

	m1, err := registry.CreateMapping("flow-1", &models.FieldMapping{
		TargetID: "t1", SourcePath: "a", TargetPath: "x", MappingOrder: 1, Active: true,
	})
	require.NoError(t, err)

	m2, err := registry.CreateMapping("flow-1", &models.FieldMapping{
		TargetID: "t1", SourcePath: "b", TargetPath: "y", MappingOrder: 2, Active: true,
	})
	require.NoError(t, err)

	_, err = registry.ReorderMappings("flow-1", "t1", []MappingOrder{
		{MappingID: m1.ID, NewOrder: 5},
		{MappingID: m2.ID, NewOrder: 5},
	})
	require.ErrorIs(t, err, ErrInvalidOrdering)

	target, err := registry.GetTarget("flow-1", "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, target.Mappings[0].MappingOrder)
	assert.Equal(t, 2, target.Mappings[1].MappingOrder)

	sorted, err := registry.ReorderMappings("flow-1", "t1", []MappingOrder{
		{MappingID: m1.ID, NewOrder: 2},
		{MappingID: m2.ID, NewOrder: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, m2.ID, sorted[0].ID)
	assert.Equal(t, m1.ID, sorted[1].ID)
}

func TestValidateMappings_MissingRequiredSource(t *testing.T) {
	registry := newRegistryWithTarget(t)

	_, err := registry.CreateMapping("flow-1", &models.FieldMapping{
		TargetID: "t1", SourcePath: "customer.email", TargetPath: "email",
		MappingOrder: 1, Active: true, Required: true,
	})
	require.NoError(t, err)

	result, err := registry.ValidateMappings("flow-1", "t1", map[string]any{
		"customer": map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)

	assert.False(t, result.Valid)
	assert.Equal(t, 1, result.MissingRequiredMappings)
	assert.Equal(t, 1, result.RequiredMappings)
	assert.Equal(t, 1, result.TotalMappings)
	assert.NotEmpty(t, result.Errors)
}

func TestValidateMappings_InactiveRequiredIsWarning(t *testing.T) {
	registry := newRegistryWithTarget(t)

	_, err := registry.CreateMapping("flow-1", &models.FieldMapping{
		TargetID: "t1", SourcePath: "a", TargetPath: "b",
		MappingOrder: 1, Active: false, Required: true,
	})
	require.NoError(t, err)

	result, err := registry.ValidateMappings("flow-1", "t1", map[string]any{"a": "value"})
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.NotEmpty(t, result.Warnings)
	assert.Zero(t, result.MissingRequiredMappings)
}

func TestValidateMappings_AllResolvable(t *testing.T) {
	registry := newRegistryWithTarget(t)

	_, err := registry.CreateMapping("flow-1", &models.FieldMapping{
		TargetID: "t1", SourcePath: "order.id", TargetPath: "reference",
		MappingOrder: 1, Active: true, Required: true,
	})
	require.NoError(t, err)

	result, err := registry.ValidateMappings("flow-1", "t1", map[string]any{
		"order": map[string]any{"id": "o-1"},
	})
	require.NoError(t, err)

	assert.True(t, result.Valid)
	assert.Equal(t, 1, result.ValidMappings)
	assert.Zero(t, result.MissingRequiredMappings)
}
