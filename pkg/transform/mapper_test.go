package transform

import (
	"testing"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMappings(t *testing.T) {
	mappings := []*models.FieldMapping{
		{ID: "m1", SourcePath: "order.id", TargetPath: "reference", Active: true},
		{ID: "m2", SourcePath: "customer.email", TargetPath: "contact.email", Active: true},
	}

	payload := map[string]any{
		"order":    map[string]any{"id": "o-42"},
		"customer": map[string]any{"email": "ada@example.com"},
	}

	outbound, err := ApplyMappings(mappings, payload, nil)
	require.NoError(t, err)

	assert.Equal(t, "o-42", outbound["reference"])

	contact, ok := outbound["contact"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", contact["email"])
}

func TestApplyMappings_MissingRequired(t *testing.T) {
	mappings := []*models.FieldMapping{
		{ID: "m1", SourcePath: "order.missing", TargetPath: "x", Required: true, Active: true},
	}

	_, err := ApplyMappings(mappings, map[string]any{"order": map[string]any{}}, nil)
	require.ErrorIs(t, err, ErrMissingRequiredSource)
}

func TestApplyMappings_MissingOptionalIsSkipped(t *testing.T) {
	mappings := []*models.FieldMapping{
		{ID: "m1", SourcePath: "order.missing", TargetPath: "x", Active: true},
		{ID: "m2", SourcePath: "order.id", TargetPath: "reference", Active: true},
	}

	outbound, err := ApplyMappings(mappings, map[string]any{"order": map[string]any{"id": "o-1"}}, nil)
	require.NoError(t, err)

	_, hasX := outbound["x"]
	assert.False(t, hasX)
	assert.Equal(t, "o-1", outbound["reference"])
}

func TestApplyMappings_Transform(t *testing.T) {
	mappings := []*models.FieldMapping{
		{ID: "m1", SourcePath: "code", TargetPath: "code", Transform: "{{upper .value}}", Active: true},
	}

	outbound, err := ApplyMappings(mappings, map[string]any{"code": "abc"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ABC", outbound["code"])
}

func TestApplyMappings_TransformWithExecutionContext(t *testing.T) {
	executionCtx := &models.ExecutionContext{
		Variables: map[string]any{"prefix": "ord"},
	}

	mappings := []*models.FieldMapping{
		{ID: "m1", SourcePath: "id", TargetPath: "reference", Transform: "{{.variables.prefix}}-{{.value}}", Active: true},
	}

	outbound, err := ApplyMappings(mappings, map[string]any{"id": "42"}, executionCtx)
	require.NoError(t, err)
	assert.Equal(t, "ord-42", outbound["reference"])
}

func TestApplyMappings_NoMappingsPassesPayloadThrough(t *testing.T) {
	payload := map[string]any{"a": 1}

	outbound, err := ApplyMappings(nil, payload, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, outbound)
}

func TestApplyMappings_PathCollision(t *testing.T) {
	mappings := []*models.FieldMapping{
		{ID: "m1", SourcePath: "a", TargetPath: "x", Active: true},
		{ID: "m2", SourcePath: "b", TargetPath: "x.y", Active: true},
	}

	_, err := ApplyMappings(mappings, map[string]any{"a": "scalar", "b": "nested"}, nil)
	require.ErrorIs(t, err, ErrMappingFailed)
}
