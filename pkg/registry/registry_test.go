package registry

import (
	"log/slog"
	"testing"

	logadapter "github.com/flowmesh/flowmesh/pkg/adapters/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateAdapter(t *testing.T) {
	reg := NewRegistry(slog.Default())
	reg.Register(logadapter.NewAdapterFactory(slog.Default()))

	adapter, err := reg.CreateAdapter("log", map[string]any{"message": "hello"})
	require.NoError(t, err)
	assert.NotNil(t, adapter)
}

func TestRegistry_UnknownAdapterType(t *testing.T) {
	reg := NewRegistry(slog.Default())

	_, err := reg.CreateAdapter("missing", nil)
	require.ErrorIs(t, err, ErrAdapterNotRegistered)
}

func TestRegistry_SchemaValidationRejectsBadConfig(t *testing.T) {
	reg := NewRegistry(slog.Default())
	reg.Register(logadapter.NewAdapterFactory(slog.Default()))

	_, err := reg.CreateAdapter("log", map[string]any{"level": 42})
	require.ErrorIs(t, err, ErrInvalidAdapterConfig)

	_, err = reg.CreateAdapter("log", map[string]any{"unexpected": true})
	require.ErrorIs(t, err, ErrInvalidAdapterConfig)
}

func TestRegistry_AdapterTypesAndSchema(t *testing.T) {
	reg := NewRegistry(slog.Default())
	reg.Register(logadapter.NewAdapterFactory(slog.Default()))

	assert.Equal(t, []string{"log"}, reg.AdapterTypes())

	schema, err := reg.Schema("log")
	require.NoError(t, err)
	assert.Equal(t, "object", schema["type"])

	_, err = reg.Schema("missing")
	require.ErrorIs(t, err, ErrAdapterNotRegistered)
}

func TestValidateConfig_EmptySchemaAcceptsAnything(t *testing.T) {
	require.NoError(t, ValidateConfig(nil, map[string]any{"whatever": 1}))
}
