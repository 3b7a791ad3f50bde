package conditions

import (
	"context"
	"errors"
	"testing"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayload() map[string]any {
	return map[string]any{
		"type":   "A",
		"amount": 42.5,
		"active": true,
		"order": map[string]any{
			"status":   "open",
			"priority": 3,
		},
	}
}

func TestEvaluate_Simple(t *testing.T) {
	evaluator := NewEvaluator(nil)

	tests := []struct {
		name      string
		condition string
		matched   bool
	}{
		{name: "string equality", condition: `type == "A"`, matched: true},
		{name: "string inequality", condition: `type != "B"`, matched: true},
		{name: "nested path", condition: `order.status == "open"`, matched: true},
		{name: "numeric greater", condition: "amount > 40", matched: true},
		{name: "numeric less", condition: "amount < 40", matched: false},
		{name: "numeric on nested", condition: "order.priority >= 3", matched: true},
		{name: "and both true", condition: `type == "A" AND amount > 40`, matched: true},
		{name: "and one false", condition: `type == "A" AND amount < 1`, matched: false},
		{name: "or short circuit", condition: `type == "A" OR missing.path == "x"`, matched: true},
		{name: "symbolic and", condition: `type == "A" && active == true`, matched: true},
		{name: "negation", condition: `!(type == "B")`, matched: true},
		{name: "not keyword", condition: `NOT active`, matched: false},
		{name: "bare boolean path", condition: "active", matched: true},
		{name: "unknown path is no match", condition: `missing.field == "x"`, matched: false},
		{name: "unknown bare path is no match", condition: "missing.field", matched: false},
		{name: "parenthesized", condition: `(type == "B" OR type == "A") AND amount > 1`, matched: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched, err := evaluator.Evaluate(context.Background(), tt.condition, models.ConditionTypeSimple, testPayload())
			require.NoError(t, err)
			assert.Equal(t, tt.matched, matched)
		})
	}
}

func TestEvaluate_SimpleMalformed(t *testing.T) {
	evaluator := NewEvaluator(nil)

	_, err := evaluator.Evaluate(context.Background(), `type == `, models.ConditionTypeSimple, testPayload())
	require.Error(t, err)

	_, err = evaluator.Evaluate(context.Background(), `(type == "A"`, models.ConditionTypeSimple, testPayload())
	require.Error(t, err)
}

func TestEvaluate_JSONPath(t *testing.T) {
	evaluator := NewEvaluator(nil)

	tests := []struct {
		name      string
		condition string
		matched   bool
	}{
		{name: "existing path matches", condition: "order.status", matched: true},
		{name: "missing path does not match", condition: "order.missing", matched: false},
		{name: "explicit comparison", condition: `order.status == "open"`, matched: true},
		{name: "explicit comparison mismatch", condition: `order.status == "closed"`, matched: false},
		{name: "numeric comparison", condition: "amount >= 42.5", matched: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matched, err := evaluator.Evaluate(context.Background(), tt.condition, models.ConditionTypeJSONPath, testPayload())
			require.NoError(t, err)
			assert.Equal(t, tt.matched, matched)
		})
	}
}

type stubScriptEngine struct {
	result bool
	err    error
}

func (s *stubScriptEngine) Evaluate(_ context.Context, _ string, _ map[string]any) (bool, error) {
	return s.result, s.err
}

func TestEvaluate_Script(t *testing.T) {
	evaluator := NewEvaluator(&stubScriptEngine{result: true})

	matched, err := evaluator.Evaluate(context.Background(), "payload.type == 'A'", models.ConditionTypeScript, testPayload())
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestEvaluate_ScriptFailureIsError(t *testing.T) {
	evaluator := NewEvaluator(&stubScriptEngine{err: errors.New("boom")})

	matched, err := evaluator.Evaluate(context.Background(), "broken(", models.ConditionTypeScript, testPayload())
	require.Error(t, err)
	assert.False(t, matched)
}

func TestEvaluate_ScriptWithoutEngine(t *testing.T) {
	evaluator := NewEvaluator(nil)

	_, err := evaluator.Evaluate(context.Background(), "x > 1", models.ConditionTypeScript, testPayload())
	require.ErrorIs(t, err, ErrNoScriptEngine)
}

func TestEvaluate_UnsupportedType(t *testing.T) {
	evaluator := NewEvaluator(nil)

	_, err := evaluator.Evaluate(context.Background(), "x", models.ConditionType("xpath"), testPayload())
	require.ErrorIs(t, err, ErrUnsupportedConditionType)
}

func TestEvaluate_Deterministic(t *testing.T) {
	evaluator := NewEvaluator(nil)

	for range 10 {
		matched, err := evaluator.Evaluate(context.Background(), `type == "A"`, models.ConditionTypeSimple, testPayload())
		require.NoError(t, err)
		assert.True(t, matched)
	}
}

func TestValidateCondition(t *testing.T) {
	evaluator := NewEvaluator(nil)

	tests := []struct {
		name          string
		condition     string
		conditionType models.ConditionType
		valid         bool
	}{
		{name: "valid simple", condition: `a.b == "x" AND c > 1`, conditionType: models.ConditionTypeSimple, valid: true},
		{name: "empty condition", condition: "  ", conditionType: models.ConditionTypeSimple, valid: false},
		{name: "dangling operator", condition: "a ==", conditionType: models.ConditionTypeSimple, valid: false},
		{name: "unterminated string", condition: `a == "x`, conditionType: models.ConditionTypeSimple, valid: false},
		{name: "valid jsonpath", condition: "order.items.0.sku", conditionType: models.ConditionTypeJSONPath, valid: true},
		{name: "jsonpath comparison", condition: `order.status == "open"`, conditionType: models.ConditionTypeJSONPath, valid: true},
		{name: "script passes through", condition: "anything goes", conditionType: models.ConditionTypeScript, valid: true},
		{name: "unknown type", condition: "x", conditionType: models.ConditionType("xpath"), valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := evaluator.ValidateCondition(tt.condition, tt.conditionType)
			assert.Equal(t, tt.valid, result.Valid)

			if !tt.valid {
				assert.NotEmpty(t, result.Issues)
			}
		})
	}
}
