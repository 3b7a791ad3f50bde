// Package conditions evaluates routing conditions against a flow payload.
package conditions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flowmesh/flowmesh/pkg/models"
	"github.com/tidwall/gjson"
)

// ErrUnsupportedConditionType is returned for condition types the evaluator
// does not know.
var ErrUnsupportedConditionType = errors.New("unsupported condition type")

// ErrNoScriptEngine is returned when a SCRIPT condition arrives and no engine
// was configured.
var ErrNoScriptEngine = errors.New("no script engine configured")

// ScriptEngine is the sandboxed expression evaluator collaborator used for
// SCRIPT conditions. Implementations must be safe for concurrent use.
type ScriptEngine interface {
	Evaluate(ctx context.Context, script string, payload map[string]any) (bool, error)
}

// ValidationIssues is the result of design-time condition validation.
type ValidationIssues struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

const defaultScriptTimeout = 10 * time.Second

// Evaluator evaluates routing conditions. The zero value handles SIMPLE and
// JSONPATH conditions; SCRIPT conditions need a ScriptEngine.
type Evaluator struct {
	scriptEngine  ScriptEngine
	scriptTimeout time.Duration
}

// NewEvaluator creates an evaluator with an optional script engine.
func NewEvaluator(engine ScriptEngine) *Evaluator {
	return &Evaluator{
		scriptEngine:  engine,
		scriptTimeout: defaultScriptTimeout,
	}
}

// WithScriptTimeout overrides the bound applied to SCRIPT evaluation.
func (e *Evaluator) WithScriptTimeout(timeout time.Duration) *Evaluator {
	e.scriptTimeout = timeout

	return e
}

// Evaluate checks a single condition against the payload. "No match" is a
// valid outcome, never an error; errors indicate the condition itself could
// not be evaluated.
func (e *Evaluator) Evaluate(ctx context.Context, condition string, conditionType models.ConditionType, payload map[string]any) (bool, error) {
	switch conditionType {
	case models.ConditionTypeSimple:
		return evaluateSimple(condition, payload)
	case models.ConditionTypeJSONPath:
		return evaluateJSONPath(condition, payload)
	case models.ConditionTypeScript:
		return e.evaluateScript(ctx, condition, payload)
	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupportedConditionType, conditionType)
	}
}

// ValidateCondition performs syntax-only checking without a payload. It has
// no side effects and never consults the script engine.
func (e *Evaluator) ValidateCondition(condition string, conditionType models.ConditionType) ValidationIssues {
	issues := make([]string, 0)

	if strings.TrimSpace(condition) == "" {
		issues = append(issues, "condition must not be empty")

		return ValidationIssues{Valid: false, Issues: issues}
	}

	switch conditionType {
	case models.ConditionTypeSimple:
		if _, err := parseSimple(condition); err != nil {
			issues = append(issues, err.Error())
		}
	case models.ConditionTypeJSONPath:
		if _, _, _, err := splitJSONPathComparison(condition); err != nil {
			issues = append(issues, err.Error())
		}
	case models.ConditionTypeScript:
		// Script grammar belongs to the engine; only emptiness is checked here.
	default:
		issues = append(issues, fmt.Sprintf("unsupported condition type: %s", conditionType))
	}

	return ValidationIssues{Valid: len(issues) == 0, Issues: issues}
}

func (e *Evaluator) evaluateScript(ctx context.Context, script string, payload map[string]any) (bool, error) {
	if e.scriptEngine == nil {
		return false, ErrNoScriptEngine
	}

	timeout := e.scriptTimeout
	if timeout <= 0 {
		timeout = defaultScriptTimeout
	}

	scriptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	matched, err := e.scriptEngine.Evaluate(scriptCtx, script, payload)
	if err != nil {
		return false, fmt.Errorf("script evaluation failed: %w", err)
	}

	return matched, nil
}

// evaluateJSONPath resolves the path against the payload. A bare path
// matches when it resolves to a non-null value; an attached comparison
// operator turns it into an explicit comparison.
func evaluateJSONPath(condition string, payload map[string]any) (bool, error) {
	path, op, literal, err := splitJSONPathComparison(condition)
	if err != nil {
		return false, err
	}

	doc, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("failed to encode payload: %w", err)
	}

	result := gjson.GetBytes(doc, path)

	if op == "" {
		return result.Exists() && result.Type != gjson.Null, nil
	}

	if !result.Exists() {
		return false, nil
	}

	return compareValues(resultValue(result), op, literal)
}

// splitJSONPathComparison splits "path op literal" conditions; a condition
// without an operator is returned as a bare path.
func splitJSONPathComparison(condition string) (path, op string, literal any, err error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return "", "", nil, errors.New("jsonpath condition must not be empty")
	}

	for _, candidate := range comparisonOperators {
		idx := strings.Index(condition, " "+candidate+" ")
		if idx < 0 {
			continue
		}

		path = strings.TrimSpace(condition[:idx])
		rest := strings.TrimSpace(condition[idx+len(candidate)+2:])

		if path == "" || rest == "" {
			return "", "", nil, fmt.Errorf("malformed jsonpath comparison: %q", condition)
		}

		literal, err = parseLiteral(rest)
		if err != nil {
			return "", "", nil, err
		}

		return path, candidate, literal, nil
	}

	return condition, "", nil, nil
}

func resultValue(result gjson.Result) any {
	switch result.Type {
	case gjson.Number:
		return result.Num
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.String:
		return result.Str
	default:
		return result.Raw
	}
}
