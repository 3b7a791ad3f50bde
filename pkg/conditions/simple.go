package conditions

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// comparisonOperators is ordered longest-first so the lexer never splits
// ">=" into ">" and "=".
var comparisonOperators = []string{"==", "!=", ">=", "<=", ">", "<"}

// simpleNode is one node of a parsed SIMPLE condition.
type simpleNode interface {
	eval(doc []byte) (bool, error)
}

type andNode struct{ left, right simpleNode }

func (n andNode) eval(doc []byte) (bool, error) {
	left, err := n.left.eval(doc)
	if err != nil {
		return false, err
	}

	if !left {
		return false, nil
	}

	return n.right.eval(doc)
}

type orNode struct{ left, right simpleNode }

func (n orNode) eval(doc []byte) (bool, error) {
	left, err := n.left.eval(doc)
	if err != nil {
		return false, err
	}

	if left {
		return true, nil
	}

	return n.right.eval(doc)
}

type notNode struct{ inner simpleNode }

func (n notNode) eval(doc []byte) (bool, error) {
	inner, err := n.inner.eval(doc)
	if err != nil {
		return false, err
	}

	return !inner, nil
}

type comparisonNode struct {
	left  operand
	op    string
	right operand
}

func (n comparisonNode) eval(doc []byte) (bool, error) {
	if n.op == "" {
		return truthy(n.left.resolve(doc)), nil
	}

	return compareValues(n.left.resolve(doc), n.op, n.right.resolve(doc))
}

// operand is either a literal value or a dotted path into the payload.
type operand struct {
	literal any
	path    string
}

func (o operand) resolve(doc []byte) any {
	if o.path == "" {
		return o.literal
	}

	result := gjson.GetBytes(doc, o.path)
	if !result.Exists() || result.Type == gjson.Null {
		return nil
	}

	return resultValue(result)
}

// evaluateSimple parses and evaluates a SIMPLE comparison expression.
// An unknown path is "no match", not an error.
func evaluateSimple(condition string, payload map[string]any) (bool, error) {
	node, err := parseSimple(condition)
	if err != nil {
		return false, err
	}

	doc, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("failed to encode payload: %w", err)
	}

	return node.eval(doc)
}

// parseSimple builds the expression tree for a SIMPLE condition.
func parseSimple(condition string) (simpleNode, error) {
	tokens, err := lexSimple(condition)
	if err != nil {
		return nil, err
	}

	parser := &simpleParser{tokens: tokens}

	node, err := parser.parseOr()
	if err != nil {
		return nil, err
	}

	if !parser.done() {
		return nil, fmt.Errorf("unexpected token %q in condition", parser.peek())
	}

	return node, nil
}

type simpleParser struct {
	tokens []string
	pos    int
}

func (p *simpleParser) done() bool { return p.pos >= len(p.tokens) }

func (p *simpleParser) peek() string {
	if p.done() {
		return ""
	}

	return p.tokens[p.pos]
}

func (p *simpleParser) next() string {
	token := p.peek()
	p.pos++

	return token
}

func (p *simpleParser) parseOr() (simpleNode, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for strings.EqualFold(p.peek(), "OR") || p.peek() == "||" {
		p.next()

		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}

		left = orNode{left: left, right: right}
	}

	return left, nil
}

func (p *simpleParser) parseAnd() (simpleNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for strings.EqualFold(p.peek(), "AND") || p.peek() == "&&" {
		p.next()

		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		left = andNode{left: left, right: right}
	}

	return left, nil
}

func (p *simpleParser) parseUnary() (simpleNode, error) {
	if p.peek() == "!" || strings.EqualFold(p.peek(), "NOT") {
		p.next()

		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return notNode{inner: inner}, nil
	}

	return p.parsePrimary()
}

func (p *simpleParser) parsePrimary() (simpleNode, error) {
	if p.peek() == "(" {
		p.next()

		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		if p.next() != ")" {
			return nil, errors.New("missing closing parenthesis")
		}

		return node, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	for _, op := range comparisonOperators {
		if p.peek() != op {
			continue
		}

		p.next()

		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}

		return comparisonNode{left: left, op: op, right: right}, nil
	}

	return comparisonNode{left: left}, nil
}

func (p *simpleParser) parseOperand() (operand, error) {
	token := p.next()
	if token == "" {
		return operand{}, errors.New("expected operand, found end of condition")
	}

	if isReserved(token) {
		return operand{}, fmt.Errorf("expected operand, found %q", token)
	}

	if strings.HasPrefix(token, `"`) || strings.HasPrefix(token, "'") {
		literal, err := parseLiteral(token)
		if err != nil {
			return operand{}, err
		}

		return operand{literal: literal}, nil
	}

	switch strings.ToLower(token) {
	case "true":
		return operand{literal: true}, nil
	case "false":
		return operand{literal: false}, nil
	case "null":
		return operand{literal: nil}, nil
	}

	if number, err := strconv.ParseFloat(token, 64); err == nil {
		return operand{literal: number}, nil
	}

	return operand{path: token}, nil
}

func isReserved(token string) bool {
	switch strings.ToUpper(token) {
	case "AND", "OR", "NOT", "&&", "||", "!", "(", ")":
		return true
	}

	for _, op := range comparisonOperators {
		if token == op {
			return true
		}
	}

	return false
}

// lexSimple splits a condition into tokens, keeping quoted strings intact.
func lexSimple(condition string) ([]string, error) {
	tokens := make([]string, 0)
	runes := []rune(condition)

	for i := 0; i < len(runes); {
		r := runes[i]

		switch {
		case r == ' ' || r == '\t' || r == '\n':
			i++
		case r == '(' || r == ')':
			tokens = append(tokens, string(r))
			i++
		case r == '\'' || r == '"':
			end := -1

			for j := i + 1; j < len(runes); j++ {
				if runes[j] == r {
					end = j

					break
				}
			}

			if end < 0 {
				return nil, fmt.Errorf("unterminated string literal in condition %q", condition)
			}

			tokens = append(tokens, string(runes[i:end+1]))
			i = end + 1
		case r == '!' && (i+1 >= len(runes) || runes[i+1] != '='):
			tokens = append(tokens, "!")
			i++
		case strings.ContainsRune("=!<>&|", r):
			start := i
			for i < len(runes) && strings.ContainsRune("=!<>&|", runes[i]) {
				i++
			}

			tokens = append(tokens, string(runes[start:i]))
		default:
			start := i
			for i < len(runes) && !strings.ContainsRune(" \t\n()=!<>&|'\"", runes[i]) {
				i++
			}

			tokens = append(tokens, string(runes[start:i]))
		}
	}

	if len(tokens) == 0 {
		return nil, errors.New("condition must not be empty")
	}

	return tokens, nil
}

// parseLiteral converts a raw token into a typed literal value.
func parseLiteral(raw string) (any, error) {
	raw = strings.TrimSpace(raw)

	if len(raw) >= 2 {
		if (strings.HasPrefix(raw, `"`) && strings.HasSuffix(raw, `"`)) ||
			(strings.HasPrefix(raw, "'") && strings.HasSuffix(raw, "'")) {
			return raw[1 : len(raw)-1], nil
		}
	}

	switch strings.ToLower(raw) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	}

	if number, err := strconv.ParseFloat(raw, 64); err == nil {
		return number, nil
	}

	return nil, fmt.Errorf("malformed literal: %q", raw)
}

// truthy reports whether a bare operand counts as a match.
func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != "" && !strings.EqualFold(v, "false")
	case float64:
		return v != 0
	default:
		return true
	}
}

// compareValues applies a comparison operator. Numbers compare numerically,
// everything else falls back to string comparison; a nil operand only
// matches equality against null.
func compareValues(left any, op string, right any) (bool, error) {
	if left == nil || right == nil {
		switch op {
		case "==":
			return left == nil && right == nil, nil
		case "!=":
			return (left == nil) != (right == nil) || (left != nil && right != nil), nil
		default:
			return false, nil
		}
	}

	leftNum, leftOK := toNumber(left)
	rightNum, rightOK := toNumber(right)

	if leftOK && rightOK {
		switch op {
		case "==":
			return leftNum == rightNum, nil
		case "!=":
			return leftNum != rightNum, nil
		case ">":
			return leftNum > rightNum, nil
		case ">=":
			return leftNum >= rightNum, nil
		case "<":
			return leftNum < rightNum, nil
		case "<=":
			return leftNum <= rightNum, nil
		}
	}

	leftStr := fmt.Sprintf("%v", left)
	rightStr := fmt.Sprintf("%v", right)

	switch op {
	case "==":
		return leftStr == rightStr, nil
	case "!=":
		return leftStr != rightStr, nil
	case ">":
		return leftStr > rightStr, nil
	case ">=":
		return leftStr >= rightStr, nil
	case "<":
		return leftStr < rightStr, nil
	case "<=":
		return leftStr <= rightStr, nil
	}

	return false, fmt.Errorf("unsupported comparison operator: %q", op)
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		number, err := strconv.ParseFloat(v, 64)

		return number, err == nil
	default:
		return 0, false
	}
}
