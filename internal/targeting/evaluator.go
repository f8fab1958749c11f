// Package targeting provides expression predicates for targeting rules.
// Two dialects are supported: JSON Logic (jsonlogic.com) and CEL
// (github.com/google/cel-go). Both evaluate against the decision context.
package targeting

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/TimurManjosov/decider/internal/value"
	"github.com/diegoholiveira/jsonlogic/v3"
)

// ErrInvalidExpression is returned when an expression does not compile.
var ErrInvalidExpression = errors.New("invalid expression")

// ErrEmptyExpression is returned when an expression is empty or whitespace.
var ErrEmptyExpression = errors.New("invalid expression: empty or whitespace")

// JSONLogic is a validated JSON Logic rule ready for evaluation.
type JSONLogic struct {
	rule []byte
	// vars are the context paths read through "var" without a default.
	vars [][]string
}

// CompileJSONLogic validates rule (decoded JSON or a JSON string) and returns
// a reusable predicate.
func CompileJSONLogic(rule any) (*JSONLogic, error) {
	var expression string
	switch r := rule.(type) {
	case string:
		expression = r
	case []byte:
		expression = string(r)
	default:
		b, err := json.Marshal(r)
		if err != nil {
			return nil, ErrInvalidExpression
		}
		expression = string(b)
	}
	if err := ValidateExpression(expression); err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal([]byte(expression), &decoded); err != nil {
		return nil, ErrInvalidExpression
	}
	j := &JSONLogic{rule: []byte(expression)}
	collectVars(decoded, &j.vars)
	return j, nil
}

// Missing reports whether ctx lacks a field the rule reads. A var with a
// default value never counts as missing.
func (j *JSONLogic) Missing(ctx value.Value) bool {
	for _, path := range j.vars {
		if !present(ctx, path) {
			return true
		}
	}
	return false
}

// Apply evaluates the rule against data, a context already encoded with
// EncodeContext.
func (j *JSONLogic) Apply(data []byte) (bool, error) {
	return apply(j.rule, data)
}

// Match reports whether ctx satisfies the rule. Rules reading a missing field
// and evaluation errors never match.
func (j *JSONLogic) Match(ctx value.Value) bool {
	if j.Missing(ctx) {
		return false
	}
	ok, err := evaluate(j.rule, ctx)
	return err == nil && ok
}

// String returns the rule source.
func (j *JSONLogic) String() string { return string(j.rule) }

// Evaluate evaluates a JSON Logic expression against a context.
// Returns true if the context matches the expression, false otherwise.
// Returns an error if the expression is invalid.
func Evaluate(expression string, ctx value.Value) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return false, ErrEmptyExpression
	}
	return evaluate([]byte(expression), ctx)
}

// EncodeContext renders ctx as the JSON Logic data document. Contexts that
// are not maps evaluate as an empty object.
func EncodeContext(ctx value.Value) ([]byte, error) {
	if ctx.Kind() != value.KindMap {
		ctx = value.Map(nil)
	}
	return ctx.MarshalJSON()
}

func evaluate(rule []byte, ctx value.Value) (bool, error) {
	data, err := EncodeContext(ctx)
	if err != nil {
		return false, err
	}
	return apply(rule, data)
}

func apply(rule, data []byte) (bool, error) {
	var resultBuf bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(rule), bytes.NewReader(data), &resultBuf); err != nil {
		return false, ErrInvalidExpression
	}

	var result any
	if err := json.Unmarshal(resultBuf.Bytes(), &result); err != nil {
		return false, err
	}

	// Convert to bool following JavaScript-like truthiness
	return isTruthy(result), nil
}

// scopedOperators evaluate every argument after the first against the items
// of an array, not against the context.
var scopedOperators = map[string]bool{
	"map": true, "filter": true, "reduce": true,
	"all": true, "some": true, "none": true,
}

func collectVars(node any, out *[][]string) {
	switch n := node.(type) {
	case []any:
		for _, item := range n {
			collectVars(item, out)
		}
	case map[string]any:
		for op, arg := range n {
			switch {
			case op == "var":
				if path, ok := varPath(arg); ok {
					if len(path) > 0 {
						*out = append(*out, path)
					}
				} else {
					collectVars(arg, out)
				}
			case scopedOperators[op]:
				if args, ok := arg.([]any); ok && len(args) > 0 {
					collectVars(args[0], out)
				}
			default:
				collectVars(arg, out)
			}
		}
	}
}

// varPath returns the path a var operand reads. ok is false for computed
// paths and for vars with a default.
func varPath(arg any) (path []string, ok bool) {
	switch a := arg.(type) {
	case string:
		return value.SplitPath(a), true
	case float64:
		return []string{strconv.FormatFloat(a, 'f', -1, 64)}, true
	case []any:
		if len(a) == 1 {
			return varPath(a[0])
		}
		if len(a) == 0 {
			return nil, true
		}
	}
	return nil, false
}

// present follows path the way JSON Logic does: map keys by name, array items
// by index.
func present(ctx value.Value, path []string) bool {
	cur := ctx
	for _, seg := range path {
		switch cur.Kind() {
		case value.KindMap:
			next, ok := cur.Field(seg)
			if !ok {
				return false
			}
			cur = next
		case value.KindArray:
			i, err := strconv.Atoi(seg)
			if err != nil {
				return false
			}
			next, ok := cur.Index(i)
			if !ok {
				return false
			}
			cur = next
		default:
			return false
		}
	}
	return true
}

// ValidateExpression checks if an expression is valid JSON Logic.
// Returns nil if valid, or an error describing why it's invalid.
func ValidateExpression(expression string) error {
	if strings.TrimSpace(expression) == "" {
		return ErrEmptyExpression
	}

	var rule any
	if err := json.Unmarshal([]byte(expression), &rule); err != nil {
		return ErrInvalidExpression
	}

	// Try to validate by applying against empty data
	var resultBuf bytes.Buffer
	if err := jsonlogic.Apply(strings.NewReader(expression), strings.NewReader("{}"), &resultBuf); err != nil {
		return ErrInvalidExpression
	}
	return nil
}

// isTruthy follows JavaScript-like truthiness rules.
// Returns true for non-zero numbers, non-empty strings, non-empty arrays/objects, and true boolean.
func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}
