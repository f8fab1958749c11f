package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by ValidateRule and ValidatePredicate.
var (
	ErrInvalidOperator  = errors.New("invalid operator")
	ErrInvalidPredicate = errors.New("invalid predicate")
	ErrInvalidValueType = errors.New("invalid value type")
	ErrInvalidRule      = errors.New("invalid rule")
)

// maxDepth bounds predicate nesting so a hostile config cannot blow the stack.
const maxDepth = 32

// ValidateRule performs strict structural validation of a targeting Rule.
// It is a pure function: it never mutates r and has no side effects.
func ValidateRule(r Rule) error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: rule id must not be empty", ErrInvalidRule)
	}
	if r.Variant == "" && r.Value == nil {
		return fmt.Errorf("%w: rule %q must set a variant or a value", ErrInvalidRule, r.ID)
	}
	if err := ValidatePredicate(r.When); err != nil {
		return fmt.Errorf("rule %q: %w", r.ID, err)
	}
	return nil
}

// ValidatePredicate checks that p has exactly one form, that leaf operators
// are known and that their values have a compatible type.
func ValidatePredicate(p Predicate) error {
	return validatePredicate(p, "when", 0)
}

func validatePredicate(p Predicate, path string, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: %s nests deeper than %d", ErrInvalidPredicate, path, maxDepth)
	}

	forms := 0
	if p.Field != "" || p.Op != "" {
		forms++
	}
	if p.All != nil {
		forms++
	}
	if p.Any != nil {
		forms++
	}
	if p.Not != nil {
		forms++
	}
	if p.CEL != "" {
		forms++
	}
	if p.JSONLogic != nil {
		forms++
	}
	if forms != 1 {
		return fmt.Errorf("%w: %s must set exactly one of field/op, all, any, not, cel, jsonlogic (got %d)", ErrInvalidPredicate, path, forms)
	}

	switch {
	case p.All != nil:
		return validateChildren(p.All, path+".all", depth)
	case p.Any != nil:
		return validateChildren(p.Any, path+".any", depth)
	case p.Not != nil:
		return validatePredicate(*p.Not, path+".not", depth+1)
	case p.CEL != "":
		return nil // compiled by the engine
	case p.JSONLogic != nil:
		if _, err := json.Marshal(p.JSONLogic); err != nil {
			return fmt.Errorf("%w: %s.jsonlogic is not JSON encodable: %v", ErrInvalidPredicate, path, err)
		}
		return nil
	}
	return validateLeaf(p, path)
}

func validateChildren(children []Predicate, path string, depth int) error {
	if len(children) == 0 {
		return fmt.Errorf("%w: %s must not be empty", ErrInvalidPredicate, path)
	}
	for i, c := range children {
		if err := validatePredicate(c, fmt.Sprintf("%s[%d]", path, i), depth+1); err != nil {
			return err
		}
	}
	return nil
}

func validateLeaf(p Predicate, path string) error {
	if strings.TrimSpace(p.Field) == "" {
		return fmt.Errorf("%w: %s field must not be empty", ErrInvalidPredicate, path)
	}
	for _, seg := range strings.Split(p.Field, ".") {
		if seg == "" {
			return fmt.Errorf("%w: %s field %q has an empty segment", ErrInvalidPredicate, path, p.Field)
		}
	}

	op, ok := NormalizeOperator(p.Op)
	if !ok {
		return fmt.Errorf("%w: %s operator %q is not supported", ErrInvalidOperator, path, p.Op)
	}
	return validateValueType(path, op, p.Value)
}

// validateValueType checks that the predicate value has a type compatible with
// the operator. It uses explicit type assertions, no reflection.
func validateValueType(path string, op Operator, v any) error {
	switch op {
	case OpContains, OpStartsWith, OpEndsWith, OpRegex, OpSemVerGt, OpSemVerLt, OpSemVerEq:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("%w: %s operator %q requires a string value", ErrInvalidValueType, path, op)
		}

	case OpIn, OpNotIn:
		if !isSlice(v) {
			return fmt.Errorf("%w: %s operator %q requires a list value", ErrInvalidValueType, path, op)
		}

	case OpGt, OpLt, OpGte, OpLte:
		if !isNumeric(v) {
			return fmt.Errorf("%w: %s operator %q requires a numeric value", ErrInvalidValueType, path, op)
		}

	case OpEq, OpNeq:
		if v != nil && !isScalar(v) {
			return fmt.Errorf("%w: %s operator %q requires a scalar value (string, bool, number or null)", ErrInvalidValueType, path, op)
		}

	case OpExists:
		if v != nil {
			if _, ok := v.(bool); !ok {
				return fmt.Errorf("%w: %s operator %q takes an optional bool value", ErrInvalidValueType, path, op)
			}
		}
	}
	return nil
}

// isSlice returns true for slice types that may appear after JSON/YAML
// unmarshaling or be provided programmatically.
func isSlice(v any) bool {
	switch v.(type) {
	case []any, []string, []int, []int64, []float64:
		return true
	}
	return false
}

// isNumeric returns true for integer and floating-point types.
func isNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return true
	}
	return false
}

// isScalar returns true for basic scalar types (string, bool, numeric).
func isScalar(v any) bool {
	if _, ok := v.(string); ok {
		return true
	}
	if _, ok := v.(bool); ok {
		return true
	}
	return isNumeric(v)
}
