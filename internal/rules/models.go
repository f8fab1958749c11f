// Package rules defines the targeting predicate model shared by the config
// loader and the evaluation engine.
package rules

import "strings"

// Operator represents a comparison operator used in leaf predicates.
type Operator string

// Supported operators (string values for clean JSON/YAML serialization).
const (
	OpEq         Operator = "eq"
	OpNeq        Operator = "neq"
	OpIn         Operator = "in"
	OpNotIn      Operator = "not_in"
	OpGt         Operator = "gt"
	OpLt         Operator = "lt"
	OpGte        Operator = "gte"
	OpLte        Operator = "lte"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts_with"
	OpEndsWith   Operator = "ends_with"
	OpRegex      Operator = "regex"
	OpSemVerGt   Operator = "semver_gt"
	OpSemVerLt   Operator = "semver_lt"
	OpSemVerEq   Operator = "semver_eq"
	OpExists     Operator = "exists"
)

// Predicate is a boolean expression over the evaluation context.
//
// Exactly one form must be set:
//   - leaf:      Field + Op (+ Value), e.g. {field: "user.country", op: "eq", value: "US"}
//   - all:       every child matches (AND)
//   - any:       at least one child matches (OR)
//   - not:       the child does not match
//   - cel:       a CEL expression over `ctx`, e.g. `ctx.plan == "premium"`
//   - jsonlogic: a JSON Logic rule object, e.g. {"==": [{"var": "plan"}, "premium"]}
//
// Field is a dotted path into the context. A predicate that reads a field
// absent from the context never matches, even under "not"; use the exists
// operator to test for absence.
type Predicate struct {
	Field     string      `json:"field,omitempty" yaml:"field,omitempty"`
	Op        Operator    `json:"op,omitempty" yaml:"op,omitempty"`
	Value     any         `json:"value,omitempty" yaml:"value,omitempty"`
	All       []Predicate `json:"all,omitempty" yaml:"all,omitempty"`
	Any       []Predicate `json:"any,omitempty" yaml:"any,omitempty"`
	Not       *Predicate  `json:"not,omitempty" yaml:"not,omitempty"`
	CEL       string      `json:"cel,omitempty" yaml:"cel,omitempty"`
	JSONLogic any         `json:"jsonlogic,omitempty" yaml:"jsonlogic,omitempty"`
}

// Rule is one targeting rule: the first rule whose predicate matches decides
// the outcome (a variant, a value, or both).
type Rule struct {
	ID      string    `json:"id" yaml:"id"`
	When    Predicate `json:"when" yaml:"when"`
	Variant string    `json:"variant,omitempty" yaml:"variant,omitempty"`
	Value   any       `json:"value,omitempty" yaml:"value,omitempty"`
}

// NormalizeOperator maps accepted aliases ("==", "equals", "in_list", ...) to
// their canonical operator. The second result is false for unknown operators.
func NormalizeOperator(op Operator) (Operator, bool) {
	switch strings.ToLower(strings.TrimSpace(string(op))) {
	case "==", "eq", "equals":
		return OpEq, true
	case "!=", "neq", "not_equals":
		return OpNeq, true
	case "in", "in_list":
		return OpIn, true
	case "not_in", "not_in_list", "nin":
		return OpNotIn, true
	case ">", "gt":
		return OpGt, true
	case "<", "lt":
		return OpLt, true
	case ">=", "gte":
		return OpGte, true
	case "<=", "lte":
		return OpLte, true
	case "contains":
		return OpContains, true
	case "starts_with", "startswith":
		return OpStartsWith, true
	case "ends_with", "endswith":
		return OpEndsWith, true
	case "regex", "matches":
		return OpRegex, true
	case "semver_gt", "version_gt":
		return OpSemVerGt, true
	case "semver_lt", "version_lt":
		return OpSemVerLt, true
	case "semver_eq", "version_eq":
		return OpSemVerEq, true
	case "exists":
		return OpExists, true
	default:
		return op, false
	}
}
