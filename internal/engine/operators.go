package engine

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/TimurManjosov/decider/internal/rules"
	"github.com/TimurManjosov/decider/internal/value"
)

// OperatorHandler evaluates one leaf operator. Operands are prepared once at
// compile time so Check stays allocation-free on the hot path.
type OperatorHandler interface {
	// Prepare validates and converts the configured operand.
	Prepare(operand value.Value) (any, error)
	// Check compares the context value against the prepared operand.
	Check(ctxValue value.Value, prepared any) bool
}

var (
	operatorHandlers = map[rules.Operator]OperatorHandler{
		rules.OpEq:         equalsHandler{},
		rules.OpNeq:        notEqualsHandler{},
		rules.OpContains:   containsHandler{},
		rules.OpStartsWith: stringHandler{cmp: strings.HasPrefix},
		rules.OpEndsWith:   stringHandler{cmp: strings.HasSuffix},
		rules.OpRegex:      regexHandler{},
		rules.OpGt:         numericCompareHandler{cmp: func(c int) bool { return c > 0 }},
		rules.OpLt:         numericCompareHandler{cmp: func(c int) bool { return c < 0 }},
		rules.OpGte:        numericCompareHandler{cmp: func(c int) bool { return c >= 0 }},
		rules.OpLte:        numericCompareHandler{cmp: func(c int) bool { return c <= 0 }},
		rules.OpIn:         inListHandler{},
		rules.OpNotIn:      notInListHandler{},
		rules.OpSemVerGt:   semverCompareHandler{cmp: func(a, b *semver.Version) bool { return a.GreaterThan(b) }},
		rules.OpSemVerLt:   semverCompareHandler{cmp: func(a, b *semver.Version) bool { return a.LessThan(b) }},
		rules.OpSemVerEq:   semverCompareHandler{cmp: func(a, b *semver.Version) bool { return a.Equal(b) }},
		rules.OpExists:     existsHandler{},
	}
	// regexCache keeps compiled regex by pattern so reloads reuse them.
	// Expected value type is *regexp.Regexp.
	regexCache sync.Map
)

func getOperatorHandler(op rules.Operator) (rules.Operator, OperatorHandler, bool) {
	normalized, ok := rules.NormalizeOperator(op)
	if !ok {
		return op, nil, false
	}
	h, ok := operatorHandlers[normalized]
	return normalized, h, ok
}

type equalsHandler struct{}

func (equalsHandler) Prepare(operand value.Value) (any, error) { return operand, nil }

func (equalsHandler) Check(ctxValue value.Value, prepared any) bool {
	return value.Equal(ctxValue, prepared.(value.Value))
}

type notEqualsHandler struct{}

func (notEqualsHandler) Prepare(operand value.Value) (any, error) { return operand, nil }

func (notEqualsHandler) Check(ctxValue value.Value, prepared any) bool {
	return !value.Equal(ctxValue, prepared.(value.Value))
}

// containsHandler matches substrings of String values and elements of Array
// values.
type containsHandler struct{}

func (containsHandler) Prepare(operand value.Value) (any, error) { return operand, nil }

func (containsHandler) Check(ctxValue value.Value, prepared any) bool {
	operand := prepared.(value.Value)
	switch ctxValue.Kind() {
	case value.KindString:
		s, _ := ctxValue.AsString()
		sub, ok := operand.AsString()
		return ok && strings.Contains(s, sub)
	case value.KindArray:
		for _, item := range ctxValue.Items() {
			if value.Equal(item, operand) {
				return true
			}
		}
	}
	return false
}

type stringHandler struct {
	cmp func(s, operand string) bool
}

func (stringHandler) Prepare(operand value.Value) (any, error) {
	s, ok := operand.AsString()
	if !ok {
		return nil, fmt.Errorf("expected string operand, got %s", operand.Kind())
	}
	return s, nil
}

func (h stringHandler) Check(ctxValue value.Value, prepared any) bool {
	s, ok := ctxValue.AsString()
	return ok && h.cmp(s, prepared.(string))
}

type regexHandler struct{}

func (regexHandler) Prepare(operand value.Value) (any, error) {
	pattern, ok := operand.AsString()
	if !ok {
		return nil, fmt.Errorf("expected string pattern, got %s", operand.Kind())
	}
	return getCompiledRegex(pattern)
}

func (regexHandler) Check(ctxValue value.Value, prepared any) bool {
	s, ok := ctxValue.AsString()
	return ok && prepared.(*regexp.Regexp).MatchString(s)
}

type numericCompareHandler struct {
	cmp func(c int) bool
}

func (numericCompareHandler) Prepare(operand value.Value) (any, error) {
	if operand.Kind() != value.KindNumber {
		return nil, fmt.Errorf("expected number operand, got %s", operand.Kind())
	}
	return operand, nil
}

func (h numericCompareHandler) Check(ctxValue value.Value, prepared any) bool {
	c, ok := value.Compare(ctxValue, prepared.(value.Value))
	return ok && h.cmp(c)
}

type inListHandler struct{}

func (inListHandler) Prepare(operand value.Value) (any, error) {
	if operand.Kind() != value.KindArray {
		return nil, fmt.Errorf("expected list operand, got %s", operand.Kind())
	}
	return operand.Items(), nil
}

func (inListHandler) Check(ctxValue value.Value, prepared any) bool {
	for _, item := range prepared.([]value.Value) {
		if value.Equal(ctxValue, item) {
			return true
		}
	}
	return false
}

type notInListHandler struct{}

func (notInListHandler) Prepare(operand value.Value) (any, error) {
	return inListHandler{}.Prepare(operand)
}

func (notInListHandler) Check(ctxValue value.Value, prepared any) bool {
	return !inListHandler{}.Check(ctxValue, prepared)
}

type semverCompareHandler struct {
	cmp func(a, b *semver.Version) bool
}

func (semverCompareHandler) Prepare(operand value.Value) (any, error) {
	s, ok := operand.AsString()
	if !ok {
		return nil, fmt.Errorf("expected version string, got %s", operand.Kind())
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return v, nil
}

func (h semverCompareHandler) Check(ctxValue value.Value, prepared any) bool {
	s, ok := ctxValue.AsString()
	if !ok {
		return false
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return false
	}
	return h.cmp(v, prepared.(*semver.Version))
}

// existsHandler is resolved by the leaf itself since it must observe absent
// fields; Check is only reached for present ones.
type existsHandler struct{}

func (existsHandler) Prepare(operand value.Value) (any, error) {
	if operand.IsNull() {
		return true, nil
	}
	b, ok := operand.AsBool()
	if !ok {
		return nil, fmt.Errorf("expected optional bool operand, got %s", operand.Kind())
	}
	return b, nil
}

func (existsHandler) Check(_ value.Value, prepared any) bool {
	return prepared.(bool)
}

func getCompiledRegex(pattern string) (*regexp.Regexp, error) {
	if cached, ok := regexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}

	rx, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	regexCache.Store(pattern, rx)
	return rx, nil
}
