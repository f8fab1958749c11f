// Package engine compiles targeting predicates into matchers that evaluate
// against a decision context without I/O. Leaf predicates read the context in
// place; CEL and JSON Logic predicates share one conversion of it per Input.
//
// A predicate that reads a field absent from the context never matches, even
// under not. Use the exists operator to test for absence.
package engine

import (
	"errors"
	"fmt"

	"github.com/TimurManjosov/decider/internal/rules"
	"github.com/TimurManjosov/decider/internal/targeting"
	"github.com/TimurManjosov/decider/internal/value"
)

// ErrCompile wraps every predicate compilation failure.
var ErrCompile = errors.New("predicate compile error")

// Matcher is a compiled predicate. It is immutable and safe for concurrent use.
type Matcher struct {
	root node
}

// Match reports whether ctx satisfies the predicate.
func (m *Matcher) Match(ctx value.Value) bool {
	return m.MatchInput(NewInput(ctx))
}

// MatchInput is like Match but reuses the context encodings cached in in.
func (m *Matcher) MatchInput(in *Input) bool {
	if m == nil || m.root == nil || in == nil {
		return false
	}
	return m.root.match(in) == yes
}

// Compile validates p and compiles it. Operator aliases are normalized,
// operands are converted once, and regex, semver, CEL and JSON Logic sources
// are compiled up front so bad configs fail at load time.
func Compile(p rules.Predicate) (*Matcher, error) {
	if err := rules.ValidatePredicate(p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	root, err := compile(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	return &Matcher{root: root}, nil
}

// MustCompile is like Compile but panics on error. Intended for tests.
func MustCompile(p rules.Predicate) *Matcher {
	m, err := Compile(p)
	if err != nil {
		panic(err)
	}
	return m
}

func compile(p rules.Predicate) (node, error) {
	switch {
	case p.All != nil:
		children, err := compileAll(p.All)
		return allNode(children), err
	case p.Any != nil:
		children, err := compileAll(p.Any)
		return anyNode(children), err
	case p.Not != nil:
		child, err := compile(*p.Not)
		if err != nil {
			return nil, err
		}
		return notNode{child: child}, nil
	case p.CEL != "":
		c, err := targeting.CompileCEL(p.CEL)
		if err != nil {
			return nil, err
		}
		return celNode{p: c}, nil
	case p.JSONLogic != nil:
		j, err := targeting.CompileJSONLogic(p.JSONLogic)
		if err != nil {
			return nil, err
		}
		return jsonLogicNode{p: j}, nil
	}
	return compileLeaf(p)
}

func compileAll(ps []rules.Predicate) ([]node, error) {
	out := make([]node, 0, len(ps))
	for _, p := range ps {
		n, err := compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func compileLeaf(p rules.Predicate) (node, error) {
	op, handler, ok := getOperatorHandler(p.Op)
	if !ok {
		return nil, fmt.Errorf("%w: %q", rules.ErrInvalidOperator, p.Op)
	}
	operand, err := value.FromAny(p.Value)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", p.Field, err)
	}
	prepared, err := handler.Prepare(operand)
	if err != nil {
		return nil, fmt.Errorf("field %q operator %q: %w", p.Field, op, err)
	}
	return &leafNode{
		path:     value.SplitPath(p.Field),
		op:       op,
		handler:  handler,
		prepared: prepared,
	}, nil
}
