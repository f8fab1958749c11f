package engine

import (
	"errors"
	"sync"
	"testing"

	"github.com/TimurManjosov/decider/internal/rules"
	"github.com/TimurManjosov/decider/internal/value"
)

func TestOperatorHandlers(t *testing.T) {
	tests := []struct {
		name     string
		op       rules.Operator
		ctxValue any
		operand  any
		want     bool
	}{
		{name: "equals string true", op: rules.OpEq, ctxValue: "premium", operand: "premium", want: true},
		{name: "equals string false", op: "equals", ctxValue: "premium", operand: "free", want: false},
		{name: "equals int float", op: "==", ctxValue: 10, operand: 10.0, want: true},
		{name: "equals no coercion", op: rules.OpEq, ctxValue: "10", operand: 10, want: false},
		{name: "not equals", op: "!=", ctxValue: "a", operand: "b", want: true},
		{name: "contains true", op: rules.OpContains, ctxValue: "premium_plan", operand: "premium", want: true},
		{name: "contains array", op: rules.OpContains, ctxValue: []any{"a", "b"}, operand: "b", want: true},
		{name: "starts_with true", op: "starts_with", ctxValue: "premium_plan", operand: "premium", want: true},
		{name: "ends_with true", op: "ends_with", ctxValue: "premium_plan", operand: "plan", want: true},
		{name: "regex true", op: "regex", ctxValue: "user@example.com", operand: `^[^@]+@example\.com$`, want: true},
		{name: "gt int float64", op: rules.OpGt, ctxValue: 10, operand: 9.5, want: true},
		{name: "lte float int", op: rules.OpLte, ctxValue: 10.0, operand: 10, want: true},
		{name: "gt string never", op: rules.OpGt, ctxValue: "12", operand: 10, want: false},
		{name: "in_list []string", op: rules.OpIn, ctxValue: "US", operand: []string{"US", "CA"}, want: true},
		{name: "in numbers", op: rules.OpIn, ctxValue: 3, operand: []any{1, 2, 3}, want: true},
		{name: "not_in_list []any", op: "not_in_list", ctxValue: "UK", operand: []any{"US", "CA"}, want: true},
		{name: "semver gt", op: rules.OpSemVerGt, ctxValue: "1.2.0", operand: "1.1.9", want: true},
		{name: "semver lt prerelease", op: rules.OpSemVerLt, ctxValue: "1.0.0-beta.1", operand: "1.0.0", want: true},
		{name: "semver eq", op: rules.OpSemVerEq, ctxValue: "v2.0", operand: "2.0.0", want: true},
		{name: "semver invalid context", op: rules.OpSemVerGt, ctxValue: "latest", operand: "1.0.0", want: false},
		{name: "invalid type false", op: rules.OpContains, ctxValue: 123, operand: "1", want: false},
		{name: "exists", op: rules.OpExists, ctxValue: "x", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Compile(rules.Predicate{Field: "attr", Op: tt.op, Value: tt.operand})
			if err != nil {
				t.Fatalf("Compile: %v", err)
			}
			ctx := value.MustFromAny(map[string]any{"attr": tt.ctxValue})
			if got := m.Match(ctx); got != tt.want {
				t.Fatalf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatch_MissingFieldNeverMatches(t *testing.T) {
	ctx := value.MustFromAny(map[string]any{"user": map[string]any{"id": "u1"}})
	ops := []rules.Predicate{
		{Field: "user.country", Op: rules.OpEq, Value: "US"},
		{Field: "user.country", Op: rules.OpNeq, Value: "US"},
		{Field: "user.country", Op: rules.OpNotIn, Value: []any{"US"}},
		{Field: "user.id.deeper", Op: rules.OpExists},
		{Field: "plan", Op: rules.OpRegex, Value: ".*"},
	}
	for _, p := range ops {
		if MustCompile(p).Match(ctx) {
			t.Errorf("%s %s matched against a missing field", p.Field, p.Op)
		}
	}

	absent := MustCompile(rules.Predicate{Field: "user.country", Op: rules.OpExists, Value: false})
	if !absent.Match(ctx) {
		t.Error("exists:false should match an absent field")
	}
	negated := MustCompile(rules.Predicate{Not: &rules.Predicate{Field: "user.country", Op: rules.OpEq, Value: "US"}})
	if negated.Match(ctx) {
		t.Error("not over a missing field must not match")
	}
}

func TestMatch_MissingFieldPropagates(t *testing.T) {
	missing := rules.Predicate{Field: "country", Op: rules.OpEq, Value: "US"}
	isPro := rules.Predicate{Field: "plan", Op: rules.OpEq, Value: "pro"}
	isFree := rules.Predicate{Field: "plan", Op: rules.OpEq, Value: "free"}
	not := func(p rules.Predicate) rules.Predicate { return rules.Predicate{Not: &p} }

	tests := []struct {
		name string
		p    rules.Predicate
		want bool
	}{
		{"not missing", not(missing), false},
		{"not not missing", not(not(missing)), false},
		{"all true and missing", rules.Predicate{All: []rules.Predicate{isPro, missing}}, false},
		{"not all true and missing", not(rules.Predicate{All: []rules.Predicate{isPro, missing}}), false},
		{"not all false and missing", not(rules.Predicate{All: []rules.Predicate{isFree, missing}}), true},
		{"any true or missing", rules.Predicate{Any: []rules.Predicate{missing, isPro}}, true},
		{"not any false or missing", not(rules.Predicate{Any: []rules.Predicate{isFree, missing}}), false},
		{"not exists", not(rules.Predicate{Field: "country", Op: rules.OpExists}), true},
		{"exists false", rules.Predicate{Field: "country", Op: rules.OpExists, Value: false}, true},
		{"not cel missing", not(rules.Predicate{CEL: `ctx.country == "US"`}), false},
		{"not cel present", not(rules.Predicate{CEL: `ctx.plan == "free"`}), true},
		{"jsonlogic neq missing", rules.Predicate{JSONLogic: map[string]any{"!=": []any{map[string]any{"var": "country"}, "US"}}}, false},
		{"jsonlogic var default", rules.Predicate{JSONLogic: map[string]any{"!=": []any{map[string]any{"var": []any{"country", "XX"}}, "US"}}}, true},
		{"not jsonlogic missing", not(rules.Predicate{JSONLogic: map[string]any{"==": []any{map[string]any{"var": "country"}, "US"}}}), false},
	}
	ctx := value.MustFromAny(map[string]any{"plan": "pro"})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MustCompile(tt.p).Match(ctx); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchInput_SharesEncoding(t *testing.T) {
	ctx := value.MustFromAny(map[string]any{"plan": "pro", "age": 40})
	first := MustCompile(rules.Predicate{JSONLogic: map[string]any{"==": []any{map[string]any{"var": "plan"}, "free"}}})
	second := MustCompile(rules.Predicate{JSONLogic: map[string]any{">": []any{map[string]any{"var": "age"}, 30}}})

	in := NewInput(ctx)
	if first.MatchInput(in) {
		t.Error("first rule should not match")
	}
	encoded := in.json
	if !in.hasJSON || len(encoded) == 0 {
		t.Fatal("context was not encoded")
	}
	if !second.MatchInput(in) {
		t.Error("second rule should match")
	}
	if &in.json[0] != &encoded[0] {
		t.Error("context was encoded twice")
	}
	if first.MatchInput(nil) {
		t.Error("nil input must not match")
	}
}

func TestMatch_Composite(t *testing.T) {
	p := rules.Predicate{All: []rules.Predicate{
		{Field: "user.country", Op: rules.OpIn, Value: []any{"US", "CA"}},
		{Any: []rules.Predicate{
			{Field: "plan", Op: rules.OpEq, Value: "premium"},
			{CEL: `ctx.beta == true`},
			{JSONLogic: map[string]any{">=": []any{map[string]any{"var": "age"}, 65}}},
		}},
	}}
	m := MustCompile(p)

	tests := []struct {
		name string
		ctx  map[string]any
		want bool
	}{
		{"premium US", map[string]any{"user": map[string]any{"country": "US"}, "plan": "premium"}, true},
		{"beta CA", map[string]any{"user": map[string]any{"country": "CA"}, "beta": true}, true},
		{"senior US", map[string]any{"user": map[string]any{"country": "US"}, "age": 70}, true},
		{"free US", map[string]any{"user": map[string]any{"country": "US"}, "plan": "free", "age": 30}, false},
		{"premium FR", map[string]any{"user": map[string]any{"country": "FR"}, "plan": "premium"}, false},
		{"empty", map[string]any{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Match(value.MustFromAny(tt.ctx)); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name string
		p    rules.Predicate
		want error
	}{
		{"unknown operator", rules.Predicate{Field: "x", Op: "unknown", Value: "x"}, rules.ErrInvalidOperator},
		{"bad regex", rules.Predicate{Field: "x", Op: rules.OpRegex, Value: "("}, ErrCompile},
		{"bad semver", rules.Predicate{Field: "x", Op: rules.OpSemVerGt, Value: "not-a-version"}, ErrCompile},
		{"bad cel", rules.Predicate{CEL: "ctx.x =="}, ErrCompile},
		{"bad jsonlogic", rules.Predicate{JSONLogic: "not json"}, ErrCompile},
		{"no form", rules.Predicate{}, rules.ErrInvalidPredicate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile(tt.p); !errors.Is(err, tt.want) {
				t.Errorf("Compile() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMatch_Deterministic(t *testing.T) {
	m := MustCompile(rules.Predicate{Field: "email", Op: rules.OpEndsWith, Value: "@example.com"})
	ctx := value.MustFromAny(map[string]any{"email": "a@example.com"})
	first := m.Match(ctx)
	for i := 0; i < 50; i++ {
		if got := m.Match(ctx); got != first {
			t.Fatalf("match changed across evaluations")
		}
	}
}

func TestMatch_Concurrent(t *testing.T) {
	m := MustCompile(rules.Predicate{Field: "email", Op: rules.OpRegex, Value: `^u\d+@`})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := value.MustFromAny(map[string]any{"email": "u1@example.com"})
			for j := 0; j < 200; j++ {
				if !m.Match(ctx) {
					t.Error("expected match")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestMatcher_NilNeverMatches(t *testing.T) {
	var m *Matcher
	if m.Match(value.Map(nil)) {
		t.Error("nil matcher must not match")
	}
}
