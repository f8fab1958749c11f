package targeting

import (
	"errors"
	"testing"

	"github.com/TimurManjosov/decider/internal/value"
)

func ctxOf(m map[string]any) value.Value {
	return value.MustFromAny(m)
}

func TestEvaluate_EmptyExpression(t *testing.T) {
	if _, err := Evaluate("", ctxOf(nil)); !errors.Is(err, ErrEmptyExpression) {
		t.Fatalf("expected ErrEmptyExpression, got %v", err)
	}
	if _, err := Evaluate("   ", ctxOf(nil)); !errors.Is(err, ErrEmptyExpression) {
		t.Fatalf("expected ErrEmptyExpression for whitespace, got %v", err)
	}
}

func TestEvaluate_SimpleEquality(t *testing.T) {
	expression := `{"==": [{"var": "plan"}, "premium"]}`

	result, err := Evaluate(expression, ctxOf(map[string]any{"plan": "premium"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result {
		t.Error("Expected true for premium user")
	}

	result, err = Evaluate(expression, ctxOf(map[string]any{"plan": "free"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result {
		t.Error("Expected false for free user")
	}
}

func TestEvaluate_AndCondition(t *testing.T) {
	expression := `{"and": [{"==": [{"var": "plan"}, "premium"]}, {"==": [{"var": "country"}, "US"]}]}`

	tests := []struct {
		name     string
		context  map[string]any
		expected bool
	}{
		{"premium US user", map[string]any{"plan": "premium", "country": "US"}, true},
		{"premium UK user", map[string]any{"plan": "premium", "country": "UK"}, false},
		{"free US user", map[string]any{"plan": "free", "country": "US"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Evaluate(expression, ctxOf(tt.context))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestEvaluate_NestedVar(t *testing.T) {
	expression := `{"in": [{"var": "user.country"}, ["US", "CA"]]}`

	tests := []struct {
		name     string
		context  map[string]any
		expected bool
	}{
		{"US", map[string]any{"user": map[string]any{"country": "US"}}, true},
		{"FR", map[string]any{"user": map[string]any{"country": "FR"}}, false},
		{"missing", map[string]any{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Evaluate(expression, ctxOf(tt.context))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestEvaluate_NumericComparison(t *testing.T) {
	expression := `{">=": [{"var": "appVersionNum"}, 2.0]}`

	tests := []struct {
		name     string
		context  map[string]any
		expected bool
	}{
		{"version 2.5", map[string]any{"appVersionNum": 2.5}, true},
		{"version 2.0", map[string]any{"appVersionNum": 2.0}, true},
		{"version 1.9", map[string]any{"appVersionNum": 1.9}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Evaluate(expression, ctxOf(tt.context))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestEvaluate_MissingVariable(t *testing.T) {
	result, err := Evaluate(`{"==": [{"var": "plan"}, "premium"]}`, ctxOf(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result {
		t.Error("Expected false when variable is missing")
	}
}

func TestEvaluate_InvalidJSON(t *testing.T) {
	_, err := Evaluate("not valid json", ctxOf(nil))
	if !errors.Is(err, ErrInvalidExpression) {
		t.Errorf("Expected ErrInvalidExpression, got %v", err)
	}
}

func TestValidateExpression(t *testing.T) {
	valid := []string{
		`{"==": [{"var": "plan"}, "premium"]}`,
		`{"and": [true, true]}`,
		`{"!": false}`,
		`{"in": [{"var": "x"}, ["a", "b", "c"]]}`,
		`{"if": [{"var": "x"}, "yes", "no"]}`,
	}
	for _, expr := range valid {
		t.Run(expr, func(t *testing.T) {
			if err := ValidateExpression(expr); err != nil {
				t.Errorf("Expected valid expression, got error: %v", err)
			}
		})
	}

	for _, expr := range []string{"", "not json", `{incomplete json`} {
		if err := ValidateExpression(expr); err == nil {
			t.Errorf("Expected error for %q", expr)
		}
	}
}

func TestCompileJSONLogic_DecodedRule(t *testing.T) {
	rule := map[string]any{"==": []any{map[string]any{"var": "plan"}, "premium"}}
	p, err := CompileJSONLogic(rule)
	if err != nil {
		t.Fatalf("CompileJSONLogic: %v", err)
	}
	if !p.Match(ctxOf(map[string]any{"plan": "premium"})) {
		t.Error("expected match")
	}
	if p.Match(ctxOf(map[string]any{"plan": "free"})) {
		t.Error("unexpected match")
	}
	if p.Match(value.Null()) {
		t.Error("null context must not match")
	}
}

func TestJSONLogic_Missing(t *testing.T) {
	ctx := ctxOf(map[string]any{
		"plan":  "pro",
		"user":  map[string]any{"tags": []any{"beta"}},
		"items": []any{map[string]any{"price": 5}},
	})
	tests := []struct {
		name    string
		rule    string
		missing bool
	}{
		{"present", `{"==": [{"var": "plan"}, "pro"]}`, false},
		{"absent", `{"!=": [{"var": "country"}, "US"]}`, true},
		{"nested absent", `{"==": [{"var": "user.country"}, "US"]}`, true},
		{"array index", `{"==": [{"var": "user.tags.0"}, "beta"]}`, false},
		{"array index out of range", `{"==": [{"var": "user.tags.3"}, "x"]}`, true},
		{"list form", `{"==": [{"var": ["plan"]}, "pro"]}`, false},
		{"default", `{"==": [{"var": ["country", "US"]}, "US"]}`, false},
		{"whole context", `{"!!": {"var": ""}}`, false},
		{"scoped item var", `{"some": [{"var": "items"}, {">": [{"var": "price"}, 1]}]}`, false},
		{"scoped source absent", `{"some": [{"var": "orders"}, {">": [{"var": "price"}, 1]}]}`, true},
		{"missing operator", `{"missing": ["country"]}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := CompileJSONLogic(tt.rule)
			if err != nil {
				t.Fatalf("CompileJSONLogic: %v", err)
			}
			if got := p.Missing(ctx); got != tt.missing {
				t.Errorf("Missing() = %v, want %v", got, tt.missing)
			}
			if tt.missing && p.Match(ctx) {
				t.Error("a rule reading a missing field must not match")
			}
		})
	}
}

func TestJSONLogic_ApplyEncodedContext(t *testing.T) {
	p, err := CompileJSONLogic(`{">=": [{"var": "age"}, 18]}`)
	if err != nil {
		t.Fatalf("CompileJSONLogic: %v", err)
	}
	data, err := EncodeContext(ctxOf(map[string]any{"age": 21}))
	if err != nil {
		t.Fatalf("EncodeContext: %v", err)
	}
	if ok, err := p.Apply(data); err != nil || !ok {
		t.Errorf("Apply() = %v, %v, want true", ok, err)
	}
	empty, err := EncodeContext(value.String("not a map"))
	if err != nil || string(empty) != "{}" {
		t.Errorf("EncodeContext(string) = %s, %v, want {}", empty, err)
	}
}
