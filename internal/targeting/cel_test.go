package targeting

import (
	"errors"
	"testing"
)

func TestCompileCEL_Match(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		context  map[string]any
		expected bool
	}{
		{"string equality", `ctx.plan == "premium"`, map[string]any{"plan": "premium"}, true},
		{"string inequality", `ctx.plan == "premium"`, map[string]any{"plan": "free"}, false},
		{"nested field", `ctx.user.country in ["US", "CA"]`, map[string]any{"user": map[string]any{"country": "CA"}}, true},
		{"numeric", `ctx.age > 18.0`, map[string]any{"age": 21}, true},
		{"list membership", `"beta" in ctx.tags`, map[string]any{"tags": []any{"alpha", "beta"}}, true},
		{"has macro", `has(ctx.email) && ctx.email.endsWith("@example.com")`, map[string]any{"email": "a@example.com"}, true},
		{"has macro absent", `has(ctx.email) && ctx.email.endsWith("@example.com")`, map[string]any{}, false},
		{"missing key", `ctx.plan == "premium"`, map[string]any{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := CompileCEL(tt.expr)
			if err != nil {
				t.Fatalf("CompileCEL(%q): %v", tt.expr, err)
			}
			if got := p.Match(ctxOf(tt.context)); got != tt.expected {
				t.Errorf("Match() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCompileCEL_MissingKeyIsError(t *testing.T) {
	p, err := CompileCEL(`ctx.plan == "premium"`)
	if err != nil {
		t.Fatalf("CompileCEL: %v", err)
	}
	if _, err := p.Eval(ctxOf(map[string]any{})); err == nil {
		t.Error("expected evaluation error for absent key")
	}
}

func TestCompileCEL_Invalid(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want error
	}{
		{"empty", "  ", ErrEmptyExpression},
		{"syntax", `ctx.plan ==`, ErrInvalidExpression},
		{"unknown variable", `user.plan == "x"`, ErrInvalidExpression},
		{"non bool", `"premium"`, ErrInvalidExpression},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := CompileCEL(tt.expr); !errors.Is(err, tt.want) {
				t.Errorf("CompileCEL(%q) = %v, want %v", tt.expr, err, tt.want)
			}
		})
	}
}

func TestCompileCEL_ConcurrentUse(t *testing.T) {
	p, err := CompileCEL(`ctx.n > 10.0`)
	if err != nil {
		t.Fatalf("CompileCEL: %v", err)
	}
	done := make(chan bool)
	for i := 0; i < 8; i++ {
		go func(n int) {
			for j := 0; j < 100; j++ {
				p.Match(ctxOf(map[string]any{"n": n * 5}))
			}
			done <- true
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
