package targeting

import (
	"fmt"
	"strings"
	"sync"

	"github.com/TimurManjosov/decider/internal/value"
	"github.com/google/cel-go/cel"
)

// ContextVariable is the name under which the decision context is exposed to
// CEL expressions, e.g. `ctx.user.country == "US"`.
const ContextVariable = "ctx"

var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error
)

func sharedEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable(ContextVariable, cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return celEnv, celEnvErr
}

// CEL is a compiled CEL predicate. Programs are stateless and safe for
// concurrent use.
type CEL struct {
	expr string
	prg  cel.Program
}

// CompileCEL parses and type-checks expr. The expression must produce a bool
// (or dyn, checked at evaluation time).
func CompileCEL(expr string) (*CEL, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, ErrEmptyExpression
	}
	env, err := sharedEnv()
	if err != nil {
		return nil, fmt.Errorf("cel environment: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, iss.Err())
	}
	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: %q evaluates to %s, want bool", ErrInvalidExpression, expr, out)
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	return &CEL{expr: expr, prg: prg}, nil
}

// Eval runs the program against ctx. Accessing an absent key is an error.
func (c *CEL) Eval(ctx value.Value) (bool, error) {
	return c.EvalData(ContextData(ctx))
}

// EvalData runs the program against a context already converted with
// ContextData.
func (c *CEL) EvalData(data map[string]any) (bool, error) {
	out, _, err := c.prg.Eval(map[string]any{ContextVariable: data})
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("cel: %q returned %s, want bool", c.expr, out.Type())
	}
	return b, nil
}

// ContextData converts ctx into the value bound to ctx in CEL programs.
func ContextData(ctx value.Value) map[string]any {
	data, ok := ctx.Interface().(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return data
}

// Match reports whether ctx satisfies the expression. Errors never match.
func (c *CEL) Match(ctx value.Value) bool {
	ok, err := c.Eval(ctx)
	return err == nil && ok
}

// String returns the expression source.
func (c *CEL) String() string { return c.expr }
