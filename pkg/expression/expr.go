package expression

import (
	"context"
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprEngine evaluates expr-lang expressions. Context keys are top-level
// variables; unknown names evaluate to nil.
type ExprEngine struct {
	programs *cache[*vm.Program]
}

func NewExprEngine() *ExprEngine {
	return &ExprEngine{programs: newCache[*vm.Program]()}
}

func (e *ExprEngine) Name() string { return LangExpr }

func (e *ExprEngine) Evaluate(_ context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, errors.New("empty expr expression")
	}
	prg, err := e.programs.get(expression, compileExpr)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	out, err := expr.Run(prg, data)
	if err != nil {
		return nil, fmt.Errorf("expr evaluation failed for %q: %w", expression, err)
	}
	return out, nil
}

func (e *ExprEngine) Compile(expression string) error {
	_, err := e.programs.get(expression, compileExpr)
	return err
}

// The environment is left untyped so one program serves every run,
// whatever the value types in the context.
func compileExpr(expression string) (*vm.Program, error) {
	prg, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, fmt.Errorf("expr compile error in %q: %w", expression, err)
	}
	return prg, nil
}

var _ Engine = (*ExprEngine)(nil)
