package expression

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
)

// CELVariable is the CEL variable holding the context snapshot, so a
// condition reads `vars.count > 3`.
const CELVariable = "vars"

// CELEngine evaluates Common Expression Language conditions.
type CELEngine struct {
	env      *cel.Env
	programs *cache[cel.Program]
}

func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable(CELVariable, cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &CELEngine{env: env, programs: newCache[cel.Program]()}, nil
}

func (e *CELEngine) Name() string { return LangCEL }

func (e *CELEngine) Evaluate(_ context.Context, expression string, data map[string]any) (any, error) {
	if expression == "" {
		return nil, errors.New("empty CEL expression")
	}
	prg, err := e.programs.get(expression, e.compile)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	out, _, err := prg.Eval(map[string]any{CELVariable: data})
	if err != nil {
		return nil, fmt.Errorf("CEL evaluation failed for %q: %w", expression, err)
	}
	return out.Value(), nil
}

func (e *CELEngine) Compile(expression string) error {
	_, err := e.programs.get(expression, e.compile)
	return err
}

func (e *CELEngine) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error in %q: %w", expression, issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program error for %q: %w", expression, err)
	}
	return prg, nil
}

var _ Engine = (*CELEngine)(nil)
