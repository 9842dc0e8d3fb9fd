package steps

import (
	"context"
	"fmt"
	"reflect"

	"github.com/ravi-parthasarathy/workflow/pkg/definition"
	"github.com/ravi-parthasarathy/workflow/pkg/expression"
	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
)

// DefaultMaxIterations bounds while loops that set no max_iterations.
const DefaultMaxIterations = 1000

// ExprLoop repeats while a condition holds, up to a maximum number of
// iterations. Reaching the maximum ends the loop with a warning. A
// condition that fails to evaluate ends the loop even with
// continue_on_error.
type ExprLoop struct {
	description string
	condition   string
	engine      expression.Engine
	max         int
}

// NewExprLoop returns a loop control evaluating condition with engine.
// A max below one selects DefaultMaxIterations.
func NewExprLoop(description, condition string, engine expression.Engine, max int) *ExprLoop {
	if max < 1 {
		max = DefaultMaxIterations
	}
	return &ExprLoop{description: description, condition: condition, engine: engine, max: max}
}

func (l *ExprLoop) Description() string { return l.description }

func (l *ExprLoop) ShouldContinue(ctx context.Context, iteration int, ctl *workflow.Control, c workflow.Container) (bool, error) {
	ok, err := expression.EvaluateBool(ctx, l.engine, l.condition, c.Snapshot())
	if err != nil {
		return false, workflow.StopLoop(err)
	}
	if !ok {
		return false, nil
	}
	if iteration >= l.max {
		ctl.Warn(fmt.Sprintf("Loop stopped after reaching the maximum of %d iterations", l.max), nil)
		return false, nil
	}
	return true, nil
}

// ItemsLoop runs once per element of the list stored under a key. The
// current element is stored under as and its index under as + "_index".
// The list is read again before every iteration. A missing or non-list
// value ends the loop even with continue_on_error.
type ItemsLoop struct {
	description string
	over        string
	as          string
	max         int
}

// NewItemsLoop returns a loop control iterating over the list at key over.
// A max of zero means no limit.
func NewItemsLoop(description, over, as string, max int) *ItemsLoop {
	if as == "" {
		as = "item"
	}
	return &ItemsLoop{description: description, over: over, as: as, max: max}
}

func (l *ItemsLoop) Description() string { return l.description }

func (l *ItemsLoop) ShouldContinue(_ context.Context, iteration int, ctl *workflow.Control, c workflow.Container) (bool, error) {
	raw, ok := c.Get(l.over)
	if !ok {
		return false, workflow.StopLoop(ctl.FailStep(fmt.Sprintf("Missing '%s' in container", l.over)))
	}
	items, err := listOf(raw)
	if err != nil {
		return false, workflow.StopLoop(ctl.FailStep(fmt.Sprintf("cannot iterate over '%s': %v", l.over, err)))
	}
	if iteration >= len(items) {
		return false, nil
	}
	if l.max > 0 && iteration >= l.max {
		ctl.Warn(fmt.Sprintf("Loop stopped after reaching the maximum of %d iterations", l.max), nil)
		return false, nil
	}
	c.Set(l.as, items[iteration])
	c.Set(l.as+"_index", iteration)
	return true, nil
}

// listOf accepts any slice or array, or JSON text holding an array.
func listOf(v any) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		decoded, err := asJSON(s)
		if err != nil {
			return nil, err
		}
		v = decoded
		if v == nil {
			return nil, nil
		}
	}
	if list, ok := v.([]any); ok {
		return list, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func newLoop(def definition.StepDef, b definition.Builder) (workflow.Step, error) {
	children, err := b.Steps(def.Steps)
	if err != nil {
		return nil, fmt.Errorf("loop: %w", err)
	}

	var control workflow.LoopControl
	switch {
	case def.While != "":
		if err := b.Engine().Compile(def.While); err != nil {
			return nil, fmt.Errorf("loop: %w", err)
		}
		control = NewExprLoop(describe(def, "while "+def.While), def.While, b.Engine(), def.MaxIterations)
	case def.Over != "":
		as := def.As
		if as == "" {
			as = "item"
		}
		control = NewItemsLoop(describe(def, fmt.Sprintf("for each %s in %s", as, def.Over)), def.Over, as, def.MaxIterations)
	default:
		return nil, fmt.Errorf("loop needs 'while' or 'over'")
	}

	return workflow.NewLoop(control, children...).ContinueOnError(def.ContinueOnError), nil
}
