package steps

import (
	"context"
	"fmt"
	"os"

	"github.com/ravi-parthasarathy/workflow/pkg/definition"
	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
)

// newSet stores value under key. Strings inside value are rendered as
// templates; other YAML values are stored unchanged. With expr the result
// of the expression is stored instead.
func newSet(def definition.StepDef, b definition.Builder) (workflow.Step, error) {
	a := attrsOf(def)
	key, err := a.String("key", "")
	if err != nil {
		return nil, err
	}
	expr, err := a.String("expr", "")
	if err != nil {
		return nil, err
	}
	value := def.With["value"]
	if expr != "" && value != nil {
		return nil, a.errorf("'value' and 'expr' are mutually exclusive")
	}

	if expr != "" {
		engine := b.Engine()
		return workflow.Func(describe(def, "Set "+key), func(ctx context.Context, _ *workflow.Control, c workflow.Container) error {
			v, err := engine.Evaluate(ctx, expr, c.Snapshot())
			if err != nil {
				return err
			}
			c.Set(key, v)
			return nil
		}), nil
	}

	return workflow.Func(describe(def, "Set "+key), func(_ context.Context, _ *workflow.Control, c workflow.Container) error {
		v, err := renderValue(value, c.Snapshot())
		if err != nil {
			return fmt.Errorf("set %q: %w", key, err)
		}
		c.Set(key, v)
		return nil
	}), nil
}

// newUnset removes one or more keys.
func newUnset(def definition.StepDef, _ definition.Builder) (workflow.Step, error) {
	keys, err := attrsOf(def).Strings("key")
	if err != nil {
		return nil, err
	}
	return workflow.Func(describe(def, fmt.Sprintf("Unset %v", keys)), func(_ context.Context, _ *workflow.Control, c workflow.Container) error {
		for _, k := range keys {
			c.Delete(k)
		}
		return nil
	}), nil
}

// newEnv copies an environment variable into the context.
func newEnv(def definition.StepDef, _ definition.Builder) (workflow.Step, error) {
	a := attrsOf(def)
	key, err := a.String("key", "")
	if err != nil {
		return nil, err
	}
	from, err := a.String("from", "")
	if err != nil {
		return nil, err
	}
	fallback, err := a.String("default", "")
	if err != nil {
		return nil, err
	}
	required, err := a.Bool("required", false)
	if err != nil {
		return nil, err
	}

	return workflow.Func(describe(def, "Read $"+from), func(_ context.Context, ctl *workflow.Control, c workflow.Container) error {
		value, ok := os.LookupEnv(from)
		if !ok || value == "" {
			if required {
				return ctl.FailStep(fmt.Sprintf("environment variable %q is not set", from))
			}
			value = fallback
		}
		c.Set(key, value)
		return nil
	}), nil
}
