package definition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
)

// testRegistry holds minimal kinds so compiler tests do not depend on the
// built-in step library.
func testRegistry() *Registry {
	reg := NewRegistry()
	reg.Register(Kind{
		Name:     "record",
		Required: []string{"key"},
		Factory: func(def StepDef, _ Builder) (workflow.Step, error) {
			key, _ := def.With["key"].(string)
			desc := def.Description
			if desc == "" {
				desc = "record " + key
			}
			return workflow.Func(desc, func(_ context.Context, ctl *workflow.Control, c workflow.Container) error {
				c.Set(key, ctl.Stage().String())
				return nil
			}), nil
		},
	})
	reg.Register(Kind{
		Name: "fail",
		Factory: func(def StepDef, _ Builder) (workflow.Step, error) {
			reason, _ := def.With["reason"].(string)
			return workflow.Func("fail", func(_ context.Context, ctl *workflow.Control, _ workflow.Container) error {
				return ctl.FailStep(reason)
			}), nil
		},
	})
	reg.Register(Kind{
		Name:        "check",
		Required:    []string{"expr"},
		Expressions: []string{"expr"},
		Factory: func(def StepDef, b Builder) (workflow.Step, error) {
			expr, _ := def.With["expr"].(string)
			engine := b.Engine()
			return workflow.Func("check "+expr, func(ctx context.Context, ctl *workflow.Control, c workflow.Container) error {
				out, err := engine.Evaluate(ctx, expr, c.Snapshot())
				if err != nil {
					return err
				}
				if out != true {
					return ctl.FailStep("check failed")
				}
				return nil
			}), nil
		},
	})
	reg.Register(Kind{
		Name: KindLoop,
		Factory: func(def StepDef, b Builder) (workflow.Step, error) {
			children, err := b.Steps(def.Steps)
			if err != nil {
				return nil, err
			}
			times := def.MaxIterations
			control := workflow.LoopWhile("repeat", func(_ context.Context, i int, _ *workflow.Control, _ workflow.Container) (bool, error) {
				return i < times, nil
			})
			return workflow.NewLoop(control, children...), nil
		},
	})
	reg.Register(Kind{
		Name: KindNested,
		Factory: func(def StepDef, b Builder) (workflow.Step, error) {
			wf, err := b.Workflow(def)
			if err != nil {
				return nil, err
			}
			return workflow.Nested(wf, nil), nil
		},
	})
	return reg
}

func mustParse(t *testing.T, doc string) *Definition {
	t.Helper()
	def, err := Parse([]byte(doc))
	require.NoError(t, err)
	return def
}

func lintMessages(errs []LintError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}

func run(t *testing.T, wf *workflow.Workflow, seed map[string]any) *workflow.Result {
	t.Helper()
	res, err := wf.Execute(t.Context(), workflow.NewStoreFrom(seed), workflow.ThrowOnFailure(false))
	require.NoError(t, err)
	return res
}

