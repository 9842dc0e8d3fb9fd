package steps

import (
	"context"
	"fmt"

	"github.com/ravi-parthasarathy/workflow/pkg/definition"
	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
)

// Nested runs a compiled child workflow. Values of context are rendered
// on every run and take precedence over the parent context for reads.
type Nested struct {
	description string
	workflow    *workflow.Workflow
	context     map[string]any
	last        *workflow.NestedWorkflow
}

func (n *Nested) Description() string { return n.description }

// Workflow returns the child workflow.
func (n *Nested) Workflow() *workflow.Workflow { return n.workflow }

// Result returns the result of the latest child run, or nil.
func (n *Nested) Result() *workflow.Result {
	if n.last == nil {
		return nil
	}
	return n.last.Result()
}

func (n *Nested) Run(ctx context.Context, ctl *workflow.Control, c workflow.Container) error {
	var private workflow.Container
	if len(n.context) > 0 {
		rendered, err := renderValue(n.context, c.Snapshot())
		if err != nil {
			return fmt.Errorf("nested context: %w", err)
		}
		private = workflow.NewStoreFrom(rendered.(map[string]any))
	}
	n.last = workflow.Nested(n.workflow, private)
	return n.last.Run(ctx, ctl, c)
}

func newNested(def definition.StepDef, b definition.Builder) (workflow.Step, error) {
	wf, err := b.Workflow(def)
	if err != nil {
		return nil, err
	}
	return &Nested{
		description: describe(def, "Execute nested workflow"),
		workflow:    wf,
		context:     def.Context,
	}, nil
}
