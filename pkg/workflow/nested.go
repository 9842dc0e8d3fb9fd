package workflow

import (
	"context"
	"fmt"
)

// NestedWorkflow is a step running another workflow. The child reads from
// an overlay of the optional private container over the parent container
// and writes through to the parent.
type NestedWorkflow struct {
	workflow *Workflow
	private  Container
	result   *Result
}

// Nested wraps w. private may be nil.
func Nested(w *Workflow, private Container) *NestedWorkflow {
	return &NestedWorkflow{workflow: w, private: private}
}

func (n *NestedWorkflow) Description() string { return "Execute nested workflow" }

// Workflow returns the wrapped workflow.
func (n *NestedWorkflow) Workflow() *Workflow { return n.workflow }

// Result returns the result of the latest run, or nil before the first run.
func (n *NestedWorkflow) Result() *Result { return n.result }

func (n *NestedWorkflow) Run(ctx context.Context, ctl *Control, c Container) error {
	res, _ := n.workflow.Execute(ctx, NewNestedContainer(c, n.private), ThrowOnFailure(false))
	n.result = res

	ctl.attachInfo(Info{Kind: InfoNested, Nested: res})

	if count := res.Log().WarningCount(); count > 0 {
		ctl.Warn(fmt.Sprintf("Nested workflow '%s' emitted %d warning%s", res.Name(), count, pluralS(count)), nil)
	}
	if !res.Success() {
		return ctl.FailStep(fmt.Sprintf("Nested workflow '%s' failed", res.Name()))
	}
	return nil
}
