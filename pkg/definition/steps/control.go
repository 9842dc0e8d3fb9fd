package steps

import (
	"context"
	"fmt"

	"github.com/ravi-parthasarathy/workflow/pkg/definition"
	"github.com/ravi-parthasarathy/workflow/pkg/expression"
	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
)

// newAssert fails the step when expr does not hold. The message attribute
// replaces the default reason.
func newAssert(def definition.StepDef, b definition.Builder) (workflow.Step, error) {
	a := attrsOf(def)
	expr, err := a.String("expr", "")
	if err != nil {
		return nil, err
	}
	message, err := a.Template("message", "")
	if err != nil {
		return nil, err
	}
	engine := b.Engine()
	if err := engine.Compile(expr); err != nil {
		return nil, a.errorf("%w", err)
	}

	return workflow.Func(describe(def, "Assert "+expr), func(ctx context.Context, ctl *workflow.Control, c workflow.Container) error {
		data := c.Snapshot()
		ok, err := expression.EvaluateBool(ctx, engine, expr, data)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		reason, err := message.render(data)
		if err != nil {
			return err
		}
		if reason == "" {
			reason = "assertion failed: " + expr
		}
		return ctl.FailStep(reason)
	}), nil
}

// signalStep builds the kinds that only raise a signal.
func signalStep(def definition.StepDef, fallback string, raise func(ctl *workflow.Control, reason string, wholeWorkflow bool) error) (workflow.Step, error) {
	a := attrsOf(def)
	reason, err := a.Template("reason", "")
	if err != nil {
		return nil, err
	}
	whole, err := a.Bool("workflow", false)
	if err != nil {
		return nil, err
	}
	return workflow.Func(describe(def, fallback), func(_ context.Context, ctl *workflow.Control, c workflow.Container) error {
		r, err := reason.render(c.Snapshot())
		if err != nil {
			return err
		}
		return raise(ctl, r, whole)
	}), nil
}

func newFail(def definition.StepDef, _ definition.Builder) (workflow.Step, error) {
	return signalStep(def, "Fail", func(ctl *workflow.Control, reason string, whole bool) error {
		if whole {
			return ctl.FailWorkflow(reason)
		}
		return ctl.FailStep(reason)
	})
}

func newSkip(def definition.StepDef, _ definition.Builder) (workflow.Step, error) {
	return signalStep(def, "Skip", func(ctl *workflow.Control, reason string, whole bool) error {
		if whole {
			return ctl.SkipWorkflow(reason)
		}
		return ctl.SkipStep(reason)
	})
}

func newContinue(def definition.StepDef, _ definition.Builder) (workflow.Step, error) {
	return signalStep(def, "Continue loop", func(ctl *workflow.Control, reason string, _ bool) error {
		return ctl.ContinueLoop(reason)
	})
}

func newBreak(def definition.StepDef, _ definition.Builder) (workflow.Step, error) {
	return signalStep(def, "Break loop", func(ctl *workflow.Control, reason string, _ bool) error {
		return ctl.BreakLoop(reason)
	})
}

// newWarn records a warning and lets the step succeed.
func newWarn(def definition.StepDef, _ definition.Builder) (workflow.Step, error) {
	message, err := attrsOf(def).Template("message", "")
	if err != nil {
		return nil, err
	}
	return workflow.Func(describe(def, "Warn"), func(_ context.Context, ctl *workflow.Control, c workflow.Container) error {
		msg, err := message.render(c.Snapshot())
		if err != nil {
			return fmt.Errorf("warn: %w", err)
		}
		ctl.Warn(msg, nil)
		return nil
	}), nil
}

// newInfo attaches a line to the log record of the step.
func newInfo(def definition.StepDef, _ definition.Builder) (workflow.Step, error) {
	message, err := attrsOf(def).Template("message", "")
	if err != nil {
		return nil, err
	}
	return workflow.Func(describe(def, "Info"), func(_ context.Context, ctl *workflow.Control, c workflow.Container) error {
		msg, err := message.render(c.Snapshot())
		if err != nil {
			return fmt.Errorf("info: %w", err)
		}
		ctl.Attach(msg)
		return nil
	}), nil
}
