package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Next continues the middleware chain and eventually runs the step.
type Next func(ctx context.Context) error

// Middleware wraps the execution of every step of a workflow, including
// steps inside loops. Nested workflows use their own middleware.
type Middleware interface {
	Handle(ctx context.Context, next Next, ctl *Control, c Container, step Step) error
}

// MiddlewareFunc adapts a function to the Middleware interface.
type MiddlewareFunc func(ctx context.Context, next Next, ctl *Control, c Container, step Step) error

func (f MiddlewareFunc) Handle(ctx context.Context, next Next, ctl *Control, c Container, step Step) error {
	return f(ctx, next, ctl, c, step)
}

// buildChain composes middleware around step. The first middleware is the
// outermost; the requirement check always runs right before the step.
func buildChain(middleware []Middleware, step Step, ctl *Control, c Container) Next {
	next := func(ctx context.Context) error {
		if err := checkRequirements(step, c); err != nil {
			return err
		}
		return step.Run(ctx, ctl, c)
	}
	for i := len(middleware) - 1; i >= 0; i-- {
		m, inner := middleware[i], next
		next = func(ctx context.Context) error {
			return m.Handle(ctx, inner, ctl, c, step)
		}
	}
	return next
}

// ProfileStep attaches the execution time of each step to its record.
func ProfileStep() Middleware {
	return MiddlewareFunc(func(ctx context.Context, next Next, ctl *Control, _ Container, _ Step) error {
		start := time.Now()
		err := next(ctx)
		ctl.Attach(fmt.Sprintf("Step execution time: %.5fms", float64(time.Since(start).Nanoseconds())/1e6))
		return err
	})
}

// LogSteps logs the start and the outcome of every step.
func LogSteps(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return MiddlewareFunc(func(ctx context.Context, next Next, ctl *Control, _ Container, step Step) error {
		logger.DebugContext(ctx, "executing step",
			"workflow", ctl.Workflow(), "stage", ctl.Stage().String(), "step", step.Description())
		start := time.Now()
		err := next(ctx)
		logger.InfoContext(ctx, "step finished",
			"workflow", ctl.Workflow(),
			"stage", ctl.Stage().String(),
			"step", step.Description(),
			"outcome", string(OutcomeOf(err)),
			"duration", time.Since(start),
		)
		return err
	})
}

// OutcomeOf classifies the error returned by a step the way the execution
// log does, ignoring the stage.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	if sig, ok := AsSignal(err); ok {
		switch sig.Kind {
		case SignalSkipStep, SignalSkipWorkflow, SignalContinue, SignalBreak:
			return OutcomeSkipped
		}
	}
	return OutcomeFailed
}
