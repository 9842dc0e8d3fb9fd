package workflow

import (
	"context"
	"errors"
	"fmt"
)

// LoopControl decides before every iteration whether a loop goes on.
// ShouldContinue may return a signal from ctl: skipping the step ends the
// loop as skipped, ContinueLoop and BreakLoop act as if a child raised them.
type LoopControl interface {
	Description() string
	ShouldContinue(ctx context.Context, iteration int, ctl *Control, c Container) (bool, error)
}

// LoopControlFunc adapts a function to the LoopControl interface.
type LoopControlFunc struct {
	description string
	fn          func(ctx context.Context, iteration int, ctl *Control, c Container) (bool, error)
}

// LoopWhile returns a LoopControl backed by fn.
func LoopWhile(description string, fn func(ctx context.Context, iteration int, ctl *Control, c Container) (bool, error)) *LoopControlFunc {
	return &LoopControlFunc{description: description, fn: fn}
}

func (l *LoopControlFunc) Description() string { return l.description }

func (l *LoopControlFunc) ShouldContinue(ctx context.Context, iteration int, ctl *Control, c Container) (bool, error) {
	return l.fn(ctx, iteration, ctl, c)
}

// Loop is a step that runs its children repeatedly under a LoopControl.
type Loop struct {
	control         LoopControl
	steps           []Step
	continueOnError bool
}

// NewLoop creates a loop over steps.
func NewLoop(control LoopControl, steps ...Step) *Loop {
	return &Loop{control: control, steps: steps}
}

// Add appends steps to the loop body.
func (l *Loop) Add(steps ...Step) *Loop {
	l.steps = append(l.steps, steps...)
	return l
}

// ContinueOnError makes failing iterations produce a warning instead of
// failing the loop. Workflow signals always end the loop.
func (l *Loop) ContinueOnError(enabled bool) *Loop {
	l.continueOnError = enabled
	return l
}

func (l *Loop) Description() string { return l.control.Description() }

// Steps returns the loop body.
func (l *Loop) Steps() []Step { return l.steps }

func (l *Loop) Run(ctx context.Context, ctl *Control, c Container) error {
	run := ctl.run
	run.loopDepth++
	defer func() { run.loopDepth-- }()

	ctl.attachInfo(Info{Kind: InfoLoopStart, Text: l.Description()})
	run.log.record(run.stage, "Start Loop", OutcomeOK, "")

	iteration := 0
	for {
		proceed, err := l.control.ShouldContinue(ctx, iteration, ctl, c)
		if err == nil && !proceed {
			break
		}
		if err == nil {
			err = l.iterate(ctx, run)
		}
		iteration++
		label := fmt.Sprintf("Loop iteration #%d", iteration)

		outcome, reason := OutcomeOK, ""
		if err != nil {
			sig, _ := AsSignal(err)
			switch {
			case sig != nil && sig.Kind == SignalContinue:
				outcome, reason = OutcomeSkipped, sig.Reason
			case sig != nil && sig.Kind == SignalBreak:
				run.log.record(run.stage, label, OutcomeSkipped, sig.Reason)
				ctl.Attach(fmt.Sprintf("Loop break in iteration #%d", iteration))
				ctl.attachInfo(Info{Kind: InfoLoopEnd, Iteration: iteration})
				return nil
			case !l.continueOnError || endsLoop(sig) || stopped(err):
				ctl.attachInfo(Info{Kind: InfoLoopIteration, Iteration: iteration})
				ctl.attachInfo(Info{Kind: InfoLoopEnd, Iteration: iteration})
				var stop *loopStop
				if errors.As(err, &stop) {
					return stop.err
				}
				return err
			default:
				ctl.Warn(fmt.Sprintf("Loop iteration #%d failed. Continued execution.", iteration), nil)
				outcome, reason = OutcomeFailed, err.Error()
			}
		}

		ctl.attachInfo(Info{Kind: InfoLoopIteration, Iteration: iteration})
		run.log.record(run.stage, label, outcome, reason)
	}

	ctl.attachInfo(Info{Kind: InfoLoopEnd, Iteration: iteration})
	return nil
}

func (l *Loop) iterate(ctx context.Context, run *runState) error {
	for _, step := range l.steps {
		if err := run.execute(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

// StopLoop marks err as ending the loop even when failed iterations are
// tolerated. Loop controls return it for failures that would repeat on
// every call, such as a condition that cannot be evaluated. The loop step
// fails with err itself.
func StopLoop(err error) error {
	if err == nil {
		return nil
	}
	return &loopStop{err: err}
}

type loopStop struct{ err error }

func (e *loopStop) Error() string { return e.err.Error() }

func (e *loopStop) Unwrap() error { return e.err }

func stopped(err error) bool {
	var stop *loopStop
	return errors.As(err, &stop)
}

// endsLoop reports signals that end a loop even with continueOnError set.
// A step skip can only surface here from the LoopControl itself.
func endsLoop(sig *Signal) bool {
	if sig == nil {
		return false
	}
	switch sig.Kind {
	case SignalSkipWorkflow, SignalFailWorkflow, SignalSkipStep:
		return true
	}
	return false
}
