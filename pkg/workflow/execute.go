package workflow

import (
	"context"
	"fmt"
)

// execute runs step through the middleware chain and logs exactly one
// record for it. The returned error is non-nil only when the outcome must
// travel further up: hard stage failures, workflow skips and loop signals
// while a loop is active.
func (s *runState) execute(ctx context.Context, step Step) error {
	err := ctx.Err()
	if err == nil {
		err = buildChain(s.middleware, step, s.control, s.container)(ctx)
	}
	if err == nil {
		s.log.record(s.stage, step.Description(), OutcomeOK, "")
		return nil
	}

	if sig, ok := AsSignal(err); ok {
		switch sig.Kind {
		case SignalSkipStep:
			s.log.record(s.stage, step.Description(), OutcomeSkipped, sig.Reason)
			return nil
		case SignalContinue, SignalBreak:
			s.log.record(s.stage, step.Description(), OutcomeSkipped, sig.Reason)
			if s.loopDepth > 0 {
				return err
			}
			return nil
		case SignalSkipWorkflow:
			s.log.record(s.stage, step.Description(), OutcomeSkipped, sig.Reason)
			return err
		}
	}

	s.log.record(s.stage, step.Description(), OutcomeFailed, err.Error())
	if s.stage.Hard() {
		return err
	}
	s.log.addWarning(s.stage, fmt.Sprintf("Step failed (%s)", step.Description()), false)
	return nil
}
