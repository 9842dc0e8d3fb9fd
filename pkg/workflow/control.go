package workflow

import (
	"fmt"
	"log/slog"
	"reflect"
)

// Control is the handle a step uses to signal the engine. The signalling
// methods return the signal as an error which the step returns:
//
//	if len(items) == 0 {
//		return ctl.SkipStep("nothing to import")
//	}
type Control struct {
	run *runState
}

// SkipStep marks the current step as skipped. It never fails the run.
func (c *Control) SkipStep(reason string) error {
	return newSignal(SignalSkipStep, reason)
}

// FailStep marks the current step as failed. The run aborts if the current
// stage is hard; otherwise a warning is recorded.
func (c *Control) FailStep(reason string) error {
	return newSignal(SignalFailStep, reason)
}

// SkipWorkflow ends the run early. The result counts as successful.
func (c *Control) SkipWorkflow(reason string) error {
	return newSignal(SignalSkipWorkflow, reason)
}

// FailWorkflow fails the current step and the run.
func (c *Control) FailWorkflow(reason string) error {
	return newSignal(SignalFailWorkflow, reason)
}

// ContinueLoop skips the rest of the current loop iteration. Outside a loop
// it behaves like SkipStep.
func (c *Control) ContinueLoop(reason string) error {
	if !c.InLoop() {
		return c.SkipStep(reason)
	}
	return newSignal(SignalContinue, reason)
}

// BreakLoop stops the enclosing loop. Outside a loop it behaves like SkipStep.
func (c *Control) BreakLoop(reason string) error {
	if !c.InLoop() {
		return c.SkipStep(reason)
	}
	return newSignal(SignalBreak, reason)
}

// Attach adds a diagnostic line to the record of the current step.
func (c *Control) Attach(text string) {
	c.run.log.attach(Info{Text: text})
}

// Warn records a warning for the current stage. A non-nil cause is
// appended to the message with its type.
func (c *Control) Warn(message string, cause error) {
	if cause != nil {
		message = fmt.Sprintf("%s (%s: %s)", message, typeName(cause), cause.Error())
	}
	c.run.log.addWarning(c.run.stage, message, true)
}

// Stage returns the stage currently executing.
func (c *Control) Stage() Stage { return c.run.stage }

// Workflow returns the name of the running workflow.
func (c *Control) Workflow() string { return c.run.name }

// InLoop reports whether a loop is currently executing.
func (c *Control) InLoop() bool { return c.run.loopDepth > 0 }

// Logger returns the logger of the run.
func (c *Control) Logger() *slog.Logger { return c.run.logger }

func (c *Control) attachInfo(info Info) {
	c.run.log.attach(info)
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}
