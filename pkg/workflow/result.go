package workflow

import (
	"time"

	"github.com/google/uuid"
)

// Result is the immutable outcome of a finished run.
type Result struct {
	name      string
	runID     uuid.UUID
	success   bool
	skipped   bool
	err       error
	log       *ExecutionLog
	container Container
	lastStep  Step
}

// Name returns the workflow name.
func (r *Result) Name() string { return r.name }

// RunID identifies this execution.
func (r *Result) RunID() uuid.UUID { return r.runID }

// Success is true for completed and for skipped runs.
func (r *Result) Success() bool { return r.success }

// Skipped is true when a step skipped the whole workflow.
func (r *Result) Skipped() bool { return r.skipped }

// Err returns the error that ended the run, or nil.
func (r *Result) Err() error { return r.err }

func (r *Result) Log() *ExecutionLog { return r.log }

// Container returns the store the run worked on.
func (r *Result) Container() Container { return r.container }

// LastStep returns the last top-level step the driver started.
func (r *Result) LastStep() Step { return r.lastStep }

// Duration returns the wall time of the run.
func (r *Result) Duration() time.Duration { return r.log.Duration() }

func (r *Result) HasWarnings() bool { return r.log.HasWarnings() }

func (r *Result) Warnings() []StageWarnings { return r.log.Warnings() }

// Debug renders the log with the text formatter.
func (r *Result) Debug() string {
	return Render[string](r, TextFormatter{})
}

// Render formats the execution log of r with f.
func Render[T any](r *Result, f Formatter[T]) T {
	return f.Format(r.name, r.log.Stages())
}
