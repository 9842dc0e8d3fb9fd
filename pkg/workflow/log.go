package workflow

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Outcome is the final state of a logged step.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// InfoKind distinguishes plain diagnostics from the structured markers
// emitted by loops and nested workflows.
type InfoKind int

const (
	InfoText InfoKind = iota
	InfoLoopStart
	InfoLoopIteration
	InfoLoopEnd
	InfoNested
)

// Info is a diagnostic attached to a step record.
type Info struct {
	Kind InfoKind
	Text string
	// Iteration holds the iteration number for InfoLoopIteration and the
	// total iteration count for InfoLoopEnd.
	Iteration int
	// Nested is set for InfoNested.
	Nested *Result
}

func (i Info) String() string {
	switch i.Kind {
	case InfoLoopEnd:
		return loopFinished(i.Iteration)
	case InfoNested:
		if i.Nested != nil {
			return fmt.Sprintf("Nested workflow '%s'", i.Nested.Name())
		}
	}
	return i.Text
}

// StepRecord is the log entry written for one step invocation.
type StepRecord struct {
	Stage       Stage
	Description string
	Outcome     Outcome
	Reason      string
	Info        []Info
	Warnings    int
}

// StageRecords groups the records of a single stage in execution order.
type StageRecords struct {
	Stage   Stage
	Records []StepRecord
}

// StageWarnings groups the warnings raised within a single stage.
type StageWarnings struct {
	Stage    Stage
	Messages []string
}

// ExecutionLog is the append-only record of a run.
type ExecutionLog struct {
	stages   []StageRecords
	warnings []StageWarnings

	pending      []Info
	stepWarnings int

	started time.Time
	elapsed time.Duration
	now     func() time.Time
}

func newExecutionLog() *ExecutionLog {
	return &ExecutionLog{now: time.Now}
}

// Stages returns the logged records grouped by stage, in execution order.
func (l *ExecutionLog) Stages() []StageRecords {
	out := make([]StageRecords, len(l.stages))
	for i, s := range l.stages {
		out[i] = StageRecords{Stage: s.Stage, Records: slices.Clone(s.Records)}
	}
	return out
}

// Warnings returns the warnings grouped by the stage they were raised in.
func (l *ExecutionLog) Warnings() []StageWarnings {
	out := make([]StageWarnings, len(l.warnings))
	for i, w := range l.warnings {
		out[i] = StageWarnings{Stage: w.Stage, Messages: slices.Clone(w.Messages)}
	}
	return out
}

// WarningCount returns the total number of warnings over all stages.
func (l *ExecutionLog) WarningCount() int {
	n := 0
	for _, w := range l.warnings {
		n += len(w.Messages)
	}
	return n
}

func (l *ExecutionLog) HasWarnings() bool {
	return len(l.warnings) > 0
}

// Duration returns the wall time of the run.
func (l *ExecutionLog) Duration() time.Duration { return l.elapsed }

// record appends a step record and moves the pending diagnostics and the
// step warning counter into it.
func (l *ExecutionLog) record(stage Stage, description string, outcome Outcome, reason string) {
	rec := StepRecord{
		Stage:       stage,
		Description: description,
		Outcome:     outcome,
		Reason:      reason,
		Info:        l.pending,
		Warnings:    l.stepWarnings,
	}
	l.pending = nil
	l.stepWarnings = 0

	if n := len(l.stages); n > 0 && l.stages[n-1].Stage == stage {
		l.stages[n-1].Records = append(l.stages[n-1].Records, rec)
		return
	}
	l.stages = append(l.stages, StageRecords{Stage: stage, Records: []StepRecord{rec}})
}

func (l *ExecutionLog) attach(info Info) {
	l.pending = append(l.pending, info)
}

// addWarning stores message under stage. Warnings raised by the engine on
// behalf of a failed step do not count towards the step's own warnings.
func (l *ExecutionLog) addWarning(stage Stage, message string, countForStep bool) {
	if countForStep {
		l.stepWarnings++
	}
	for i := range l.warnings {
		if l.warnings[i].Stage == stage {
			l.warnings[i].Messages = append(l.warnings[i].Messages, message)
			return
		}
	}
	l.warnings = append(l.warnings, StageWarnings{Stage: stage, Messages: []string{message}})
	slices.SortStableFunc(l.warnings, func(a, b StageWarnings) int { return int(a.Stage) - int(b.Stage) })
}

func (l *ExecutionLog) startTiming() {
	l.started = l.now()
}

// stopTiming attaches the elapsed time and the warning summary to the next
// record, which is the Summary record of the run.
func (l *ExecutionLog) stopTiming() {
	l.elapsed = l.now().Sub(l.started)
	l.attach(Info{Text: fmt.Sprintf("Execution time: %.5fms", float64(l.elapsed.Nanoseconds())/1e6)})

	if !l.HasWarnings() {
		return
	}
	count := l.WarningCount()
	var b strings.Builder
	fmt.Fprintf(&b, "Got %d warning%s during the execution:", count, pluralS(count))
	for _, w := range l.warnings {
		for _, msg := range w.Messages {
			fmt.Fprintf(&b, "\n        %s: %s", w.Stage, msg)
		}
	}
	l.attach(Info{Text: b.String()})
}

func pluralS(n int) string {
	if n > 1 {
		return "s"
	}
	return ""
}

func loopFinished(iterations int) string {
	suffix := "s"
	if iterations == 1 {
		suffix = ""
	}
	return fmt.Sprintf("Loop finished after %d iteration%s", iterations, suffix)
}
