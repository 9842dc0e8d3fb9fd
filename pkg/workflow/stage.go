package workflow

// Stage identifies a phase of a workflow run. The ordinal defines execution
// order and decides whether a failing step aborts the run.
type Stage int

const (
	StagePrepare Stage = iota
	StageValidate
	StageBefore
	StageProcess
	StageOnError
	StageOnSuccess
	StageAfter
	StageSummary
)

var stageNames = [...]string{
	StagePrepare:   "Prepare",
	StageValidate:  "Validate",
	StageBefore:    "Before",
	StageProcess:   "Process",
	StageOnError:   "On Error",
	StageOnSuccess: "On Success",
	StageAfter:     "After",
	StageSummary:   "Summary",
}

// String returns the display name used in execution logs.
func (s Stage) String() string {
	if s < StagePrepare || s > StageSummary {
		return "Unknown"
	}
	return stageNames[s]
}

// Hard reports whether a failure in this stage aborts the whole run.
// Failures in later (soft) stages are recorded as warnings instead.
func (s Stage) Hard() bool {
	return s <= StageProcess
}

// executionOrder lists the stages holding user steps, in the order the
// driver visits them. Summary is entered by the driver itself.
var executionOrder = []Stage{
	StagePrepare,
	StageValidate,
	StageBefore,
	StageProcess,
	StageOnError,
	StageOnSuccess,
	StageAfter,
}
