package workflow

import "context"

// Step is a named unit of work executed within a stage.
//
// Run reports its outcome through the returned error: nil for success, a
// *Signal obtained from ctl to skip or fail, or any other error which is
// treated as a failure of the step.
type Step interface {
	Description() string
	Run(ctx context.Context, ctl *Control, c Container) error
}

// RunFunc is the body of a FuncStep.
type RunFunc func(ctx context.Context, ctl *Control, c Container) error

// FuncStep adapts a plain function to the Step interface.
type FuncStep struct {
	description string
	fn          RunFunc
	requires    []Requirement
}

// Func returns a step running fn.
func Func(description string, fn RunFunc) *FuncStep {
	return &FuncStep{description: description, fn: fn}
}

// Requires declares container values that must be present before fn runs.
func (s *FuncStep) Requires(reqs ...Requirement) *FuncStep {
	s.requires = append(s.requires, reqs...)
	return s
}

func (s *FuncStep) Description() string { return s.description }

func (s *FuncStep) Requirements() []Requirement { return s.requires }

func (s *FuncStep) Run(ctx context.Context, ctl *Control, c Container) error {
	return s.fn(ctx, ctl, c)
}

// Validator is a step registered for the Validate stage. Hard validators
// run first and abort the run on failure; failures of soft validators are
// collected and reported together.
type Validator struct {
	Step Step
	Hard bool
}
