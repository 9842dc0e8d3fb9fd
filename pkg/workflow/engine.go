package workflow

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/google/uuid"
)

const summaryDescription = "Workflow execution"

// Workflow is an immutable, executable sequence of stages. Build one with New.
type Workflow struct {
	name       string
	prepare    []Step
	validators []Validator
	before     []Step
	process    []Step
	onError    []Step
	onSuccess  []Step
	after      []Step
	middleware []Middleware
	logger     *slog.Logger
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithMiddleware appends middleware. The first one registered is the
// outermost around every step.
func WithMiddleware(m ...Middleware) Option {
	return func(w *Workflow) { w.middleware = append(w.middleware, m...) }
}

// WithLogger sets the logger used for run diagnostics. Defaults to
// slog.Default() at execution time.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) { w.logger = l }
}

func (w *Workflow) Name() string { return w.name }

// Steps returns the steps registered for stage in execution order. For the
// Validate stage the registration order is returned; see Validators.
func (w *Workflow) Steps(stage Stage) []Step {
	switch stage {
	case StagePrepare:
		return slices.Clone(w.prepare)
	case StageValidate:
		steps := make([]Step, len(w.validators))
		for i, v := range w.validators {
			steps[i] = v.Step
		}
		return steps
	case StageBefore:
		return slices.Clone(w.before)
	case StageProcess:
		return slices.Clone(w.process)
	case StageOnError:
		return slices.Clone(w.onError)
	case StageOnSuccess:
		return slices.Clone(w.onSuccess)
	case StageAfter:
		return slices.Clone(w.after)
	}
	return nil
}

func (w *Workflow) clone() *Workflow {
	c := *w
	c.prepare = slices.Clone(w.prepare)
	c.validators = slices.Clone(w.validators)
	c.before = slices.Clone(w.before)
	c.process = slices.Clone(w.process)
	c.onError = slices.Clone(w.onError)
	c.onSuccess = slices.Clone(w.onSuccess)
	c.after = slices.Clone(w.after)
	c.middleware = slices.Clone(w.middleware)
	return &c
}

// Validators returns the validators in registration order.
func (w *Workflow) Validators() []Validator { return slices.Clone(w.validators) }

// Stages returns the stages that hold at least one step, in execution order.
func (w *Workflow) Stages() []Stage {
	var out []Stage
	for _, s := range executionOrder {
		if len(w.Steps(s)) > 0 {
			out = append(out, s)
		}
	}
	return out
}

type executeConfig struct {
	throwOnFailure bool
}

// ExecuteOption configures a single execution.
type ExecuteOption func(*executeConfig)

// ThrowOnFailure selects whether a failed run is reported as an *Error
// (the default) or only through Result.Success and Result.Err.
func ThrowOnFailure(throw bool) ExecuteOption {
	return func(c *executeConfig) { c.throwOnFailure = throw }
}

// Execute runs the workflow against c. A nil c starts from an empty Store.
// The returned Result is never nil.
func (w *Workflow) Execute(ctx context.Context, c Container, opts ...ExecuteOption) (*Result, error) {
	cfg := executeConfig{throwOnFailure: true}
	for _, o := range opts {
		o(&cfg)
	}
	if c == nil {
		c = NewStore()
	}

	run := newRunState(w, c)
	run.logger.Debug("executing workflow", "workflow", w.name, "run_id", run.id)

	run.log.startTiming()
	err := w.run(ctx, run)
	run.log.stopTiming()

	res := run.finish(err)
	if !res.success && cfg.throwOnFailure {
		return res, &Error{Name: w.name, Result: res, Err: err}
	}
	return res, nil
}

// run drives the stages. Hard stage failures return immediately; a Process
// failure is deferred until OnError and After have run.
func (w *Workflow) run(ctx context.Context, run *runState) error {
	if err := run.runStage(ctx, StagePrepare, w.prepare); err != nil {
		return err
	}
	if err := run.validate(ctx, w.validators); err != nil {
		return err
	}
	if err := run.runStage(ctx, StageBefore, w.before); err != nil {
		return err
	}
	if err := run.runStage(ctx, StageProcess, w.process); err != nil {
		if IsSignal(err, SignalSkipWorkflow) {
			return err
		}
		run.processErr = err
	}

	stage, steps := StageOnSuccess, w.onSuccess
	if run.processErr != nil {
		stage, steps = StageOnError, w.onError
	}
	if err := run.runStage(ctx, stage, steps); err != nil {
		return err
	}
	if err := run.runStage(ctx, StageAfter, w.after); err != nil {
		return err
	}
	return run.processErr
}

func (s *runState) runStage(ctx context.Context, stage Stage, steps []Step) error {
	s.stage = stage
	for _, step := range steps {
		s.current = step
		if err := s.execute(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

// validate runs hard validators before soft ones, keeping registration
// order within each group.
func (s *runState) validate(ctx context.Context, validators []Validator) error {
	s.stage = StageValidate

	ordered := slices.Clone(validators)
	slices.SortStableFunc(ordered, func(a, b Validator) int {
		switch {
		case a.Hard == b.Hard:
			return 0
		case a.Hard:
			return -1
		default:
			return 1
		}
	})

	var errs []error
	for _, v := range ordered {
		s.current = v.Step
		err := s.execute(ctx, v.Step)
		if err == nil {
			continue
		}
		if v.Hard || IsSignal(err, SignalSkipWorkflow) {
			return err
		}
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// finish writes the Summary record and freezes the run into a Result.
func (s *runState) finish(err error) *Result {
	s.stage = StageSummary
	res := &Result{
		name:      s.name,
		runID:     s.id,
		log:       s.log,
		container: s.container,
		lastStep:  s.current,
	}

	switch {
	case err == nil:
		s.log.record(StageSummary, summaryDescription, OutcomeOK, "")
		res.success = true
	case IsSignal(err, SignalSkipWorkflow):
		sig, _ := AsSignal(err)
		s.log.record(StageSummary, summaryDescription, OutcomeSkipped, sig.Reason)
		res.success, res.skipped = true, true
	default:
		s.log.record(StageSummary, summaryDescription, OutcomeFailed, err.Error())
		res.err = err
	}

	s.report(res)
	return res
}

func (s *runState) report(res *Result) {
	attrs := []any{"workflow", s.name, "run_id", s.id}
	var verr *ValidationError
	switch {
	case !res.success && !errors.As(res.err, &verr):
		s.logger.Error("workflow failed", append(attrs, "error", res.err)...)
	case res.HasWarnings():
		s.logger.Warn("workflow finished with warnings", append(attrs, "warnings", s.log.WarningCount())...)
	default:
		s.logger.Info("workflow finished", append(attrs, "success", res.success, "skipped", res.skipped)...)
	}
}

// runState is the mutable state of one execution. Loops and nested
// workflows reach it through the Control handed to their Run method.
type runState struct {
	name       string
	id         uuid.UUID
	stage      Stage
	processErr error
	loopDepth  int
	current    Step
	middleware []Middleware
	container  Container
	log        *ExecutionLog
	control    *Control
	logger     *slog.Logger
}

func newRunState(w *Workflow, c Container) *runState {
	logger := w.logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &runState{
		name:       w.name,
		id:         uuid.New(),
		middleware: w.middleware,
		container:  c,
		log:        newExecutionLog(),
		logger:     logger,
	}
	s.control = &Control{run: s}
	return s
}
