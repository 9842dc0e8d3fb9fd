package workflow

import (
	"context"
	"fmt"
	"slices"
)

// The builder types below only expose the stages that may follow the one
// last added, so stage order is checked at compile time:
//
//	wf := workflow.New("import").
//		Validate(checkInput, true).
//		Process(importRows).
//		OnError(notify).
//		After(cleanup).
//		Build()

// Builder starts a workflow definition.
type Builder struct{ w *Workflow }

// New starts a workflow named name.
func New(name string, opts ...Option) *Builder {
	w := &Workflow{name: name}
	for _, o := range opts {
		o(w)
	}
	return &Builder{w: w}
}

func (b *Builder) Prepare(steps ...Step) *PrepareStage {
	b.w.prepare = append(b.w.prepare, steps...)
	return &PrepareStage{w: b.w}
}

func (b *Builder) Validate(step Step, hard bool) *ValidateStage {
	return (&PrepareStage{w: b.w}).Validate(step, hard)
}

func (b *Builder) Before(steps ...Step) *BeforeStage {
	return (&PrepareStage{w: b.w}).Before(steps...)
}

func (b *Builder) Process(steps ...Step) *ProcessStage {
	return (&PrepareStage{w: b.w}).Process(steps...)
}

// PrepareStage follows Prepare.
type PrepareStage struct{ w *Workflow }

func (s *PrepareStage) Prepare(steps ...Step) *PrepareStage {
	s.w.prepare = append(s.w.prepare, steps...)
	return s
}

func (s *PrepareStage) Validate(step Step, hard bool) *ValidateStage {
	s.w.validators = append(s.w.validators, Validator{Step: step, Hard: hard})
	return &ValidateStage{w: s.w}
}

func (s *PrepareStage) Before(steps ...Step) *BeforeStage {
	return (&ValidateStage{w: s.w}).Before(steps...)
}

func (s *PrepareStage) Process(steps ...Step) *ProcessStage {
	return (&ValidateStage{w: s.w}).Process(steps...)
}

// ValidateStage follows Validate.
type ValidateStage struct{ w *Workflow }

func (s *ValidateStage) Validate(step Step, hard bool) *ValidateStage {
	s.w.validators = append(s.w.validators, Validator{Step: step, Hard: hard})
	return s
}

func (s *ValidateStage) Before(steps ...Step) *BeforeStage {
	s.w.before = append(s.w.before, steps...)
	return &BeforeStage{w: s.w}
}

func (s *ValidateStage) Process(steps ...Step) *ProcessStage {
	return (&BeforeStage{w: s.w}).Process(steps...)
}

// BeforeStage follows Before.
type BeforeStage struct{ w *Workflow }

func (s *BeforeStage) Before(steps ...Step) *BeforeStage {
	s.w.before = append(s.w.before, steps...)
	return s
}

func (s *BeforeStage) Process(steps ...Step) *ProcessStage {
	s.w.process = append(s.w.process, steps...)
	return &ProcessStage{terminal{w: s.w}}
}

// terminal is embedded by every stage after which the workflow is complete.
type terminal struct{ w *Workflow }

// Build returns a snapshot of the assembled workflow. Stage methods called
// on the builder afterwards do not reach it.
func (t terminal) Build() *Workflow { return t.w.clone() }

// Execute builds and runs the workflow.
func (t terminal) Execute(ctx context.Context, c Container, opts ...ExecuteOption) (*Result, error) {
	return t.w.Execute(ctx, c, opts...)
}

// ProcessStage follows Process.
type ProcessStage struct{ terminal }

func (s *ProcessStage) Process(steps ...Step) *ProcessStage {
	s.w.process = append(s.w.process, steps...)
	return s
}

func (s *ProcessStage) OnError(steps ...Step) *OnErrorStage {
	s.w.onError = append(s.w.onError, steps...)
	return &OnErrorStage{s.terminal}
}

func (s *ProcessStage) OnSuccess(steps ...Step) *OnSuccessStage {
	s.w.onSuccess = append(s.w.onSuccess, steps...)
	return &OnSuccessStage{s.terminal}
}

func (s *ProcessStage) After(steps ...Step) *AfterStage {
	s.w.after = append(s.w.after, steps...)
	return &AfterStage{s.terminal}
}

// OnErrorStage follows OnError.
type OnErrorStage struct{ terminal }

func (s *OnErrorStage) OnError(steps ...Step) *OnErrorStage {
	s.w.onError = append(s.w.onError, steps...)
	return s
}

func (s *OnErrorStage) OnSuccess(steps ...Step) *OnSuccessStage {
	s.w.onSuccess = append(s.w.onSuccess, steps...)
	return &OnSuccessStage{s.terminal}
}

func (s *OnErrorStage) After(steps ...Step) *AfterStage {
	s.w.after = append(s.w.after, steps...)
	return &AfterStage{s.terminal}
}

// OnSuccessStage follows OnSuccess.
type OnSuccessStage struct{ terminal }

func (s *OnSuccessStage) OnSuccess(steps ...Step) *OnSuccessStage {
	s.w.onSuccess = append(s.w.onSuccess, steps...)
	return s
}

func (s *OnSuccessStage) OnError(steps ...Step) *OnErrorStage {
	s.w.onError = append(s.w.onError, steps...)
	return &OnErrorStage{s.terminal}
}

func (s *OnSuccessStage) After(steps ...Step) *AfterStage {
	s.w.after = append(s.w.after, steps...)
	return &AfterStage{s.terminal}
}

// AfterStage follows After.
type AfterStage struct{ terminal }

func (s *AfterStage) After(steps ...Step) *AfterStage {
	s.w.after = append(s.w.after, steps...)
	return s
}

// Plan lists the steps of every stage. It is the untyped counterpart of the
// builder, used when a workflow is assembled from data.
type Plan struct {
	Prepare   []Step
	Validate  []Validator
	Before    []Step
	Process   []Step
	OnError   []Step
	OnSuccess []Step
	After     []Step
}

// Compose assembles a workflow from plan. Like the builder it requires at
// least one Process step.
func Compose(name string, plan Plan, opts ...Option) (*Workflow, error) {
	if len(plan.Process) == 0 {
		return nil, fmt.Errorf("workflow %q: process stage has no steps", name)
	}
	b := New(name, opts...)
	w := b.w
	w.prepare = slices.Clone(plan.Prepare)
	w.validators = slices.Clone(plan.Validate)
	w.before = slices.Clone(plan.Before)
	w.process = slices.Clone(plan.Process)
	w.onError = slices.Clone(plan.OnError)
	w.onSuccess = slices.Clone(plan.OnSuccess)
	w.after = slices.Clone(plan.After)
	return w, nil
}
