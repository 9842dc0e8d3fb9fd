package definition

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ravi-parthasarathy/workflow/pkg/expression"
	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
)

// LintError describes a problem in a definition. Path locates the step,
// e.g. "process[1].steps[0]".
type LintError struct {
	Path    string
	Message string
}

func (e LintError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

var knownMiddleware = []string{MiddlewareProfile, MiddlewareLog, MiddlewareMetrics}

var requirementKinds = []workflow.Kind{
	workflow.KindAny, workflow.KindString, workflow.KindBool, workflow.KindInt,
	workflow.KindFloat, workflow.KindSlice, workflow.KindMap, workflow.KindScalar,
}

// Lint checks def against the kinds in reg. It reports every problem, not
// just the first, and descends into loops and inline nested workflows.
func Lint(def *Definition, reg *Registry) []LintError {
	l := &linter{reg: reg}
	l.workflow("", def, nil)
	return l.errs
}

// LintErr calls Lint and folds the problems into one error, or returns nil.
func LintErr(def *Definition, reg *Registry) error {
	errs := Lint(def, reg)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("definition validation failed:\n  %s", strings.Join(msgs, "\n  "))
}

type linter struct {
	reg  *Registry
	errs []LintError
}

func (l *linter) add(path, format string, args ...any) {
	l.errs = append(l.errs, LintError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// workflow lints def. An inline definition without a lang is checked with
// the engine of its parent.
func (l *linter) workflow(prefix string, def *Definition, parent expression.Engine) {
	at := func(s string) string {
		if prefix == "" {
			return s
		}
		if s == "" {
			return prefix
		}
		return prefix + "." + s
	}

	if def.Name == "" {
		l.add(at(""), "workflow name is required")
	}
	if len(def.Process) == 0 {
		l.add(at("process"), "process stage has no steps")
	}
	if def.Schedule != "" {
		if _, err := ParseSchedule(def.Schedule); err != nil {
			l.add(at("schedule"), "%v", err)
		}
	}
	for _, m := range def.Middleware {
		if !slices.Contains(knownMiddleware, m) {
			l.add(at("middleware"), "unknown middleware %q", m)
		}
	}

	engine := parent
	switch def.Lang {
	case "":
		if engine == nil {
			engine, _ = expression.Lookup("")
		}
	case expression.LangExpr, expression.LangCEL:
		e, err := expression.Lookup(def.Lang)
		if err != nil {
			l.add(at("lang"), "%v", err)
		} else {
			engine = e
		}
	default:
		l.add(at("lang"), "unsupported condition language %q", def.Lang)
	}

	for _, stage := range def.Stages() {
		for i, s := range stage.Steps {
			l.step(at(fmt.Sprintf("%s[%d]", stage.Name, i)), stage.Name == "validate", s, engine)
		}
	}
}

func (l *linter) step(path string, validate bool, s StepDef, engine expression.Engine) {
	if s.Kind == "" {
		l.add(path, "step kind is required")
		return
	}
	kind, err := l.reg.Lookup(s.Kind)
	if err != nil {
		l.add(path, "%v", err)
		return
	}

	if s.Hard && !validate {
		l.add(path, "'hard' is only allowed on validate steps")
	}
	l.condition(path, "when", s.When, engine)
	for _, r := range s.Requires {
		if r.Key == "" {
			l.add(path, "requirement without key")
		}
		if !slices.Contains(requirementKinds, workflow.Kind(r.Kind)) {
			l.add(path, "unknown requirement kind %q", r.Kind)
		}
	}

	for _, attr := range kind.Required {
		if v, ok := s.With[attr]; !ok || v == nil || v == "" {
			l.add(path, "missing required attribute %q for step kind %q", attr, s.Kind)
		}
	}
	for _, attr := range kind.Expressions {
		if v, ok := s.With[attr].(string); ok && v != "" {
			l.condition(path, attr, v, engine)
		}
	}

	l.loop(path, s, engine)
	l.nested(path, s, engine)
}

func (l *linter) loop(path string, s StepDef, engine expression.Engine) {
	loopFields := s.While != "" || s.Over != "" || s.As != "" || s.MaxIterations != 0 || s.ContinueOnError || len(s.Steps) > 0
	if s.Kind != KindLoop {
		if loopFields {
			l.add(path, "loop fields are only allowed on %q steps", KindLoop)
		}
		return
	}

	switch {
	case s.While == "" && s.Over == "":
		l.add(path, "loop needs 'while' or 'over'")
	case s.While != "" && s.Over != "":
		l.add(path, "loop cannot have both 'while' and 'over'")
	}
	if s.As != "" && s.Over == "" {
		l.add(path, "'as' requires 'over'")
	}
	if s.MaxIterations < 0 {
		l.add(path, "max_iterations must be positive")
	}
	l.condition(path, "while", s.While, engine)
	if len(s.Steps) == 0 {
		l.add(path, "loop has no steps")
	}
	for i, child := range s.Steps {
		l.step(fmt.Sprintf("%s.steps[%d]", path, i), false, child, engine)
	}
}

func (l *linter) nested(path string, s StepDef, engine expression.Engine) {
	nestedFields := s.Path != "" || s.Workflow != nil || len(s.Context) > 0
	if s.Kind != KindNested {
		if nestedFields {
			l.add(path, "nested fields are only allowed on %q steps", KindNested)
		}
		return
	}

	switch {
	case s.Path == "" && s.Workflow == nil:
		l.add(path, "nested step needs 'path' or 'workflow'")
	case s.Path != "" && s.Workflow != nil:
		l.add(path, "nested step cannot have both 'path' and 'workflow'")
	case s.Workflow != nil:
		l.workflow(path+".workflow", s.Workflow, engine)
	}
}

func (l *linter) condition(path, field, expr string, engine expression.Engine) {
	if expr == "" || engine == nil {
		return
	}
	if err := engine.Compile(expr); err != nil {
		l.add(path, "invalid %s condition: %v", field, err)
	}
}
