package definition

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ravi-parthasarathy/workflow/pkg/expression"
	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
)

// Compiler turns definitions into executable workflows.
type Compiler struct {
	Registry *Registry
	// BaseDir resolves relative nested paths of definitions that were not
	// loaded from a file. Defaults to the working directory.
	BaseDir string
	// Middleware supplies named middleware beyond the built-in profile and
	// log. The metrics middleware is registered here by the caller.
	Middleware map[string]workflow.Middleware
	Logger     *slog.Logger
}

// Compile lints def and compiles it, including every nested definition it
// references.
func (c *Compiler) Compile(def *Definition) (*workflow.Workflow, error) {
	if c.Registry == nil {
		return nil, fmt.Errorf("compile %q: no step registry", def.Name)
	}
	if err := LintErr(def, c.Registry); err != nil {
		return nil, err
	}
	var stack []string
	if def.Path != "" {
		stack = []string{def.Path}
	}
	return c.compile(def, c.baseDir(def), stack, nil)
}

// CompileFile loads, lints and compiles the definition at path.
func (c *Compiler) CompileFile(path string) (*workflow.Workflow, *Definition, error) {
	def, err := Load(path)
	if err != nil {
		return nil, nil, err
	}
	wf, err := c.Compile(def)
	if err != nil {
		return nil, nil, err
	}
	return wf, def, nil
}

func (c *Compiler) baseDir(def *Definition) string {
	if def.Path != "" {
		return filepath.Dir(def.Path)
	}
	if c.BaseDir != "" {
		return c.BaseDir
	}
	return "."
}

func (c *Compiler) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// compile builds a linted def within an include stack. An inline
// definition without a lang inherits the engine of its parent.
func (c *Compiler) compile(def *Definition, baseDir string, stack []string, parent expression.Engine) (*workflow.Workflow, error) {
	engine := parent
	if def.Lang != "" || engine == nil {
		e, err := expression.Lookup(def.Lang)
		if err != nil {
			return nil, fmt.Errorf("workflow %q: %w", def.Name, err)
		}
		engine = e
	}

	mws, err := c.middleware(def.Middleware)
	if err != nil {
		return nil, fmt.Errorf("workflow %q: %w", def.Name, err)
	}

	s := &scope{compiler: c, engine: engine, baseDir: baseDir, stack: stack}

	var plan workflow.Plan
	stages := []struct {
		name string
		defs []StepDef
		dst  *[]workflow.Step
	}{
		{"prepare", def.Prepare, &plan.Prepare},
		{"before", def.Before, &plan.Before},
		{"process", def.Process, &plan.Process},
		{"on_error", def.OnError, &plan.OnError},
		{"on_success", def.OnSuccess, &plan.OnSuccess},
		{"after", def.After, &plan.After},
	}
	for _, st := range stages {
		steps, err := s.Steps(st.defs)
		if err != nil {
			return nil, fmt.Errorf("workflow %q: %s: %w", def.Name, st.name, err)
		}
		*st.dst = steps
	}
	for i, v := range def.Validate {
		step, err := s.step(v)
		if err != nil {
			return nil, fmt.Errorf("workflow %q: validate[%d]: %w", def.Name, i, err)
		}
		plan.Validate = append(plan.Validate, workflow.Validator{Step: step, Hard: v.Hard})
	}

	return workflow.Compose(def.Name, plan,
		workflow.WithMiddleware(mws...),
		workflow.WithLogger(c.logger()),
	)
}

func (c *Compiler) middleware(names []string) ([]workflow.Middleware, error) {
	out := make([]workflow.Middleware, 0, len(names))
	for _, name := range names {
		if m, ok := c.Middleware[name]; ok {
			out = append(out, m)
			continue
		}
		switch name {
		case MiddlewareProfile:
			out = append(out, workflow.ProfileStep())
		case MiddlewareLog:
			out = append(out, workflow.LogSteps(c.logger()))
		default:
			return nil, fmt.Errorf("middleware %q is not available", name)
		}
	}
	return out, nil
}

// scope is the Builder handed to factories while one definition compiles.
type scope struct {
	compiler *Compiler
	engine   expression.Engine
	baseDir  string
	stack    []string
}

func (s *scope) Engine() expression.Engine { return s.engine }

func (s *scope) BaseDir() string { return s.baseDir }

func (s *scope) Logger() *slog.Logger { return s.compiler.logger() }

func (s *scope) Steps(defs []StepDef) ([]workflow.Step, error) {
	steps := make([]workflow.Step, 0, len(defs))
	for i, d := range defs {
		step, err := s.step(d)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, d.Kind, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func (s *scope) Workflow(def StepDef) (*workflow.Workflow, error) {
	if def.Workflow != nil {
		return s.compiler.compile(def.Workflow, s.baseDir, s.stack, s.engine)
	}
	if def.Path == "" {
		return nil, fmt.Errorf("nested step has neither path nor workflow")
	}

	path := def.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.baseDir, path)
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", def.Path, err)
	}
	if slices.Contains(s.stack, path) {
		chain := append(slices.Clone(s.stack), path)
		for i := range chain {
			chain[i] = filepath.Base(chain[i])
		}
		return nil, fmt.Errorf("include cycle: %s", strings.Join(chain, " -> "))
	}

	child, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := LintErr(child, s.compiler.Registry); err != nil {
		return nil, fmt.Errorf("nested %s: %w", def.Path, err)
	}
	wf, err := s.compiler.compile(child, filepath.Dir(path), append(slices.Clone(s.stack), path), nil)
	if err != nil {
		return nil, fmt.Errorf("nested %s: %w", def.Path, err)
	}
	return wf, nil
}

// step builds one step and wraps it when the definition adds a guard,
// requirements or a description.
func (s *scope) step(def StepDef) (workflow.Step, error) {
	kind, err := s.compiler.Registry.Lookup(def.Kind)
	if err != nil {
		return nil, err
	}
	step, err := kind.Factory(def, s)
	if err != nil {
		return nil, err
	}

	needsGuard := def.When != "" || len(def.Requires) > 0 ||
		(def.Description != "" && def.Description != step.Description())
	if !needsGuard {
		return step, nil
	}

	g := &guarded{
		step:        step,
		description: def.Description,
		when:        def.When,
		engine:      s.engine,
	}
	for _, r := range def.Requires {
		g.requires = append(g.requires, workflow.Requirement{Key: r.Key, Kind: workflow.Kind(r.Kind), Nullable: r.Nullable})
	}
	return g, nil
}

// guarded adds the common step fields of a definition around a step built
// by a factory.
type guarded struct {
	step        workflow.Step
	description string
	when        string
	engine      expression.Engine
	requires    []workflow.Requirement
}

func (g *guarded) Description() string {
	if g.description != "" {
		return g.description
	}
	return g.step.Description()
}

// Unwrap returns the step built by the factory.
func (g *guarded) Unwrap() workflow.Step { return g.step }

// Run evaluates the guard before the requirements, so a step whose
// condition does not hold is skipped even when its inputs are missing.
func (g *guarded) Run(ctx context.Context, ctl *workflow.Control, c workflow.Container) error {
	if g.when != "" {
		ok, err := expression.EvaluateBool(ctx, g.engine, g.when, c.Snapshot())
		if err != nil {
			return err
		}
		if !ok {
			return ctl.SkipStep("condition not met: " + g.when)
		}
	}
	for _, r := range g.requires {
		if err := r.Check(c); err != nil {
			return err
		}
	}
	if p, ok := g.step.(workflow.RequirementProvider); ok {
		for _, r := range p.Requirements() {
			if err := r.Check(c); err != nil {
				return err
			}
		}
	}
	return g.step.Run(ctx, ctl, c)
}
