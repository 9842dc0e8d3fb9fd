// Package definition loads workflows from YAML documents and compiles them
// into executable *workflow.Workflow values.
package definition

import (
	"maps"
	"slices"
)

// Engine constructs known to the linter and compiler.
const (
	KindLoop   = "loop"
	KindNested = "nested"
)

// Middleware names accepted in a definition.
const (
	MiddlewareProfile = "profile"
	MiddlewareLog     = "log"
	MiddlewareMetrics = "metrics"
)

// Definition is the document form of a workflow.
type Definition struct {
	Name       string   `yaml:"name"`
	Schedule   string   `yaml:"schedule,omitempty"`
	Lang       string   `yaml:"lang,omitempty"`
	Middleware []string `yaml:"middleware,omitempty"`

	Prepare   []StepDef `yaml:"prepare,omitempty"`
	Validate  []StepDef `yaml:"validate,omitempty"`
	Before    []StepDef `yaml:"before,omitempty"`
	Process   []StepDef `yaml:"process,omitempty"`
	OnError   []StepDef `yaml:"on_error,omitempty"`
	OnSuccess []StepDef `yaml:"on_success,omitempty"`
	After     []StepDef `yaml:"after,omitempty"`

	// Path is the file the definition was loaded from, if any.
	Path string `yaml:"-"`
}

// StepDef describes one step. Kind selects the factory; the remaining
// fields are shared by every kind or belong to the loop and nested
// constructs.
type StepDef struct {
	Kind        string         `yaml:"kind"`
	Description string         `yaml:"description,omitempty"`
	Hard        bool           `yaml:"hard,omitempty"`
	When        string         `yaml:"when,omitempty"`
	Requires    []RequireDef   `yaml:"requires,omitempty"`
	With        map[string]any `yaml:"with,omitempty"`

	// loop
	While           string    `yaml:"while,omitempty"`
	Over            string    `yaml:"over,omitempty"`
	As              string    `yaml:"as,omitempty"`
	MaxIterations   int       `yaml:"max_iterations,omitempty"`
	ContinueOnError bool      `yaml:"continue_on_error,omitempty"`
	Steps           []StepDef `yaml:"steps,omitempty"`

	// nested
	Path     string         `yaml:"path,omitempty"`
	Workflow *Definition    `yaml:"workflow,omitempty"`
	Context  map[string]any `yaml:"context,omitempty"`
}

// RequireDef declares a context key the step depends on.
type RequireDef struct {
	Key      string `yaml:"key"`
	Kind     string `yaml:"kind,omitempty"`
	Nullable bool   `yaml:"nullable,omitempty"`
}

// Stage pairs a definition section with its YAML name.
type Stage struct {
	Name  string
	Steps []StepDef
}

// Stages returns the sections of d in execution order, empty ones included.
func (d *Definition) Stages() []Stage {
	return []Stage{
		{"prepare", d.Prepare},
		{"validate", d.Validate},
		{"before", d.Before},
		{"process", d.Process},
		{"on_error", d.OnError},
		{"on_success", d.OnSuccess},
		{"after", d.After},
	}
}

// Attr returns the named attribute from With.
func (s StepDef) Attr(name string) (any, bool) {
	v, ok := s.With[name]
	return v, ok
}

// AttrNames returns the attribute names of s in sorted order.
func (s StepDef) AttrNames() []string {
	return slices.Sorted(maps.Keys(s.With))
}
