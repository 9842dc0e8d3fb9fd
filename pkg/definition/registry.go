package definition

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/ravi-parthasarathy/workflow/pkg/expression"
	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
)

// Factory builds the step for def. Builder gives access to the compiler
// for kinds that contain other steps or workflows.
type Factory func(def StepDef, b Builder) (workflow.Step, error)

// Kind registers a step kind.
type Kind struct {
	Name string
	// Required lists the attributes of With the kind cannot run without.
	Required []string
	// Expressions lists attributes of With holding condition expressions,
	// compiled by the linter.
	Expressions []string
	Factory     Factory
}

// Builder is the part of the compiler visible to factories.
type Builder interface {
	// Steps compiles child step definitions.
	Steps(defs []StepDef) ([]workflow.Step, error)
	// Workflow compiles the workflow referenced by a nested step, either
	// inline or through its path.
	Workflow(def StepDef) (*workflow.Workflow, error)
	// Engine is the condition language of the definition.
	Engine() expression.Engine
	// BaseDir is the directory relative paths resolve against.
	BaseDir() string
	Logger() *slog.Logger
}

// Registry maps step kinds to their factories.
type Registry struct {
	kinds map[string]Kind
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]Kind)}
}

// Register adds or replaces k.
func (r *Registry) Register(k Kind) {
	r.kinds[k.Name] = k
}

// Lookup returns the kind registered under name.
func (r *Registry) Lookup(name string) (Kind, error) {
	k, ok := r.kinds[name]
	if !ok {
		return Kind{}, fmt.Errorf("unknown step kind %q", name)
	}
	return k, nil
}

// Kinds returns the registered kind names in sorted order.
func (r *Registry) Kinds() []string {
	return slices.Sorted(maps.Keys(r.kinds))
}
