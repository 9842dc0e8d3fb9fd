package definition

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func findRecord(res *workflow.Result, stage workflow.Stage, description string) (workflow.StepRecord, bool) {
	for _, s := range res.Log().Stages() {
		if s.Stage != stage {
			continue
		}
		for _, r := range s.Records {
			if r.Description == description {
				return r, true
			}
		}
	}
	return workflow.StepRecord{}, false
}

// ─── Compile ────────────────────────────────────────────────────────────────

func TestCompile_Stages(t *testing.T) {
	t.Parallel()
	def := mustParse(t, `
name: staged
prepare:   [{kind: record, with: {key: prepare}}]
validate:
  - {kind: record, with: {key: soft}}
  - {kind: record, hard: true, with: {key: hard}}
before:    [{kind: record, with: {key: before}}]
process:   [{kind: record, with: {key: process}}]
on_error:  [{kind: record, with: {key: on_error}}]
on_success: [{kind: record, with: {key: on_success}}]
after:     [{kind: record, with: {key: after}}]
`)
	wf, err := (&Compiler{Registry: testRegistry()}).Compile(def)
	require.NoError(t, err)
	assert.Equal(t, "staged", wf.Name())

	validators := wf.Validators()
	require.Len(t, validators, 2)
	assert.False(t, validators[0].Hard)
	assert.True(t, validators[1].Hard)

	res := run(t, wf, nil)
	require.True(t, res.Success())
	snap := res.Container().Snapshot()
	assert.Equal(t, workflow.StagePrepare.String(), snap["prepare"])
	assert.Equal(t, workflow.StageValidate.String(), snap["hard"])
	assert.Equal(t, workflow.StageBefore.String(), snap["before"])
	assert.Equal(t, workflow.StageProcess.String(), snap["process"])
	assert.Equal(t, workflow.StageOnSuccess.String(), snap["on_success"])
	assert.Equal(t, workflow.StageAfter.String(), snap["after"])
	assert.NotContains(t, snap, "on_error")
}

func TestCompile_DescriptionOverride(t *testing.T) {
	t.Parallel()
	def := mustParse(t, `
name: described
process:
  - {kind: fail, description: "always fails", with: {reason: nope}}
  - {kind: record, with: {key: plain}}
`)
	wf, err := (&Compiler{Registry: testRegistry()}).Compile(def)
	require.NoError(t, err)

	steps := wf.Steps(workflow.StageProcess)
	assert.Equal(t, "always fails", steps[0].Description())
	assert.Equal(t, "record plain", steps[1].Description())

	res := run(t, wf, nil)
	assert.False(t, res.Success())
	rec, ok := findRecord(res, workflow.StageProcess, "always fails")
	require.True(t, ok)
	assert.Equal(t, workflow.OutcomeFailed, rec.Outcome)
	assert.Equal(t, "nope", rec.Reason)
}

func TestCompile_WhenGuard(t *testing.T) {
	t.Parallel()
	def := mustParse(t, `
name: guarded
process:
  - {kind: record, description: big, when: "n > 10", with: {key: big}}
  - {kind: record, description: small, when: "n <= 10", with: {key: small}}
`)
	wf, err := (&Compiler{Registry: testRegistry()}).Compile(def)
	require.NoError(t, err)

	res := run(t, wf, map[string]any{"n": 3})
	require.True(t, res.Success())
	assert.False(t, res.Container().Has("big"))
	assert.True(t, res.Container().Has("small"))

	rec, ok := findRecord(res, workflow.StageProcess, "big")
	require.True(t, ok)
	assert.Equal(t, workflow.OutcomeSkipped, rec.Outcome)
	assert.Equal(t, "condition not met: n > 10", rec.Reason)
}

func TestCompile_Requirements(t *testing.T) {
	t.Parallel()
	def := mustParse(t, `
name: requires
process:
  - kind: record
    when: "enabled"
    requires: [{key: count, kind: int}]
    with: {key: done}
`)
	wf, err := (&Compiler{Registry: testRegistry()}).Compile(def)
	require.NoError(t, err)

	res := run(t, wf, map[string]any{"enabled": true})
	assert.False(t, res.Success())
	assert.Contains(t, res.Err().Error(), "Missing 'count' in container")

	res = run(t, wf, map[string]any{"enabled": true, "count": "three"})
	assert.False(t, res.Success())
	assert.Contains(t, res.Err().Error(), "Expected int, got string")

	res = run(t, wf, map[string]any{"enabled": true, "count": 3})
	assert.True(t, res.Success())
	assert.True(t, res.Container().Has("done"))

	// the guard runs first, so a disabled step does not need its inputs
	res = run(t, wf, map[string]any{"enabled": false})
	assert.True(t, res.Success())
	assert.False(t, res.Container().Has("done"))
}

func TestCompile_Loop(t *testing.T) {
	t.Parallel()
	def := mustParse(t, `
name: looping
process:
  - kind: loop
    while: "true"
    max_iterations: 2
    steps:
      - {kind: record, with: {key: inside}}
`)
	wf, err := (&Compiler{Registry: testRegistry()}).Compile(def)
	require.NoError(t, err)

	loop, ok := wf.Steps(workflow.StageProcess)[0].(*workflow.Loop)
	require.True(t, ok)
	require.Len(t, loop.Steps(), 1)
	assert.Equal(t, "record inside", loop.Steps()[0].Description())

	res := run(t, wf, nil)
	require.True(t, res.Success())
	assert.Contains(t, res.Debug(), "Loop finished after 2 iterations")
}

// ─── Middleware ─────────────────────────────────────────────────────────────

func TestCompile_Middleware(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	counting := workflow.MiddlewareFunc(func(ctx context.Context, next workflow.Next, _ *workflow.Control, _ workflow.Container, _ workflow.Step) error {
		calls.Add(1)
		return next(ctx)
	})

	def := mustParse(t, `
name: observed
middleware: [profile, metrics]
process:
  - {kind: record, with: {key: a}}
  - {kind: record, with: {key: b}}
`)
	c := &Compiler{Registry: testRegistry(), Middleware: map[string]workflow.Middleware{MiddlewareMetrics: counting}}
	wf, err := c.Compile(def)
	require.NoError(t, err)

	res := run(t, wf, nil)
	require.True(t, res.Success())
	assert.Equal(t, int32(2), calls.Load())
	assert.Contains(t, res.Debug(), "Step execution time")
}

func TestCompile_MiddlewareNotAvailable(t *testing.T) {
	t.Parallel()
	def := mustParse(t, `
name: observed
middleware: [metrics]
process: [{kind: record, with: {key: a}}]
`)
	_, err := (&Compiler{Registry: testRegistry()}).Compile(def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `middleware "metrics" is not available`)
}

// ─── Errors ─────────────────────────────────────────────────────────────────

func TestCompile_LintFailure(t *testing.T) {
	t.Parallel()
	_, err := (&Compiler{Registry: testRegistry()}).Compile(&Definition{Name: "x", Process: []StepDef{{Kind: "teleport"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "definition validation failed")
}

func TestCompile_NoRegistry(t *testing.T) {
	t.Parallel()
	_, err := (&Compiler{}).Compile(&Definition{Name: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no step registry")
}

// ─── Nested ─────────────────────────────────────────────────────────────────

func TestCompile_NestedInline(t *testing.T) {
	t.Parallel()
	def := mustParse(t, `
name: parent
lang: cel
process:
  - kind: nested
    workflow:
      name: child
      process:
        - {kind: check, with: {expr: "vars.ready == true"}}
        - {kind: record, with: {key: child_ran}}
`)
	wf, err := (&Compiler{Registry: testRegistry()}).Compile(def)
	require.NoError(t, err)

	res := run(t, wf, map[string]any{"ready": true})
	require.True(t, res.Success(), res.Debug())
	assert.True(t, res.Container().Has("child_ran"))

	res = run(t, wf, map[string]any{"ready": false})
	assert.False(t, res.Success())
}

func TestCompileFile_NestedPathRelativeToFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "parent.yaml"), `
name: parent
process:
  - {kind: nested, path: parts/child.yaml}
`)
	writeFile(t, filepath.Join(dir, "parts", "child.yaml"), `
name: child
process:
  - {kind: nested, path: grandchild.yaml}
`)
	writeFile(t, filepath.Join(dir, "parts", "grandchild.yaml"), `
name: grandchild
process:
  - {kind: record, with: {key: deepest}}
`)

	wf, def, err := (&Compiler{Registry: testRegistry()}).CompileFile(filepath.Join(dir, "parent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "parent", def.Name)

	res := run(t, wf, nil)
	require.True(t, res.Success(), res.Debug())
	assert.Equal(t, workflow.StageProcess.String(), res.Container().Snapshot()["deepest"])
}

func TestCompile_NestedPathRelativeToBaseDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "child.yaml"), "name: child\nprocess:\n  - {kind: record, with: {key: c}}\n")

	def := mustParse(t, "name: parent\nprocess:\n  - {kind: nested, path: child.yaml}\n")
	wf, err := (&Compiler{Registry: testRegistry(), BaseDir: dir}).Compile(def)
	require.NoError(t, err)
	assert.True(t, run(t, wf, nil).Container().Has("c"))
}

func TestCompile_IncludeCycle(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), "name: a\nprocess:\n  - {kind: nested, path: b.yaml}\n")
	writeFile(t, filepath.Join(dir, "b.yaml"), "name: b\nprocess:\n  - {kind: nested, path: a.yaml}\n")
	writeFile(t, filepath.Join(dir, "self.yaml"), "name: self\nprocess:\n  - {kind: nested, path: ./self.yaml}\n")

	c := &Compiler{Registry: testRegistry()}
	_, _, err := c.CompileFile(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle: a.yaml -> b.yaml -> a.yaml")

	_, _, err = c.CompileFile(filepath.Join(dir, "self.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle: self.yaml -> self.yaml")
}

func TestCompile_NestedFileLintFailure(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "child.yaml"), "name: child\nprocess:\n  - {kind: teleport}\n")
	writeFile(t, filepath.Join(dir, "parent.yaml"), "name: parent\nprocess:\n  - {kind: nested, path: child.yaml}\n")

	_, _, err := (&Compiler{Registry: testRegistry()}).CompileFile(filepath.Join(dir, "parent.yaml"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "nested child.yaml") && strings.Contains(err.Error(), `unknown step kind "teleport"`), err.Error())
}

func TestCompile_SameFileTwiceIsNotACycle(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "child.yaml"), "name: child\nprocess:\n  - {kind: record, with: {key: c}}\n")
	writeFile(t, filepath.Join(dir, "parent.yaml"), `
name: parent
process:
  - {kind: nested, path: child.yaml}
  - {kind: nested, path: child.yaml}
`)
	_, _, err := (&Compiler{Registry: testRegistry()}).CompileFile(filepath.Join(dir, "parent.yaml"))
	assert.NoError(t, err)
}
