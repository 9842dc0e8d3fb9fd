package steps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
)

// ─── assert ─────────────────────────────────────────────────────────────────

func TestAssert(t *testing.T) {
	t.Parallel()
	wf := compile(t, `
name: assert
validate:
  - {kind: assert, hard: true, with: {expr: "len(rows) > 0"}}
  - {kind: assert, with: {expr: "owner != ''", message: "rows of {{.table}} need an owner"}}
process:
  - {kind: info, with: {message: ok}}
`)

	res := execute(t, wf, map[string]any{"rows": []any{1}, "owner": "ann", "table": "orders"})
	assert.True(t, res.Success(), res.Debug())

	res = execute(t, wf, map[string]any{"rows": []any{}, "owner": "ann"})
	assert.False(t, res.Success())
	assert.Contains(t, res.Err().Error(), "assertion failed: len(rows) > 0")

	res = execute(t, wf, map[string]any{"rows": []any{1}, "owner": "", "table": "orders"})
	assert.False(t, res.Success())
	var verr *workflow.ValidationError
	require.ErrorAs(t, res.Err(), &verr)
	assert.Contains(t, verr.Error(), "rows of orders need an owner")
}

func TestAssert_CEL(t *testing.T) {
	t.Parallel()
	wf := compile(t, `
name: assert
lang: cel
process:
  - {kind: assert, with: {expr: "vars.count >= 2"}}
`)
	assert.True(t, execute(t, wf, map[string]any{"count": 2}).Success())
	assert.False(t, execute(t, wf, map[string]any{"count": 1}).Success())
}

func TestAssert_InvalidExpression(t *testing.T) {
	t.Parallel()
	_, err := compileErr(t, `
name: assert
process:
  - {kind: assert, with: {expr: "1 +"}}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid expr condition")
}

// ─── Signals ────────────────────────────────────────────────────────────────

func TestFail(t *testing.T) {
	t.Parallel()
	wf := compile(t, `
name: fail
process:
  - {kind: fail, with: {reason: "bad {{.what}}"}}
`)
	res := execute(t, wf, map[string]any{"what": "input"})
	assert.False(t, res.Success())
	assert.True(t, workflow.IsSignal(res.Err(), workflow.SignalFailStep))
	assert.Equal(t, "bad input", processRecords(res)[0].Reason)
}

func TestFail_SoftStageWarns(t *testing.T) {
	t.Parallel()
	wf := compile(t, `
name: fail
process:
  - {kind: info, with: {message: ok}}
after:
  - {kind: fail, description: cleanup, with: {reason: disk full}}
`)
	res := execute(t, wf, nil)
	assert.True(t, res.Success())
	require.True(t, res.HasWarnings())
	assert.Equal(t, []string{"Step failed (cleanup)"}, res.Warnings()[0].Messages)
}

func TestFail_Workflow(t *testing.T) {
	t.Parallel()
	wf := compile(t, `
name: fail
process:
  - kind: loop
    over: items
    continue_on_error: true
    steps:
      - {kind: fail, with: {reason: stop everything, workflow: true}}
`)
	res := execute(t, wf, map[string]any{"items": []any{1, 2, 3}})
	assert.False(t, res.Success())
	assert.True(t, workflow.IsSignal(res.Err(), workflow.SignalFailWorkflow))
}

func TestSkip(t *testing.T) {
	t.Parallel()
	wf := compile(t, `
name: skip
process:
  - {kind: skip, with: {reason: not today}}
  - {kind: set, with: {key: after_skip, value: true}}
  - {kind: skip, when: "done", with: {reason: all done, workflow: true}}
  - {kind: set, with: {key: unreachable, value: true}}
`)
	res := execute(t, wf, map[string]any{"done": true})
	assert.True(t, res.Success())
	assert.True(t, res.Skipped())
	assert.True(t, res.Container().Has("after_skip"))
	assert.False(t, res.Container().Has("unreachable"))

	recs := processRecords(res)
	assert.Equal(t, workflow.OutcomeSkipped, recs[0].Outcome)
	assert.Equal(t, "not today", recs[0].Reason)
}

func TestContinueAndBreak(t *testing.T) {
	t.Parallel()
	wf := compile(t, `
name: loop-control
process:
  - {kind: set, with: {key: seen, value: ""}}
  - kind: loop
    over: items
    as: n
    steps:
      - {kind: continue, when: "n == 2", with: {reason: "skip two"}}
      - {kind: break, when: "n == 4", with: {reason: "stop at four"}}
      - {kind: set, with: {key: seen, value: "{{.seen}}{{.n}}"}}
`)
	res := execute(t, wf, map[string]any{"items": []any{1, 2, 3, 4, 5}})
	require.True(t, res.Success(), res.Debug())
	assert.Equal(t, "13", workflow.GetString(res.Container(), "seen"))
	assert.Contains(t, res.Debug(), "Loop break in iteration #4")
}

func TestContinueOutsideLoopSkips(t *testing.T) {
	t.Parallel()
	wf := compile(t, `
name: continue
process:
  - {kind: continue, with: {reason: nothing to do}}
`)
	res := execute(t, wf, nil)
	assert.True(t, res.Success())
	assert.False(t, res.Skipped())
	assert.Equal(t, workflow.OutcomeSkipped, processRecords(res)[0].Outcome)
}

// ─── warn / info ────────────────────────────────────────────────────────────

func TestWarnAndInfo(t *testing.T) {
	t.Parallel()
	wf := compile(t, `
name: notes
process:
  - {kind: warn, with: {message: "{{.count}} rows ignored"}}
  - {kind: info, description: note, with: {message: "imported {{.count}} rows"}}
`)
	res := execute(t, wf, map[string]any{"count": 7})
	require.True(t, res.Success())
	assert.Equal(t, []workflow.StageWarnings{{Stage: workflow.StageProcess, Messages: []string{"7 rows ignored"}}}, res.Warnings())

	recs := processRecords(res)
	assert.Equal(t, 1, recs[0].Warnings)
	require.Len(t, recs[1].Info, 1)
	assert.Equal(t, "imported 7 rows", recs[1].Info[0].Text)
}
