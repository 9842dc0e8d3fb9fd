package steps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
)

// ─── set / unset ────────────────────────────────────────────────────────────

func TestSet(t *testing.T) {
	t.Parallel()
	wf := compile(t, `
name: set
process:
  - {kind: set, with: {key: greeting, value: "hello {{.name}}"}}
  - {kind: set, with: {key: limit, value: 10}}
  - kind: set
    with:
      key: config
      value: {owner: "{{.name}}", retries: 3}
  - {kind: set, with: {key: next, expr: "limit + 1"}}
  - {kind: set, with: {key: empty}}
`)
	res := execute(t, wf, map[string]any{"name": "ann"})
	require.True(t, res.Success(), res.Debug())

	snap := res.Container().Snapshot()
	assert.Equal(t, "hello ann", snap["greeting"])
	assert.Equal(t, 10, snap["limit"])
	assert.Equal(t, map[string]any{"owner": "ann", "retries": 3}, snap["config"])
	assert.Equal(t, 11, snap["next"])
	assert.Contains(t, snap, "empty")
	assert.Nil(t, snap["empty"])

	assert.Equal(t, "Set greeting", wf.Steps(workflow.StageProcess)[0].Description())
}

func TestSet_ValueAndExprExclusive(t *testing.T) {
	t.Parallel()
	_, err := compileErr(t, `
name: set
process:
  - {kind: set, with: {key: a, value: 1, expr: "2"}}
`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'value' and 'expr' are mutually exclusive")
}

func TestUnset(t *testing.T) {
	t.Parallel()
	wf := compile(t, `
name: unset
process:
  - {kind: unset, with: {key: a}}
  - {kind: unset, with: {key: [b, c]}}
`)
	res := execute(t, wf, map[string]any{"a": 1, "b": 2, "c": 3, "d": 4})
	require.True(t, res.Success())
	assert.Equal(t, map[string]any{"d": 4}, res.Container().Snapshot())
}

// ─── env ────────────────────────────────────────────────────────────────────

func TestEnv(t *testing.T) {
	t.Setenv("WORKFLOW_TEST_TOKEN", "s3cret")
	wf := compile(t, `
name: env
process:
  - {kind: env, with: {key: token, from: WORKFLOW_TEST_TOKEN}}
  - {kind: env, with: {key: region, from: WORKFLOW_TEST_UNSET_REGION, default: eu-west-1}}
`)
	res := execute(t, wf, nil)
	require.True(t, res.Success())
	assert.Equal(t, "s3cret", workflow.GetString(res.Container(), "token"))
	assert.Equal(t, "eu-west-1", workflow.GetString(res.Container(), "region"))
}

func TestEnv_Required(t *testing.T) {
	t.Setenv("WORKFLOW_TEST_EMPTY", "")
	wf := compile(t, `
name: env
process:
  - {kind: env, with: {key: v, from: WORKFLOW_TEST_EMPTY, required: true}}
`)
	res := execute(t, wf, nil)
	assert.False(t, res.Success())
	assert.Contains(t, res.Err().Error(), `environment variable "WORKFLOW_TEST_EMPTY" is not set`)
}
