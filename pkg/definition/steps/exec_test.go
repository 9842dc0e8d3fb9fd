package steps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
)

// ─── exec ───────────────────────────────────────────────────────────────────

func TestExec(t *testing.T) {
	t.Parallel()
	wf := compile(t, `
name: exec
process:
  - {kind: exec, with: {cmd: "echo hello {{.who}}"}}
  - {kind: exec, with: {cmd: "echo oops >&2; exit 3", stdout_key: out, stderr_key: err, exit_code_key: code, fail_on_error: false}}
`)
	res := execute(t, wf, map[string]any{"who": "ann"})
	require.True(t, res.Success(), res.Debug())

	snap := res.Container().Snapshot()
	assert.Equal(t, "hello ann\n", snap["stdout"])
	assert.Equal(t, "", snap["out"])
	assert.Equal(t, "oops\n", snap["err"])
	assert.Equal(t, 3, snap["code"])
}

func TestExec_FailsOnNonZeroExit(t *testing.T) {
	t.Parallel()
	wf := compile(t, `
name: exec
process:
  - {kind: exec, description: broken, with: {cmd: "echo first line >&2; echo second >&2; exit 2"}}
`)
	res := execute(t, wf, nil)
	assert.False(t, res.Success())
	assert.True(t, workflow.IsSignal(res.Err(), workflow.SignalFailStep))
	assert.Equal(t, "command exited with code 2: first line", res.Err().Error())
}

func TestExec_Workdir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	wf := compile(t, "name: exec\nprocess:\n  - {kind: exec, with: {cmd: pwd, workdir: \"{{.dir}}\"}}\n")
	res := execute(t, wf, map[string]any{"dir": dir})
	require.True(t, res.Success(), res.Debug())
	assert.Equal(t, dir+"\n", res.Container().Snapshot()["stdout"])
}

func TestExec_Timeout(t *testing.T) {
	t.Parallel()
	wf := compile(t, "name: exec\nprocess:\n  - {kind: exec, with: {cmd: \"sleep 5\", timeout: 50ms}}\n")
	res := execute(t, wf, nil)
	assert.False(t, res.Success())
}
