package steps

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravi-parthasarathy/workflow/pkg/definition"
	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
)

// ─── jq ─────────────────────────────────────────────────────────────────────

func TestJQ(t *testing.T) {
	t.Parallel()
	wf := compile(t, `
name: jq
process:
  - {kind: jq, with: {source: payload, query: '.items | length', key: count}}
  - {kind: jq, with: {source: payload, query: '.items[] | .id', key: ids, all: true}}
  - {kind: jq, with: {source: payload, query: '.items[] | select(.id == "b") | .name', key: name}}
  - {kind: jq, with: {source: payload, query: '.missing[]?', key: nothing}}
  - {kind: jq, with: {query: '.region', key: region_copy}}
`)
	res := execute(t, wf, map[string]any{
		"payload": `{"items":[{"id":"a","name":"first"},{"id":"b","name":"second"}]}`,
		"region":  "eu",
	})
	require.True(t, res.Success(), res.Debug())

	snap := res.Container().Snapshot()
	assert.Equal(t, 2, snap["count"])
	assert.Equal(t, []any{"a", "b"}, snap["ids"])
	assert.Equal(t, "second", snap["name"])
	assert.Contains(t, snap, "nothing")
	assert.Nil(t, snap["nothing"])
	assert.Equal(t, "eu", snap["region_copy"])
}

func TestJQ_StructuredSource(t *testing.T) {
	t.Parallel()
	wf := compile(t, "name: jq\nprocess:\n  - {kind: jq, with: {source: data, query: '[.[] | . * 2]', key: doubled}}\n")
	res := execute(t, wf, map[string]any{"data": []any{1, 2, 3}})
	require.True(t, res.Success(), res.Debug())
	assert.Equal(t, []any{2.0, 4.0, 6.0}, res.Container().Snapshot()["doubled"])
}

func TestJQ_Errors(t *testing.T) {
	t.Parallel()
	_, err := compileErr(t, "name: jq\nprocess:\n  - {kind: jq, with: {query: '.[', key: k}}\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jq parse error")

	wf := compile(t, "name: jq\nprocess:\n  - {kind: jq, with: {source: data, query: '.', key: k}}\n")
	res := execute(t, wf, map[string]any{"data": "{not json"})
	assert.False(t, res.Success())
	assert.Contains(t, res.Err().Error(), `jq: value of "data" is not JSON`)
}

// ─── json_decode ────────────────────────────────────────────────────────────

func TestJSONDecode(t *testing.T) {
	t.Parallel()
	wf := compile(t, `
name: decode
process:
  - {kind: json_decode, with: {source: body, prefix: "resp_"}}
  - {kind: json_decode, with: {source: body, key: whole}}
`)
	res := execute(t, wf, map[string]any{"body": `{"status":"ok","count":2,"tags":["x"]}`})
	require.True(t, res.Success(), res.Debug())

	snap := res.Container().Snapshot()
	assert.Equal(t, "ok", snap["resp_status"])
	assert.Equal(t, 2.0, snap["resp_count"])
	assert.Equal(t, []any{"x"}, snap["resp_tags"])
	assert.Equal(t, map[string]any{"status": "ok", "count": 2.0, "tags": []any{"x"}}, snap["whole"])
}

func TestJSONDecode_Errors(t *testing.T) {
	t.Parallel()
	wf := compile(t, "name: decode\nprocess:\n  - {kind: json_decode, with: {source: body}}\n")

	res := execute(t, wf, map[string]any{"body": "[1,2]"})
	assert.False(t, res.Success())
	assert.Contains(t, res.Err().Error(), `value of "body" must be a JSON object`)

	res = execute(t, wf, map[string]any{"body": "{"})
	assert.False(t, res.Success())
	assert.Contains(t, res.Err().Error(), "invalid JSON")

	res = execute(t, wf, map[string]any{"body": ""})
	assert.True(t, res.Success())

	_, err := compileErr(t, "name: decode\nprocess:\n  - {kind: json_decode, with: {source: b, key: k, prefix: p}}\n")
	assert.ErrorContains(t, err, "mutually exclusive")
}

// ─── schema ─────────────────────────────────────────────────────────────────

const orderSchemaDoc = `
name: schema
validate:
  - kind: schema
    with:
      source: order
      schema:
        type: object
        required: [id, qty]
        properties:
          id: {type: string}
          qty: {type: integer, minimum: 1}
process:
  - {kind: info, with: {message: valid}}
`

func TestSchema_Inline(t *testing.T) {
	t.Parallel()
	wf := compile(t, orderSchemaDoc)

	res := execute(t, wf, map[string]any{"order": map[string]any{"id": "A-1", "qty": 3}})
	assert.True(t, res.Success(), res.Debug())

	res = execute(t, wf, map[string]any{"order": `{"id":"A-1","qty":2}`})
	assert.True(t, res.Success(), res.Debug())

	res = execute(t, wf, map[string]any{"order": map[string]any{"id": 7, "qty": 0}})
	assert.False(t, res.Success())
	var verr *workflow.ValidationError
	require.ErrorAs(t, res.Err(), &verr)
	assert.Contains(t, verr.Error(), "order does not match schema")
	assert.Contains(t, verr.Error(), "/id")
	assert.Contains(t, verr.Error(), "/qty")
}

func TestSchema_File(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tags.json"), []byte(`{"type":"array","items":{"type":"string"}}`), 0o644))

	def, err := definition.Parse([]byte(`
name: schema
process:
  - {kind: schema, with: {source: tags, schema_file: tags.json}}
`))
	require.NoError(t, err)
	wf, err := (&definition.Compiler{Registry: NewRegistry(), BaseDir: dir}).Compile(def)
	require.NoError(t, err)

	assert.True(t, execute(t, wf, map[string]any{"tags": []any{"a", "b"}}).Success())
	assert.False(t, execute(t, wf, map[string]any{"tags": []any{"a", 1}}).Success())
}

func TestSchema_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		with string
		want string
	}{
		{"no schema", "{source: x}", "one of 'schema' or 'schema_file' is required"},
		{"both", "{source: x, schema: {type: string}, schema_file: s.json}", "mutually exclusive"},
		{"bad json text", "{source: x, schema: '{'}", "schema is not valid JSON"},
		{"bad schema", "{source: x, schema: {type: 12}}", "compile schema"},
		{"missing file", "{source: x, schema_file: nope.json}", "open schema"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := compileErr(t, "name: schema\nprocess:\n  - {kind: schema, with: "+tc.with+"}\n")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

// ─── json_encode ────────────────────────────────────────────────────────────

func TestJSONEncode(t *testing.T) {
	t.Parallel()
	wf := compile(t, "name: enc\nprocess:\n  - {kind: json_encode, with: {keys: [name, count, missing], key: out}}\n")
	res := execute(t, wf, map[string]any{"name": "x", "count": 2})
	require.True(t, res.Success(), res.Debug())
	assert.JSONEq(t, `{"name":"x","count":2,"missing":null}`, res.Container().Snapshot()["out"].(string))
	assert.Equal(t, "Encode out", wf.Steps(workflow.StageProcess)[0].Description())
}

func TestJSONEncode_RoundTrip(t *testing.T) {
	t.Parallel()
	wf := compile(t, `
name: roundtrip
process:
  - {kind: json_encode, with: {keys: [a], key: packed, indent: true}}
  - {kind: json_decode, with: {source: packed, prefix: "copy_"}}
`)
	res := execute(t, wf, map[string]any{"a": "value"})
	require.True(t, res.Success(), res.Debug())
	snap := res.Container().Snapshot()
	assert.Contains(t, snap["packed"], "\n  \"a\"")
	assert.Equal(t, "value", snap["copy_a"])
}
