package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ravi-parthasarathy/workflow/pkg/definition"
	"github.com/ravi-parthasarathy/workflow/pkg/expression"
	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
)

var jq = expression.NewJQEngine()

// newJQ runs query over the value of source, or over the whole context
// when source is unset, and stores the outcome under key. With all set
// every output is stored as a list.
func newJQ(def definition.StepDef, _ definition.Builder) (workflow.Step, error) {
	a := attrsOf(def)
	query, err := a.String("query", "")
	if err != nil {
		return nil, err
	}
	key, err := a.String("key", "")
	if err != nil {
		return nil, err
	}
	source, err := a.String("source", "")
	if err != nil {
		return nil, err
	}
	all, err := a.Bool("all", false)
	if err != nil {
		return nil, err
	}
	if err := jq.Compile(query); err != nil {
		return nil, a.errorf("%w", err)
	}

	step := workflow.Func(describe(def, "Query "+query), func(ctx context.Context, _ *workflow.Control, c workflow.Container) error {
		var input any = c.Snapshot()
		if source != "" {
			v, _ := c.Get(source)
			decoded, err := asJSON(v)
			if err != nil {
				return fmt.Errorf("jq: value of %q is not JSON: %w", source, err)
			}
			input = decoded
		}
		results, err := jq.EvaluateAll(ctx, query, input)
		if err != nil {
			return err
		}
		switch {
		case all:
			if results == nil {
				results = []any{}
			}
			c.Set(key, results)
		case len(results) == 0:
			c.Set(key, nil)
		case len(results) == 1:
			c.Set(key, results[0])
		default:
			c.Set(key, results)
		}
		return nil
	})
	if source != "" {
		step.Requires(workflow.Require(source))
	}
	return step, nil
}

// newJSONDecode parses the JSON text in source. With key the decoded value
// is stored whole; otherwise the fields of the object are stored one by
// one, each name prefixed with prefix.
func newJSONDecode(def definition.StepDef, _ definition.Builder) (workflow.Step, error) {
	a := attrsOf(def)
	source, err := a.String("source", "")
	if err != nil {
		return nil, err
	}
	key, err := a.String("key", "")
	if err != nil {
		return nil, err
	}
	prefix, err := a.String("prefix", "")
	if err != nil {
		return nil, err
	}
	if key != "" && prefix != "" {
		return nil, a.errorf("'key' and 'prefix' are mutually exclusive")
	}

	return workflow.Func(describe(def, "Decode "+source), func(_ context.Context, _ *workflow.Control, c workflow.Container) error {
		raw := workflow.GetString(c, source)
		if raw == "" {
			return nil
		}
		var top any
		if err := json.Unmarshal([]byte(raw), &top); err != nil {
			return fmt.Errorf("json_decode: invalid JSON in %q: %w", source, err)
		}
		if key != "" {
			c.Set(key, top)
			return nil
		}
		fields, ok := top.(map[string]any)
		if !ok {
			return fmt.Errorf("json_decode: value of %q must be a JSON object", source)
		}
		for k, v := range fields {
			c.Set(prefix+k, v)
		}
		return nil
	}).Requires(workflow.RequireKind(source, workflow.KindString)), nil
}

// newJSONEncode packs the listed context keys into one JSON object and
// stores its text in key. Missing keys encode as null.
func newJSONEncode(def definition.StepDef, _ definition.Builder) (workflow.Step, error) {
	a := attrsOf(def)
	keys, err := a.Strings("keys")
	if err != nil {
		return nil, err
	}
	key, err := a.String("key", "")
	if err != nil {
		return nil, err
	}
	indent, err := a.Bool("indent", false)
	if err != nil {
		return nil, err
	}

	return workflow.Func(describe(def, "Encode "+key), func(_ context.Context, _ *workflow.Control, c workflow.Container) error {
		obj := make(map[string]any, len(keys))
		for _, k := range keys {
			v, _ := c.Get(k)
			obj[k] = v
		}
		var (
			data []byte
			err  error
		)
		if indent {
			data, err = json.MarshalIndent(obj, "", "  ")
		} else {
			data, err = json.Marshal(obj)
		}
		if err != nil {
			return fmt.Errorf("json_encode: %w", err)
		}
		c.Set(key, string(data))
		return nil
	}), nil
}

// newSchema validates the value of source against a JSON Schema given
// inline or through schema_file. Violations fail the step.
func newSchema(def definition.StepDef, b definition.Builder) (workflow.Step, error) {
	a := attrsOf(def)
	source, err := a.String("source", "")
	if err != nil {
		return nil, err
	}
	schema, err := compileSchema(a, b.BaseDir())
	if err != nil {
		return nil, err
	}

	return workflow.Func(describe(def, "Validate "+source), func(_ context.Context, ctl *workflow.Control, c workflow.Container) error {
		v, _ := c.Get(source)
		value, err := asJSON(v)
		if err != nil {
			return ctl.FailStep(fmt.Sprintf("%s is not valid JSON: %v", source, err))
		}
		doc, err := toSchemaInput(value)
		if err != nil {
			return err
		}
		if err := schema.Validate(doc); err != nil {
			return ctl.FailStep(fmt.Sprintf("%s does not match schema: %s", source, strings.Join(definition.Violations(err), "; ")))
		}
		return nil
	}).Requires(workflow.Require(source)), nil
}

func compileSchema(a attrs, baseDir string) (*jsonschema.Schema, error) {
	const inlineURL = "mem://schema.json"

	c := jsonschema.NewCompiler()
	switch {
	case a.has("schema") && a.has("schema_file"):
		return nil, a.errorf("'schema' and 'schema_file' are mutually exclusive")
	case a.has("schema"):
		raw := a.with["schema"]
		if s, ok := raw.(string); ok {
			var decoded any
			if err := json.Unmarshal([]byte(s), &decoded); err != nil {
				return nil, a.errorf("schema is not valid JSON: %w", err)
			}
			raw = decoded
		}
		doc, err := toSchemaInput(raw)
		if err != nil {
			return nil, a.errorf("%w", err)
		}
		if err := c.AddResource(inlineURL, doc); err != nil {
			return nil, a.errorf("add schema: %w", err)
		}
		s, err := c.Compile(inlineURL)
		if err != nil {
			return nil, a.errorf("compile schema: %w", err)
		}
		return s, nil
	case a.has("schema_file"):
		path, err := a.String("schema_file", "")
		if err != nil {
			return nil, err
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, a.errorf("open schema: %w", err)
		}
		defer func() { _ = f.Close() }()
		doc, err := jsonschema.UnmarshalJSON(f)
		if err != nil {
			return nil, a.errorf("read schema %s: %w", path, err)
		}
		if err := c.AddResource(inlineURL, doc); err != nil {
			return nil, a.errorf("add schema: %w", err)
		}
		s, err := c.Compile(inlineURL)
		if err != nil {
			return nil, a.errorf("compile schema %s: %w", path, err)
		}
		return s, nil
	}
	return nil, a.errorf("one of 'schema' or 'schema_file' is required")
}

// toSchemaInput converts v to the representation the validator expects,
// with numbers as json.Number.
func toSchemaInput(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}
