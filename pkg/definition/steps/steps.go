// Package steps provides the built-in step kinds of workflow definitions.
//
// String attributes are Go templates rendered against a snapshot of the
// workflow context right before the step runs:
//
//	- kind: set
//	  with:
//	    key: greeting
//	    value: "hello {{.name}}"
package steps

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/ravi-parthasarathy/workflow/pkg/definition"
)

// Register adds every built-in kind to reg.
func Register(reg *definition.Registry) {
	for _, k := range Kinds() {
		reg.Register(k)
	}
}

// NewRegistry returns a registry holding the built-in kinds.
func NewRegistry() *definition.Registry {
	reg := definition.NewRegistry()
	Register(reg)
	return reg
}

// Kinds returns the built-in kinds.
func Kinds() []definition.Kind {
	return []definition.Kind{
		{Name: "set", Required: []string{"key"}, Expressions: []string{"expr"}, Factory: newSet},
		{Name: "unset", Required: []string{"key"}, Factory: newUnset},
		{Name: "env", Required: []string{"key", "from"}, Factory: newEnv},
		{Name: "assert", Required: []string{"expr"}, Expressions: []string{"expr"}, Factory: newAssert},
		{Name: "fail", Factory: newFail},
		{Name: "skip", Factory: newSkip},
		{Name: "continue", Factory: newContinue},
		{Name: "break", Factory: newBreak},
		{Name: "warn", Required: []string{"message"}, Factory: newWarn},
		{Name: "info", Required: []string{"message"}, Factory: newInfo},
		{Name: "sleep", Required: []string{"duration"}, Factory: newSleep},
		{Name: "regex", Required: []string{"source", "pattern", "key"}, Factory: newRegex},
		{Name: "split", Required: []string{"source", "key"}, Factory: newSplit},
		{Name: "transform", Required: []string{"source", "ops"}, Factory: newTransform},
		{Name: "jq", Required: []string{"query", "key"}, Factory: newJQ},
		{Name: "json_decode", Required: []string{"source"}, Factory: newJSONDecode},
		{Name: "json_encode", Required: []string{"keys", "key"}, Factory: newJSONEncode},
		{Name: "schema", Required: []string{"source"}, Factory: newSchema},
		{Name: "read_file", Required: []string{"path", "key"}, Factory: newReadFile},
		{Name: "write_file", Required: []string{"path", "content"}, Factory: newWriteFile},
		{Name: "exec", Required: []string{"cmd"}, Factory: newExec},
		{Name: "http", Required: []string{"url"}, Factory: newHTTP},
		{Name: definition.KindLoop, Factory: newLoop},
		{Name: definition.KindNested, Factory: newNested},
	}
}

// describe returns the description of def or fallback.
func describe(def definition.StepDef, fallback string) string {
	if def.Description != "" {
		return def.Description
	}
	return fallback
}

// attrs reads typed values from the with block of a step.
type attrs struct {
	kind string
	with map[string]any
}

func attrsOf(def definition.StepDef) attrs {
	return attrs{kind: def.Kind, with: def.With}
}

func (a attrs) errorf(format string, args ...any) error {
	return fmt.Errorf("%s step: "+format, append([]any{a.kind}, args...)...)
}

func (a attrs) has(name string) bool {
	v, ok := a.with[name]
	return ok && v != nil
}

// String returns the attribute as text. Scalars are formatted.
func (a attrs) String(name, fallback string) (string, error) {
	v, ok := a.with[name]
	if !ok || v == nil {
		return fallback, nil
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case bool, int, int64, float64:
		return fmt.Sprint(t), nil
	}
	return "", a.errorf("attribute %q must be a string, got %T", name, v)
}

func (a attrs) Bool(name string, fallback bool) (bool, error) {
	v, ok := a.with[name]
	if !ok || v == nil {
		return fallback, nil
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(t) {
		case "true", "yes", "1":
			return true, nil
		case "false", "no", "0":
			return false, nil
		}
	}
	return false, a.errorf("attribute %q must be a boolean, got %v", name, v)
}

func (a attrs) Int(name string, fallback int) (int, error) {
	v, ok := a.with[name]
	if !ok || v == nil {
		return fallback, nil
	}
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t == float64(int(t)) {
			return int(t), nil
		}
	}
	return 0, a.errorf("attribute %q must be an integer, got %v", name, v)
}

func (a attrs) Duration(name string, fallback time.Duration) (time.Duration, error) {
	s, err := a.String(name, "")
	if err != nil || s == "" {
		return fallback, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, a.errorf("invalid %s %q: %w", name, s, err)
	}
	return d, nil
}

// Strings accepts a single string or a list of strings.
func (a attrs) Strings(name string) ([]string, error) {
	v, ok := a.with[name]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, a.errorf("attribute %q must hold strings, got %T", name, item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, a.errorf("attribute %q must be a string or a list of strings, got %T", name, v)
}

// Map returns a mapping attribute.
func (a attrs) Map(name string) (map[string]any, error) {
	v, ok := a.with[name]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, a.errorf("attribute %q must be a mapping, got %T", name, v)
	}
	return m, nil
}

// Template parses a string attribute as a template.
func (a attrs) Template(name, fallback string) (*text, error) {
	s, err := a.String(name, fallback)
	if err != nil {
		return nil, err
	}
	t, err := parseText(s)
	if err != nil {
		return nil, a.errorf("%s template: %w", name, err)
	}
	return t, nil
}

// text is a string attribute parsed once as a template. Values without
// actions render as-is.
type text struct {
	raw string
	tpl *template.Template
}

func parseText(s string) (*text, error) {
	t := &text{raw: s}
	if !strings.Contains(s, "{{") {
		return t, nil
	}
	tpl, err := template.New("").Parse(s)
	if err != nil {
		return nil, err
	}
	t.tpl = tpl
	return t, nil
}

func (t *text) render(data map[string]any) (string, error) {
	if t.tpl == nil {
		return t.raw, nil
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (t *text) String() string { return t.raw }

// renderValue renders every string found in v, descending into lists and
// mappings. Other values are returned unchanged.
func renderValue(v any, data map[string]any) (any, error) {
	switch t := v.(type) {
	case string:
		tx, err := parseText(t)
		if err != nil {
			return nil, err
		}
		return tx.render(data)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			r, err := renderValue(item, data)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			r, err := renderValue(item, data)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	}
	return v, nil
}
