package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ravi-parthasarathy/workflow/pkg/definition"
	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
)

// newSleep pauses for duration. Cancellation of the run ends the sleep.
func newSleep(def definition.StepDef, _ definition.Builder) (workflow.Step, error) {
	d, err := attrsOf(def).Duration("duration", 0)
	if err != nil {
		return nil, err
	}
	return workflow.Func(describe(def, "Sleep "+d.String()), func(ctx context.Context, _ *workflow.Control, _ workflow.Container) error {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("sleep cancelled: %w", ctx.Err())
		case <-timer.C:
			return nil
		}
	}), nil
}

// newRegex stores a capture group of the first match of pattern in source,
// or no_match when nothing matches.
func newRegex(def definition.StepDef, _ definition.Builder) (workflow.Step, error) {
	a := attrsOf(def)
	source, err := a.String("source", "")
	if err != nil {
		return nil, err
	}
	pattern, err := a.String("pattern", "")
	if err != nil {
		return nil, err
	}
	key, err := a.String("key", "")
	if err != nil {
		return nil, err
	}
	group, err := a.Int("group", 0)
	if err != nil {
		return nil, err
	}
	noMatch, err := a.String("no_match", "")
	if err != nil {
		return nil, err
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, a.errorf("invalid pattern: %w", err)
	}
	if group < 0 || group > re.NumSubexp() {
		return nil, a.errorf("group %d out of range (pattern has %d groups)", group, re.NumSubexp())
	}

	return workflow.Func(describe(def, "Match "+source), func(_ context.Context, _ *workflow.Control, c workflow.Container) error {
		matches := re.FindStringSubmatch(workflow.GetString(c, source))
		if matches == nil {
			c.Set(key, noMatch)
			return nil
		}
		c.Set(key, matches[group])
		return nil
	}).Requires(workflow.RequireKind(source, workflow.KindString)), nil
}

// newSplit splits source by sep and stores the parts as a list.
func newSplit(def definition.StepDef, _ definition.Builder) (workflow.Step, error) {
	a := attrsOf(def)
	source, err := a.String("source", "")
	if err != nil {
		return nil, err
	}
	key, err := a.String("key", "")
	if err != nil {
		return nil, err
	}
	sep, err := a.String("sep", "\n")
	if err != nil {
		return nil, err
	}
	trim, err := a.Bool("trim", false)
	if err != nil {
		return nil, err
	}

	return workflow.Func(describe(def, "Split "+source), func(_ context.Context, _ *workflow.Control, c workflow.Container) error {
		raw := workflow.GetString(c, source)
		parts := []any{}
		if raw != "" {
			for _, p := range strings.Split(raw, sep) {
				if trim {
					if p = strings.TrimSpace(p); p == "" {
						continue
					}
				}
				parts = append(parts, p)
			}
		}
		c.Set(key, parts)
		return nil
	}), nil
}

// asJSON returns v decoded when it holds JSON text, and v otherwise.
func asJSON(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	if s == "" {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

var transformOps = []string{"trim", "upper", "lower", "title", "replace"}

// newTransform applies ops in order to the string in source and stores
// the result in key, or back in source when key is empty.
func newTransform(def definition.StepDef, _ definition.Builder) (workflow.Step, error) {
	a := attrsOf(def)
	source, err := a.String("source", "")
	if err != nil {
		return nil, err
	}
	key, err := a.String("key", source)
	if err != nil {
		return nil, err
	}
	ops, err := a.Strings("ops")
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, a.errorf("'ops' must name at least one operation")
	}
	for i, op := range ops {
		op = strings.ToLower(strings.TrimSpace(op))
		if !slices.Contains(transformOps, op) {
			return nil, a.errorf("unknown op %q (supported: %s)", op, strings.Join(transformOps, ", "))
		}
		ops[i] = op
	}
	oldText, err := a.Template("old", "")
	if err != nil {
		return nil, err
	}
	newText, err := a.Template("new", "")
	if err != nil {
		return nil, err
	}
	if slices.Contains(ops, "replace") && oldText.String() == "" {
		return nil, a.errorf("op replace needs 'old'")
	}
	title := cases.Title(language.Und)

	return workflow.Func(describe(def, "Transform "+source), func(_ context.Context, _ *workflow.Control, c workflow.Container) error {
		val := workflow.GetString(c, source)
		for _, op := range ops {
			switch op {
			case "trim":
				val = strings.TrimSpace(val)
			case "upper":
				val = strings.ToUpper(val)
			case "lower":
				val = strings.ToLower(val)
			case "title":
				val = title.String(val)
			case "replace":
				data := c.Snapshot()
				o, err := oldText.render(data)
				if err != nil {
					return fmt.Errorf("transform: old template: %w", err)
				}
				n, err := newText.render(data)
				if err != nil {
					return fmt.Errorf("transform: new template: %w", err)
				}
				val = strings.ReplaceAll(val, o, n)
			}
		}
		c.Set(key, val)
		return nil
	}).Requires(workflow.RequireKind(source, workflow.KindString)), nil
}
