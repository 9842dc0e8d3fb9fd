package workflow

import (
	"fmt"
	"strings"
)

// Formatter renders the records of a finished run.
type Formatter[T any] interface {
	Format(name string, stages []StageRecords) T
}

// TextFormatter renders a hierarchical plain-text log. Loop iterations are
// indented below their loop and nested workflows are rendered inline.
type TextFormatter struct{}

func (TextFormatter) Format(name string, stages []StageRecords) string {
	r := &textRenderer{}
	return r.render(name, stages)
}

// textRenderer carries the indentation across nested renders of one call.
type textRenderer struct {
	indent string
}

func (r *textRenderer) render(name string, stages []StageRecords) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Process log for workflow '%s':\n", name)

	for _, s := range stages {
		if s.Stage == StageSummary {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s%s:\n", r.indent, s.Stage)

		for _, rec := range s.Records {
			prefix := r.indent + "  - "
			b.WriteString(prefix)
			b.WriteString(r.record(rec))
			b.WriteByte('\n')
		}
	}
	return strings.TrimSpace(b.String())
}

func (r *textRenderer) record(rec StepRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", rec.Description, rec.Outcome)
	if rec.Reason != "" {
		fmt.Fprintf(&b, " (%s)", rec.Reason)
	}
	if rec.Warnings > 0 {
		fmt.Fprintf(&b, " (%d warning%s)", rec.Warnings, pluralS(rec.Warnings))
	}
	for _, info := range rec.Info {
		if line, ok := r.info(info); ok {
			b.WriteByte('\n')
			b.WriteString(line)
		}
	}
	return b.String()
}

func (r *textRenderer) info(i Info) (string, bool) {
	switch i.Kind {
	case InfoLoopStart:
		r.indent += "  "
		return "", false
	case InfoLoopIteration:
		return "", false
	case InfoLoopEnd:
		r.indent = strings.TrimSuffix(r.indent, "  ")
		return r.indent + "      - " + loopFinished(i.Iteration), true
	case InfoNested:
		if i.Nested == nil {
			break
		}
		prefix := r.indent + "    - "
		nested := r.render(i.Nested.Name(), i.Nested.Log().Stages())
		nested = strings.ReplaceAll(nested, "\n", "\n      ")
		nested = strings.ReplaceAll(nested, "\n      \n", "\n\n")
		return prefix + nested, true
	}
	return r.indent + "    - " + i.String(), true
}
