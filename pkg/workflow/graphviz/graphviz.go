// Package graphviz renders the execution log of a workflow run as a DOT
// digraph. Stages become clusters, steps become boxes coloured by outcome,
// loops and nested workflows become clusters of their own.
package graphviz

import (
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"

	"github.com/awalterschulze/gographviz"

	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
)

// Node colours by outcome.
const (
	ColorOK      = "green"
	ColorWarning = "yellow"
	ColorSkipped = "grey"
	ColorFailed  = "red"
)

// Formatter implements workflow.Formatter[string]. A graph that cannot be
// built renders as the empty string and the error is logged to Logger,
// or slog.Default() when nil. Callers that need the error use Graph.
type Formatter struct {
	Logger *slog.Logger
}

// Format returns the DOT source for a run.
func (f Formatter) Format(name string, stages []workflow.StageRecords) string {
	g, err := Graph(name, stages)
	return f.output(name, g, err)
}

func (f Formatter) output(name string, g *gographviz.Escape, err error) string {
	if err != nil {
		logger := f.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("render workflow graph", "workflow", name, "error", err)
		return ""
	}
	return g.String()
}

// Graph builds the graph for a run. Nodes are numbered in execution order
// starting with the workflow node 0; consecutive nodes are linked and every
// loop iteration links back to the first node of its loop.
func Graph(name string, stages []workflow.StageRecords) (*gographviz.Escape, error) {
	g := gographviz.NewEscape()
	if err := g.SetName(name); err != nil {
		return nil, err
	}
	if err := g.SetDir(true); err != nil {
		return nil, err
	}

	r := &renderer{g: g}
	r.workflow(name, name, stages)
	r.link()
	if r.err != nil {
		return nil, fmt.Errorf("render graph for %q: %w", name, r.err)
	}
	return g, nil
}

type renderer struct {
	g        *gographviz.Escape
	err      error
	nodes    int
	clusters int
	loops    []int // first node of every open loop
	back     [][2]int
}

func (r *renderer) workflow(parent, name string, stages []workflow.StageRecords) {
	r.node(parent, fmt.Sprintf("<%s>", html.EscapeString(name)), map[string]string{"shape": "ellipse"})

	for _, s := range stages {
		cluster := r.cluster(parent, s.Stage.String())
		open := []string{cluster}

		for _, rec := range s.Records {
			current := open[len(open)-1]
			backTo := -1
			if iteration(rec) && len(r.loops) > 0 {
				backTo = r.loops[len(r.loops)-1]
			}
			for _, info := range rec.Info {
				switch info.Kind {
				case workflow.InfoLoopStart:
					open = append(open, r.cluster(current, "Loop"))
					current = open[len(open)-1]
					r.loops = append(r.loops, r.nodes)
				case workflow.InfoLoopEnd:
					if len(open) > 1 {
						open = open[:len(open)-1]
						current = open[len(open)-1]
					}
					if len(r.loops) > 0 {
						r.loops = r.loops[:len(r.loops)-1]
					}
				case workflow.InfoNested:
					if info.Nested != nil {
						nested := r.cluster(current, "Nested workflow")
						r.workflow(nested, info.Nested.Name(), info.Nested.Log().Stages())
					}
				}
			}

			id := r.node(current, label(rec), map[string]string{"shape": "box", "color": color(rec)})
			if backTo >= 0 && !has(rec, workflow.InfoLoopEnd) {
				r.back = append(r.back, [2]int{id, backTo})
			}
		}
	}
}

func (r *renderer) node(parent, text string, attrs map[string]string) int {
	id := r.nodes
	r.nodes++
	attrs["label"] = text
	r.check(r.g.AddNode(parent, strconv.Itoa(id), attrs))
	return id
}

func (r *renderer) cluster(parent, text string) string {
	name := fmt.Sprintf("cluster_%d", r.clusters)
	r.clusters++
	r.check(r.g.AddSubGraph(parent, name, map[string]string{"label": text}))
	return name
}

func (r *renderer) link() {
	for i := 0; i+1 < r.nodes; i++ {
		r.check(r.g.AddEdge(strconv.Itoa(i), strconv.Itoa(i+1), true, nil))
	}
	for _, e := range r.back {
		r.check(r.g.AddEdge(strconv.Itoa(e[0]), strconv.Itoa(e[1]), true, map[string]string{"style": "dashed"}))
	}
}

func (r *renderer) check(err error) {
	if r.err == nil {
		r.err = err
	}
}

// label builds an HTML-like label: the step line, then reason and
// attached text in a smaller font.
func label(rec workflow.StepRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<%s (%s)", html.EscapeString(rec.Description), rec.Outcome)

	var small []string
	if rec.Reason != "" {
		small = append(small, rec.Reason)
	}
	for _, info := range rec.Info {
		if info.Kind == workflow.InfoText {
			small = append(small, info.Text)
		}
	}
	for _, line := range small {
		line = strings.ReplaceAll(html.EscapeString(line), "\n", "<BR/>")
		fmt.Fprintf(&b, `<BR/><FONT POINT-SIZE="10">%s</FONT>`, line)
	}
	b.WriteByte('>')
	return b.String()
}

func color(rec workflow.StepRecord) string {
	switch rec.Outcome {
	case workflow.OutcomeSkipped:
		return ColorSkipped
	case workflow.OutcomeFailed:
		return ColorFailed
	}
	if rec.Warnings > 0 {
		return ColorWarning
	}
	return ColorOK
}

func iteration(rec workflow.StepRecord) bool { return has(rec, workflow.InfoLoopIteration) }

func has(rec workflow.StepRecord, kind workflow.InfoKind) bool {
	for _, info := range rec.Info {
		if info.Kind == kind {
			return true
		}
	}
	return false
}

var _ workflow.Formatter[string] = Formatter{}
