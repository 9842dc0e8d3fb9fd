package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/awalterschulze/gographviz"
	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/workflow/pkg/definition"
)

func graphCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph <workflow.yaml>",
		Short: "Print the structure of a workflow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := definition.Load(args[0])
			if err != nil {
				return err
			}
			switch strings.ToLower(format) {
			case "dot":
				out, err := renderDOT(def)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
			case "text", "":
				fmt.Fprint(cmd.OutOrStdout(), renderText(def))
			default:
				return fmt.Errorf("unknown format %q: use text or dot", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text or dot")
	return cmd
}

// truncate shortens s to maxLen runes, appending "…" if needed.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "…"
}

// stepLabel is the one-line summary of a step used by both renderers.
func stepLabel(s definition.StepDef) string {
	var b strings.Builder
	b.WriteString(s.Kind)
	if s.Description != "" {
		fmt.Fprintf(&b, " %q", truncate(s.Description, 60))
	}
	if s.Hard {
		b.WriteString(" [hard]")
	}
	switch {
	case s.While != "":
		fmt.Fprintf(&b, " while %s", truncate(s.While, 60))
	case s.Over != "":
		as := s.As
		if as == "" {
			as = "item"
		}
		fmt.Fprintf(&b, " for each %s in %s", as, s.Over)
	case s.Path != "":
		fmt.Fprintf(&b, " -> %s", s.Path)
	}
	if s.When != "" {
		fmt.Fprintf(&b, " when %s", truncate(s.When, 60))
	}
	return b.String()
}

func countSteps(defs []definition.StepDef) int {
	n := 0
	for _, s := range defs {
		n++
		n += countSteps(s.Steps)
		if s.Workflow != nil {
			for _, st := range s.Workflow.Stages() {
				n += countSteps(st.Steps)
			}
		}
	}
	return n
}

// renderText produces an indented outline of the stages and their steps.
func renderText(def *definition.Definition) string {
	var sb strings.Builder
	total := 0
	for _, st := range def.Stages() {
		total += countSteps(st.Steps)
	}
	fmt.Fprintf(&sb, "Workflow: %s  (%d steps)\n", def.Name, total)
	if def.Schedule != "" {
		fmt.Fprintf(&sb, "Schedule: %s\n", def.Schedule)
	}
	writeStages(&sb, def, 0)
	return sb.String()
}

func writeStages(sb *strings.Builder, def *definition.Definition, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, st := range def.Stages() {
		if len(st.Steps) == 0 {
			continue
		}
		fmt.Fprintf(sb, "\n%s%s:\n", indent, st.Name)
		writeSteps(sb, st.Steps, depth+1)
	}
}

func writeSteps(sb *strings.Builder, defs []definition.StepDef, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, s := range defs {
		fmt.Fprintf(sb, "%s- %s\n", indent, stepLabel(s))
		writeSteps(sb, s.Steps, depth+1)
		if s.Workflow != nil {
			fmt.Fprintf(sb, "%s  workflow %s:", indent, s.Workflow.Name)
			writeStages(sb, s.Workflow, depth+2)
		}
	}
}

// dotGraph builds the structure graph: one cluster per stage, loops and
// inline workflows as nested clusters, steps linked in execution order.
type dotGraph struct {
	g        *gographviz.Escape
	err      error
	nodes    int
	clusters int
}

// renderDOT produces a DOT digraph of the definition.
func renderDOT(def *definition.Definition) (string, error) {
	g := gographviz.NewEscape()
	name := def.Name
	if name == "" {
		name = "workflow"
	}
	d := &dotGraph{g: g}
	d.check(g.SetName(name))
	d.check(g.SetDir(true))
	d.workflow(name, def)
	for i := 0; i+1 < d.nodes; i++ {
		d.check(g.AddEdge(strconv.Itoa(i), strconv.Itoa(i+1), true, nil))
	}
	if d.err != nil {
		return "", fmt.Errorf("render graph for %q: %w", def.Name, d.err)
	}
	return g.String(), nil
}

func (d *dotGraph) workflow(parent string, def *definition.Definition) {
	d.node(parent, def.Name, "ellipse")
	for _, st := range def.Stages() {
		if len(st.Steps) == 0 {
			continue
		}
		d.steps(d.cluster(parent, st.Name), st.Steps)
	}
}

func (d *dotGraph) steps(parent string, defs []definition.StepDef) {
	for _, s := range defs {
		d.node(parent, stepLabel(s), "box")
		if len(s.Steps) > 0 {
			d.steps(d.cluster(parent, "Loop"), s.Steps)
		}
		if s.Workflow != nil {
			d.workflow(d.cluster(parent, "Nested workflow"), s.Workflow)
		}
	}
}

func (d *dotGraph) node(parent, label, shape string) {
	id := strconv.Itoa(d.nodes)
	d.nodes++
	d.check(d.g.AddNode(parent, id, map[string]string{"label": label, "shape": shape}))
}

func (d *dotGraph) cluster(parent, label string) string {
	name := fmt.Sprintf("cluster_%d", d.clusters)
	d.clusters++
	d.check(d.g.AddSubGraph(parent, name, map[string]string{"label": label}))
	return name
}

func (d *dotGraph) check(err error) {
	if d.err == nil {
		d.err = err
	}
}
