package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ravi-parthasarathy/workflow/pkg/definition"
	"github.com/ravi-parthasarathy/workflow/pkg/definition/steps"
	"github.com/ravi-parthasarathy/workflow/pkg/metrics"
	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
	"github.com/ravi-parthasarathy/workflow/pkg/workflow/graphviz"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var logLevel, logFormat string

	root := &cobra.Command{
		Use:   "workflow",
		Short: "Staged workflow runner",
		Long: `workflow executes staged workflows described in YAML.

A workflow runs its prepare, validate, before and process stages in order,
then on_error or on_success, then after. Every step is recorded in an
execution log that is printed when the run finishes.`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return initLogger(logLevel, logFormat)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", envOr("WORKFLOW_LOG_LEVEL", "warn"), "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", envOr("WORKFLOW_LOG_FORMAT", "text"), "log format: text or json")

	root.AddCommand(runCmd())
	root.AddCommand(lintCmd())
	root.AddCommand(graphCmd())
	root.AddCommand(scheduleCmd())
	root.AddCommand(kindsCmd())
	return root
}

// ─── run ──────────────────────────────────────────────────────────────────────

type runOptions struct {
	sets          []string
	format        string
	noThrow       bool
	outputContext string
	metricsFile   string
}

func (o *runOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&o.sets, "set", nil, "seed a context value (key=value, value parsed as YAML), repeatable")
	cmd.Flags().StringVar(&o.format, "format", "text", "execution log format: text, dot or none")
	cmd.Flags().BoolVar(&o.noThrow, "no-throw", false, "exit successfully even when the workflow fails")
	cmd.Flags().StringVar(&o.outputContext, "output-context", "", "write the final context as JSON to this path")
	cmd.Flags().StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this path")
}

func runCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Execute a workflow once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := parseSets(opts.sets)
			if err != nil {
				return err
			}
			r, err := newRunner(args[0])
			if err != nil {
				return err
			}
			ctx := signalContext(cmd.Context())
			return r.run(ctx, seed, &opts, cmd.OutOrStdout())
		},
	}
	opts.bind(cmd)
	return cmd
}

// runner holds a compiled workflow and the metrics it reports to.
type runner struct {
	wf       *workflow.Workflow
	def      *definition.Definition
	registry *prometheus.Registry
	metrics  *metrics.Registry
}

func newRunner(path string) (*runner, error) {
	reg := prometheus.NewRegistry()
	c := newCompiler(reg)
	wf, def, err := c.CompileFile(path)
	if err != nil {
		return nil, err
	}
	return &runner{wf: wf, def: def, registry: reg, metrics: c.metrics}, nil
}

type compiler struct {
	*definition.Compiler
	metrics *metrics.Registry
}

// newCompiler returns a compiler with the built-in kinds whose metrics
// middleware reports to reg.
func newCompiler(reg *prometheus.Registry) compiler {
	m := metrics.NewRegistry(reg)
	return compiler{
		Compiler: &definition.Compiler{
			Registry:   steps.NewRegistry(),
			Middleware: map[string]workflow.Middleware{definition.MiddlewareMetrics: m.Middleware()},
			Logger:     slog.Default(),
		},
		metrics: m,
	}
}

func (r *runner) run(ctx context.Context, seed map[string]any, opts *runOptions, out io.Writer) error {
	res, err := r.wf.Execute(ctx, workflow.NewStoreFrom(seed), workflow.ThrowOnFailure(false))
	if err != nil {
		return err
	}
	r.metrics.ObserveResult(res)

	if err := printResult(out, res, opts.format); err != nil {
		return err
	}
	if err := writeOutputContext(opts.outputContext, res.Container()); err != nil {
		return err
	}
	if opts.metricsFile != "" {
		if err := metrics.WriteTextfile(opts.metricsFile, r.registry); err != nil {
			return err
		}
	}

	if !res.Success() && !res.Skipped() && !opts.noThrow {
		return fmt.Errorf("workflow %q failed: %w", res.Name(), res.Err())
	}
	return nil
}

func printResult(w io.Writer, res *workflow.Result, format string) error {
	switch strings.ToLower(format) {
	case "text", "":
		_, err := io.WriteString(w, res.Debug()+"\n")
		return err
	case "dot":
		g, err := graphviz.Graph(res.Name(), res.Log().Stages())
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, g.String())
		return err
	case "none":
		return nil
	}
	return fmt.Errorf("unknown format %q: use text, dot or none", format)
}

// ─── lint ─────────────────────────────────────────────────────────────────────

func lintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint <workflow.yaml>",
		Short: "Validate a workflow definition without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := definition.Load(args[0])
			if err != nil {
				return err
			}
			// Compiling lints the definition and resolves nested files.
			if _, err := newCompiler(prometheus.NewRegistry()).Compile(def); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: workflow %q is valid\n", def.Name)
			return nil
		},
	}
}

// ─── kinds ────────────────────────────────────────────────────────────────────

func kindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the step kinds available in definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, k := range steps.Kinds() {
				line := k.Name
				if len(k.Required) > 0 {
					line += "  (" + strings.Join(k.Required, ", ") + ")"
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
}

// ─── helpers ─────────────────────────────────────────────────────────────────

// parseSets turns key=value flags into a seed map. Values are decoded as
// YAML scalars or collections, so 3 is an int and [a, b] a list.
func parseSets(sets []string) (map[string]any, error) {
	seed := make(map[string]any, len(sets))
	for _, s := range sets {
		key, raw, ok := strings.Cut(s, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: want key=value", s)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("invalid --set %q: %w", s, err)
		}
		if v == nil && raw != "" && raw != "null" && raw != "~" {
			v = raw
		}
		seed[key] = v
	}
	return seed, nil
}

// writeOutputContext writes the context snapshot as indented JSON. An
// empty path is a no-op.
func writeOutputContext(path string, c workflow.Container) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(c.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write context: %w", err)
	}
	return nil
}

// initLogger installs the default slog logger on stderr.
func initLogger(level, format string) error {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "text":
		h = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		select {
		case <-ch:
			fmt.Fprintln(os.Stderr, "\n[workflow] interrupted, cancelling run")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
