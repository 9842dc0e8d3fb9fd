package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/workflow/pkg/definition"
	"github.com/ravi-parthasarathy/workflow/pkg/scheduler"
)

var errNoSchedule = errors.New("no schedule: pass --cron or set 'schedule' in the definition")

// ─── schedule ─────────────────────────────────────────────────────────────────

func scheduleCmd() *cobra.Command {
	var (
		opts    runOptions
		spec    string
		maxRuns int
	)

	cmd := &cobra.Command{
		Use:   "schedule <workflow.yaml>",
		Short: "Execute a workflow repeatedly on a cron schedule",
		Long: `schedule runs the workflow at every activation of a cron expression until
interrupted. The expression comes from --cron or the 'schedule' field of the
definition and accepts five fields or descriptors such as @hourly and
@every 5m. Every run starts from the seed values given with --set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := parseSets(opts.sets)
			if err != nil {
				return err
			}
			r, err := newRunner(args[0])
			if err != nil {
				return err
			}
			sched, err := scheduleFor(spec, r.def)
			if err != nil {
				return err
			}

			ctx := signalContext(cmd.Context())
			logger := slog.Default().With("workflow", r.def.Name)
			s := scheduler.New(sched, scheduler.WithMaxRuns(maxRuns), scheduler.WithLogger(logger))
			logger.Info("schedule started", "next", s.Next())

			runs := s.Run(ctx, func(ctx context.Context, run int) error {
				fmt.Fprintf(cmd.OutOrStdout(), "=== run %d ===\n", run)
				return r.run(ctx, seed, &opts, cmd.OutOrStdout())
			})
			logger.Info("schedule stopped", "runs", runs)
			return nil
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&spec, "cron", "", "cron expression, overrides the definition's schedule")
	cmd.Flags().IntVar(&maxRuns, "max-runs", 0, "stop after this many runs (0 runs until interrupted)")
	return cmd
}

// scheduleFor parses the flag value, falling back to the definition.
func scheduleFor(flag string, def *definition.Definition) (scheduler.Schedule, error) {
	spec := flag
	if spec == "" {
		spec = def.Schedule
	}
	if spec == "" {
		return nil, errNoSchedule
	}
	return definition.ParseSchedule(spec)
}
