// Package scheduler runs a job repeatedly on a cron schedule.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule yields activation times. Parsed cron expressions satisfy it.
type Schedule = cron.Schedule

// Job is one scheduled execution. run counts from 1.
type Job func(ctx context.Context, run int) error

// Scheduler fires a job at the times produced by a cron schedule. Runs
// never overlap: a run that outlasts the next activation delays it.
type Scheduler struct {
	schedule Schedule
	maxRuns  int
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxRuns stops the scheduler after n runs. Zero means no limit.
func WithMaxRuns(n int) Option {
	return func(s *Scheduler) { s.maxRuns = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New creates a scheduler for schedule.
func New(schedule Schedule, opts ...Option) *Scheduler {
	s := &Scheduler{schedule: schedule, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Next returns the next activation after the current time.
func (s *Scheduler) Next() time.Time {
	return s.schedule.Next(s.now())
}

// Run blocks until ctx is done or the run limit is reached and returns the
// number of completed runs. Job errors are logged and do not stop the
// schedule.
func (s *Scheduler) Run(ctx context.Context, job Job) int {
	runs := 0
	for {
		if ctx.Err() != nil || (s.maxRuns > 0 && runs >= s.maxRuns) {
			return runs
		}

		next := s.Next()
		if next.IsZero() {
			s.logger.Warn("schedule has no further activations")
			return runs
		}
		s.logger.Debug("waiting for next run", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return runs
		case <-timer.C:
		}

		runs++
		start := s.now()
		if err := job(ctx, runs); err != nil {
			s.logger.Error("scheduled run failed", "run", runs, "error", err)
		} else {
			s.logger.Info("scheduled run finished", "run", runs, "duration", s.now().Sub(start))
		}
	}
}
