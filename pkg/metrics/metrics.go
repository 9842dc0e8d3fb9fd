// Package metrics provides Prometheus instrumentation for workflow runs.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
)

const namespace = "workflow"

// Registry holds the metric instances of the engine.
type Registry struct {
	StepsTotal   *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
	RunsTotal    *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	RunWarnings  *prometheus.CounterVec
}

// NewRegistry creates and registers the metrics with reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		StepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "step",
				Name:      "executions_total",
				Help:      "Total number of step executions by outcome",
			},
			[]string{"workflow", "stage", "outcome"},
		),

		StepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "step",
				Name:      "duration_seconds",
				Help:      "Time spent executing a step",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"workflow", "stage"},
		),

		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "completed_total",
				Help:      "Total number of finished workflow runs by outcome",
			},
			[]string{"workflow", "outcome"},
		),

		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "duration_seconds",
				Help:      "Wall time of a workflow run",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"workflow"},
		),

		RunWarnings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "warnings_total",
				Help:      "Total number of warnings emitted by workflow runs",
			},
			[]string{"workflow"},
		),
	}
}

// Middleware counts and times every step, loop children included.
func (r *Registry) Middleware() workflow.Middleware {
	return workflow.MiddlewareFunc(func(ctx context.Context, next workflow.Next, ctl *workflow.Control, _ workflow.Container, _ workflow.Step) error {
		start := time.Now()
		err := next(ctx)
		stage := ctl.Stage().String()
		r.StepDuration.WithLabelValues(ctl.Workflow(), stage).Observe(time.Since(start).Seconds())
		r.StepsTotal.WithLabelValues(ctl.Workflow(), stage, string(workflow.OutcomeOf(err))).Inc()
		return err
	})
}

// ObserveResult records a finished run.
func (r *Registry) ObserveResult(res *workflow.Result) {
	r.RunsTotal.WithLabelValues(res.Name(), string(RunOutcome(res))).Inc()
	r.RunDuration.WithLabelValues(res.Name()).Observe(res.Duration().Seconds())
	if n := res.Log().WarningCount(); n > 0 {
		r.RunWarnings.WithLabelValues(res.Name()).Add(float64(n))
	}
}

// RunOutcome maps a result onto the outcome vocabulary of the step log.
func RunOutcome(res *workflow.Result) workflow.Outcome {
	switch {
	case res.Skipped():
		return workflow.OutcomeSkipped
	case res.Success():
		return workflow.OutcomeOK
	default:
		return workflow.OutcomeFailed
	}
}

// WriteTextfile writes everything g gathers to path in the text exposition
// format, for the node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
