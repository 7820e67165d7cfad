// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/specflow/engine"
)

// Collector exports workflow execution metrics. All observation methods are
// safe for concurrent use; the underlying prometheus vectors handle locking.
type Collector struct {
	runsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	stepAttempts *prometheus.CounterVec
	specFailures *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	retriesTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers the workflow metric vectors on reg. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.runsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of workflow runs",
		},
		[]string{"workflow", "status"},
	)

	c.runDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"workflow", "status"},
	)

	c.stepAttempts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_attempts_total",
			Help:      "Total number of step attempts",
		},
		[]string{"workflow", "step", "status"},
	)

	c.specFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spec_failures_total",
			Help:      "Total number of failed spec rule evaluations",
		},
		[]string{"workflow", "step", "rule", "phase"},
	)

	c.stepDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Step attempt duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"workflow", "step"},
	)

	c.retriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_retries_total",
			Help:      "Total number of step retries",
		},
		[]string{"workflow", "step"},
	)

	return c
}

// ObserveRun records the outcome and duration of a finished run.
func (c *Collector) ObserveRun(record *engine.RunRecord) {
	status := string(record.Status)
	c.runsTotal.WithLabelValues(record.WorkflowName, status).Inc()

	duration := record.FinishedAt.Sub(record.StartedAt)
	if duration < 0 {
		duration = 0
	}
	c.runDuration.WithLabelValues(record.WorkflowName, status).Observe(duration.Seconds())

	c.logger.Debug("run observed",
		zap.String("workflow", record.WorkflowName),
		zap.String("status", status),
		zap.Duration("duration", duration),
	)
}

// ObserveAttempt records one step attempt: its status, duration, any failed
// spec rules, and whether it was a retry.
func (c *Collector) ObserveAttempt(workflow string, attempt *engine.StepAttempt) {
	status := string(attempt.Status)
	c.stepAttempts.WithLabelValues(workflow, attempt.StepID, status).Inc()

	duration := attempt.FinishedAt.Sub(attempt.StartedAt)
	if duration < 0 {
		duration = 0
	}
	c.stepDuration.WithLabelValues(workflow, attempt.StepID).Observe(duration.Seconds())

	if attempt.Attempt > 1 {
		c.retriesTotal.WithLabelValues(workflow, attempt.StepID).Inc()
	}

	c.observeSpecFailures(workflow, attempt.StepID, "pre", attempt.PreResults)
	c.observeSpecFailures(workflow, attempt.StepID, "post", attempt.PostResults)
	c.observeSpecFailures(workflow, attempt.StepID, "invariant", attempt.InvariantResults)
}

func (c *Collector) observeSpecFailures(workflow, step, phase string, results []engine.SpecResult) {
	for _, res := range results {
		if res.Passed {
			continue
		}
		c.specFailures.WithLabelValues(workflow, step, res.RuleID, phase).Inc()
	}
}

// Callback returns a step callback that feeds the collector, for wiring
// straight into an orchestrator run.
func (c *Collector) Callback(workflow string) func(*engine.StepAttempt) {
	return func(attempt *engine.StepAttempt) {
		c.ObserveAttempt(workflow, attempt)
	}
}
