package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/specflow/engine"
)

func newTestCollector() *Collector {
	return NewCollector("specflow_test", prometheus.NewRegistry(), nil)
}

func TestNewCollector(t *testing.T) {
	collector := newTestCollector()
	require.NotNil(t, collector)
	assert.NotNil(t, collector.runsTotal)
	assert.NotNil(t, collector.runDuration)
	assert.NotNil(t, collector.stepAttempts)
	assert.NotNil(t, collector.specFailures)
}

func TestCollector_ObserveRun(t *testing.T) {
	collector := newTestCollector()

	now := time.Now()
	collector.ObserveRun(&engine.RunRecord{
		WorkflowName: "text_extraction",
		Status:       engine.RunStatusCompleted,
		StartedAt:    now,
		FinishedAt:   now.Add(2 * time.Second),
	})
	collector.ObserveRun(&engine.RunRecord{
		WorkflowName: "text_extraction",
		Status:       engine.RunStatusFailed,
		StartedAt:    now,
		FinishedAt:   now.Add(time.Second),
	})

	completed := testutil.ToFloat64(collector.runsTotal.WithLabelValues("text_extraction", "completed"))
	failed := testutil.ToFloat64(collector.runsTotal.WithLabelValues("text_extraction", "failed"))
	assert.Equal(t, 1.0, completed)
	assert.Equal(t, 1.0, failed)
}

func TestCollector_ObserveAttempt(t *testing.T) {
	collector := newTestCollector()

	now := time.Now()
	collector.ObserveAttempt("text_extraction", &engine.StepAttempt{
		StepID:     "extract",
		Attempt:    1,
		Status:     engine.StepStatusFailed,
		StartedAt:  now,
		FinishedAt: now.Add(100 * time.Millisecond),
		PostResults: []engine.SpecResult{
			{RuleID: "extract_post", Passed: false, Message: "no items were extracted"},
		},
	})
	collector.ObserveAttempt("text_extraction", &engine.StepAttempt{
		StepID:     "extract",
		Attempt:    2,
		Status:     engine.StepStatusPassed,
		StartedAt:  now,
		FinishedAt: now.Add(100 * time.Millisecond),
		PostResults: []engine.SpecResult{
			{RuleID: "extract_post", Passed: true},
		},
	})

	failed := testutil.ToFloat64(collector.stepAttempts.WithLabelValues("text_extraction", "extract", "failed"))
	passed := testutil.ToFloat64(collector.stepAttempts.WithLabelValues("text_extraction", "extract", "passed"))
	retries := testutil.ToFloat64(collector.retriesTotal.WithLabelValues("text_extraction", "extract"))
	ruleFails := testutil.ToFloat64(collector.specFailures.WithLabelValues("text_extraction", "extract", "extract_post", "post"))
	assert.Equal(t, 1.0, failed)
	assert.Equal(t, 1.0, passed)
	assert.Equal(t, 1.0, retries)
	assert.Equal(t, 1.0, ruleFails)
}

func TestCollector_Callback(t *testing.T) {
	collector := newTestCollector()
	cb := collector.Callback("text_extraction")

	now := time.Now()
	cb(&engine.StepAttempt{
		StepID:     "intake",
		Attempt:    1,
		Status:     engine.StepStatusPassed,
		StartedAt:  now,
		FinishedAt: now,
	})

	count := testutil.ToFloat64(collector.stepAttempts.WithLabelValues("text_extraction", "intake", "passed"))
	assert.Equal(t, 1.0, count)
}
