package engine

import "time"

// RunStatus represents the terminal state of a workflow run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is in progress.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted indicates the run traversed the graph to the end.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed indicates the run was aborted or ended on a failure.
	RunStatusFailed RunStatus = "failed"
)

// StepStatus represents the state of a single step attempt.
type StepStatus string

const (
	// StepStatusRunning indicates the attempt is in progress.
	StepStatusRunning StepStatus = "running"
	// StepStatusPassed indicates every spec stage passed.
	StepStatusPassed StepStatus = "passed"
	// StepStatusFailed indicates a spec stage or the agent failed.
	StepStatusFailed StepStatus = "failed"
)

// SpecResult is the outcome of evaluating a single spec function.
// Results are produced fresh on every evaluation and never mutated.
// SuggestedFix enables self-correcting agents: on retry the failure text
// is surfaced back into the run state.
type SpecResult struct {
	RuleID       string   `json:"rule_id"`
	Passed       bool     `json:"passed"`
	Message      string   `json:"message"`
	SuggestedFix string   `json:"suggested_fix,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// StepAttempt records one execution of one step at one attempt number.
// It is mutated only by the step executor during the attempt and is
// immutable once handed to the orchestrator.
type StepAttempt struct {
	StepID  string     `json:"step_id"`
	AgentID string     `json:"agent_id"`
	Attempt int        `json:"attempt"`
	Status  StepStatus `json:"status"`

	PreResults       []SpecResult `json:"pre_results,omitempty"`
	PostResults      []SpecResult `json:"post_results,omitempty"`
	InvariantResults []SpecResult `json:"invariant_results,omitempty"`

	// StateBefore and StateAfter are JSON deep-copy snapshots of the run's
	// working data. StateAfter is nil when the attempt failed before the
	// agent ran.
	StateBefore map[string]any `json:"state_before,omitempty"`
	StateAfter  map[string]any `json:"state_after,omitempty"`

	// Traces holds the trace entries the agent appended during this
	// attempt, so persistence can attribute them to it.
	Traces []TraceEntry `json:"traces,omitempty"`

	// Fingerprint is set only when a post-spec failure triggered loop
	// detection.
	Fingerprint string `json:"fingerprint,omitempty"`

	Error string `json:"error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// RunRecord is the aggregate result of a full workflow run. A record is
// always produced, with a terminal status and a human-readable error on
// failure; no error escapes the orchestrator's Run call.
type RunRecord struct {
	RunID        string         `json:"run_id"`
	WorkflowName string         `json:"workflow_name"`
	Status       RunStatus      `json:"status"`
	Steps        []*StepAttempt `json:"steps"`
	Error        string         `json:"error,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
}
