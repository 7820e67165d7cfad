package store

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/specflow/engine"
)

// runRow is the persisted form of an engine.RunRecord header.
type runRow struct {
	RunID        string `gorm:"primaryKey;size:36"`
	WorkflowName string `gorm:"size:128;index"`
	Status       string `gorm:"size:16;index"`
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
}

func (runRow) TableName() string { return "runs" }

// attemptRow is one step attempt. Spec results, state snapshots, and traces
// are stored as JSON text; SQLite has no native document type and the audit
// trail is read back whole, never queried by inner fields.
type attemptRow struct {
	ID      uint   `gorm:"primaryKey;autoIncrement"`
	RunID   string `gorm:"size:36;index"`
	StepID  string `gorm:"size:128"`
	AgentID string `gorm:"size:128"`
	Attempt int
	Status  string `gorm:"size:16"`
	Error   string
	// Fingerprint is empty unless a post-spec failure was fingerprinted.
	Fingerprint string `gorm:"size:32"`

	PreResults       string
	PostResults      string
	InvariantResults string
	StateBefore      string
	StateAfter       string
	Traces           string

	StartedAt  time.Time
	FinishedAt time.Time
}

func (attemptRow) TableName() string { return "step_attempts" }

// itemRow is one extracted item, flattened for listing and reporting.
type itemRow struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	RunID       string `gorm:"size:36;index"`
	Title       string `gorm:"size:256"`
	ItemType    string `gorm:"size:64"`
	Description string
	Tags        string
	Confidence  float64
	SourceFile  string `gorm:"size:256"`
}

func (itemRow) TableName() string { return "extracted_items" }

func toJSON(v any) string {
	if v == nil {
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

func fromJSON[T any](s string) T {
	var v T
	if s != "" {
		_ = json.Unmarshal([]byte(s), &v)
	}
	return v
}

func newAttemptRow(runID string, a *engine.StepAttempt) attemptRow {
	return attemptRow{
		RunID:            runID,
		StepID:           a.StepID,
		AgentID:          a.AgentID,
		Attempt:          a.Attempt,
		Status:           string(a.Status),
		Error:            a.Error,
		Fingerprint:      a.Fingerprint,
		PreResults:       toJSON(a.PreResults),
		PostResults:      toJSON(a.PostResults),
		InvariantResults: toJSON(a.InvariantResults),
		StateBefore:      toJSON(a.StateBefore),
		StateAfter:       toJSON(a.StateAfter),
		Traces:           toJSON(a.Traces),
		StartedAt:        a.StartedAt,
		FinishedAt:       a.FinishedAt,
	}
}

func (r attemptRow) toAttempt() *engine.StepAttempt {
	return &engine.StepAttempt{
		StepID:           r.StepID,
		AgentID:          r.AgentID,
		Attempt:          r.Attempt,
		Status:           engine.StepStatus(r.Status),
		Error:            r.Error,
		Fingerprint:      r.Fingerprint,
		PreResults:       fromJSON[[]engine.SpecResult](r.PreResults),
		PostResults:      fromJSON[[]engine.SpecResult](r.PostResults),
		InvariantResults: fromJSON[[]engine.SpecResult](r.InvariantResults),
		StateBefore:      fromJSON[map[string]any](r.StateBefore),
		StateAfter:       fromJSON[map[string]any](r.StateAfter),
		Traces:           fromJSON[[]engine.TraceEntry](r.Traces),
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
	}
}
