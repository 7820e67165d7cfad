package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Default budgets applied when the caller does not override them.
const (
	DefaultMaxRetriesPerStep = 3
	DefaultMaxTotalSteps     = 20
)

// Budget names the engine interprets. All other budget keys are opaque
// configuration for callers.
const (
	BudgetMaxTotalSteps     = "max_total_steps"
	BudgetMaxRetriesPerStep = "max_retries_per_step"
)

// Working-data keys the orchestrator writes before a retry so agents can
// adapt to the previous failure.
const (
	KeyLastError      = "_last_error"
	KeyLastFailedStep = "_last_failed_step"
	KeyRetryAttempt   = "_retry_attempt"
)

// TraceEntry is a diagnostic event emitted by an agent. Entries are
// schemaless; AddTrace stamps a timestamp if the agent did not.
type TraceEntry map[string]any

// State is the shared mutable container for one workflow run. It is owned
// exclusively by the orchestrator for the run's duration and handed to one
// agent at a time, never concurrently. Keys in Data form a flat namespace
// shared by convention between steps.
type State struct {
	RunID     string
	Data      map[string]any
	Artifacts map[string]any
	Trace     []TraceEntry
	Budgets   map[string]int
	Config    map[string]any
}

// NewState creates a run state with a fresh run ID and default budgets.
func NewState() *State {
	return &State{
		RunID:     uuid.NewString(),
		Data:      make(map[string]any),
		Artifacts: make(map[string]any),
		Budgets: map[string]int{
			BudgetMaxRetriesPerStep: DefaultMaxRetriesPerStep,
			BudgetMaxTotalSteps:     DefaultMaxTotalSteps,
		},
		Config: make(map[string]any),
	}
}

// AddTrace appends a trace entry, stamping a timestamp when absent.
func (s *State) AddTrace(entry TraceEntry) {
	if entry == nil {
		entry = TraceEntry{}
	}
	if _, ok := entry["timestamp"]; !ok {
		entry["timestamp"] = time.Now().Format(time.RFC3339Nano)
	}
	s.Trace = append(s.Trace, entry)
}

// Budget returns the named budget, falling back to def when unset.
func (s *State) Budget(name string, def int) int {
	if v, ok := s.Budgets[name]; ok {
		return v
	}
	return def
}

// SnapshotData returns a JSON deep copy of Data, safe to retain after the
// run mutates the original.
func (s *State) SnapshotData() map[string]any {
	return snapshotMap(s.Data)
}

// SnapshotArtifacts returns a JSON deep copy of Artifacts.
func (s *State) SnapshotArtifacts() map[string]any {
	return snapshotMap(s.Artifacts)
}

// DataKeys returns the current set of working-data keys.
func (s *State) DataKeys() []string {
	keys := make([]string, 0, len(s.Data))
	for k := range s.Data {
		keys = append(keys, k)
	}
	return keys
}

// GetString reads a string value from Data.
func (s *State) GetString(key string) (string, bool) {
	v, ok := s.Data[key].(string)
	return v, ok
}

// GetSlice reads a slice value from Data.
func (s *State) GetSlice(key string) ([]any, bool) {
	v, ok := s.Data[key].([]any)
	return v, ok
}

// GetConfigString reads a string value from Config.
func (s *State) GetConfigString(key string) (string, bool) {
	v, ok := s.Config[key].(string)
	return v, ok
}

// snapshotMap deep-copies m through a JSON round trip. Values that are not
// JSON-serializable are stringified rather than dropped, matching how the
// audit trail stores them.
func snapshotMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		safe := make(map[string]any, len(m))
		for k, v := range m {
			safe[k] = fmt.Sprintf("%v", v)
		}
		raw, _ = json.Marshal(safe)
	}
	out := make(map[string]any, len(m))
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}
