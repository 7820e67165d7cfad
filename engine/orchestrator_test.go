package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
)

// pipelineFixture wires the canonical three-step linear workflow
// (intake -> extract -> write) with specs that check the convention keys
// each agent is expected to populate.
type pipelineFixture struct {
	graph  *Graph
	specs  *SpecRegistry
	agents *AgentRegistry
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	graph, err := NewGraph(GraphSpec{
		Name:  "extraction",
		Entry: "intake",
		Steps: []StepDefinition{
			{Name: "intake", AgentName: "intake_agent", PostSpecs: []string{"intake_post"}, Retry: RetryPolicy{MaxAttempts: 1}},
			{Name: "extract", AgentName: "extract_agent", PreSpecs: []string{"intake_post"}, PostSpecs: []string{"extract_post"}, Retry: RetryPolicy{MaxAttempts: 2}},
			{Name: "write", AgentName: "write_agent", PostSpecs: []string{"write_post"}, Retry: RetryPolicy{MaxAttempts: 1}},
		},
		Edges: []Edge{
			{From: "intake", To: "extract", Condition: OnPass},
			{From: "extract", To: "write", Condition: OnPass},
			{From: "write", To: EndStep, Condition: OnPass},
		},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("graph: %v", err)
	}

	specs := NewSpecRegistry()
	requireKey := func(rule, key string) SpecFunc {
		return func(s *State) SpecResult {
			if _, ok := s.Data[key]; !ok {
				return SpecResult{RuleID: rule, Passed: false, Message: key + " is missing"}
			}
			return SpecResult{RuleID: rule, Passed: true, Message: key + " present"}
		}
	}
	for rule, key := range map[string]string{
		"intake_post":  "loaded_files",
		"extract_post": "extracted_items",
		"write_post":   "written_files",
	} {
		if err := specs.Register(rule, requireKey(rule, key)); err != nil {
			t.Fatalf("register %s: %v", rule, err)
		}
	}

	agents := NewAgentRegistry()
	setKey := func(key string) func(context.Context, *State) error {
		return func(_ context.Context, s *State) error {
			s.Data[key] = []any{"stub"}
			return nil
		}
	}
	for name, key := range map[string]string{
		"intake_agent":  "loaded_files",
		"extract_agent": "extracted_items",
		"write_agent":   "written_files",
	} {
		if err := agents.Register(name, NewAgentFunc(name, setKey(key))); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	return &pipelineFixture{graph: graph, specs: specs, agents: agents}
}

func (f *pipelineFixture) replaceAgent(t *testing.T, name string, fn func(context.Context, *State) error) {
	t.Helper()
	agents := NewAgentRegistry()
	for _, existing := range f.agents.Names() {
		if existing == name {
			continue
		}
		agent, err := f.agents.Get(existing)
		if err != nil {
			t.Fatalf("get %s: %v", existing, err)
		}
		if err := agents.Register(existing, agent); err != nil {
			t.Fatalf("register %s: %v", existing, err)
		}
	}
	if err := agents.Register(name, NewAgentFunc(name, fn)); err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	f.agents = agents
}

func TestOrchestrator_LinearRunCompletes(t *testing.T) {
	f := newPipelineFixture(t)
	o := NewOrchestrator(f.graph, f.specs, f.agents, zap.NewNop())

	var seen []string
	record := o.Run(context.Background(), NewState(), func(a *StepAttempt) {
		seen = append(seen, a.StepID)
	})

	if record.Status != RunStatusCompleted {
		t.Fatalf("expected completed, got %s (error: %s)", record.Status, record.Error)
	}
	if len(record.Steps) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(record.Steps))
	}
	for _, att := range record.Steps {
		if att.Status != StepStatusPassed {
			t.Errorf("attempt %s not passed: %s", att.StepID, att.Error)
		}
		if att.StateBefore == nil || att.StateAfter == nil {
			t.Errorf("attempt %s missing snapshots", att.StepID)
		}
	}

	want := []string{"intake", "extract", "write"}
	if len(seen) != 3 || seen[0] != want[0] || seen[1] != want[1] || seen[2] != want[2] {
		t.Errorf("callback order %v, want %v", seen, want)
	}
}

func TestOrchestrator_FailedStepStopsDownstream(t *testing.T) {
	f := newPipelineFixture(t)
	// Extract never populates its required output key. Each failure gets
	// a distinct fingerprint because the agent keeps adding keys.
	calls := 0
	f.replaceAgent(t, "extract_agent", func(_ context.Context, s *State) error {
		calls++
		s.Data["noise_"+strings.Repeat("x", calls)] = true
		return nil
	})

	o := NewOrchestrator(f.graph, f.specs, f.agents, zap.NewNop())
	record := o.Run(context.Background(), NewState(), nil)

	if record.Status != RunStatusFailed {
		t.Fatalf("expected failed run, got %s", record.Status)
	}
	if calls != 2 {
		t.Errorf("expected 2 extract attempts, got %d", calls)
	}
	if len(record.Steps) != 3 { // 1 intake + 2 extract, no write
		t.Fatalf("expected 3 attempts, got %d", len(record.Steps))
	}
	for _, att := range record.Steps {
		if att.StepID == "write" {
			t.Error("write must not run after extract exhausted its attempts")
		}
	}
	extract := record.Steps[1]
	if extract.Status != StepStatusFailed {
		t.Errorf("expected failed extract attempt, got %s", extract.Status)
	}
	if !strings.HasPrefix(extract.Error, "Post-spec failed: ") {
		t.Errorf("unexpected error message: %q", extract.Error)
	}
	if extract.Fingerprint == "" {
		t.Error("post-spec failure must carry a fingerprint")
	}
}

func TestOrchestrator_PreSpecFailureSkipsAgent(t *testing.T) {
	graph, err := NewGraph(GraphSpec{
		Name:  "gated",
		Entry: "only",
		Steps: []StepDefinition{
			{Name: "only", AgentName: "agent", PreSpecs: []string{"gate"}, Retry: RetryPolicy{MaxAttempts: 1}},
		},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("graph: %v", err)
	}

	specs := NewSpecRegistry()
	if err := specs.Register("gate", failingSpec("gate", "input_folder is not set")); err != nil {
		t.Fatalf("register: %v", err)
	}

	agentCalls := 0
	agents := NewAgentRegistry()
	if err := agents.Register("agent", NewAgentFunc("agent", func(context.Context, *State) error {
		agentCalls++
		return nil
	})); err != nil {
		t.Fatalf("register: %v", err)
	}

	o := NewOrchestrator(graph, specs, agents, zap.NewNop())
	record := o.Run(context.Background(), NewState(), nil)

	if record.Status != RunStatusFailed {
		t.Fatalf("expected failed run, got %s", record.Status)
	}
	if len(record.Steps) != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", len(record.Steps))
	}
	att := record.Steps[0]
	if agentCalls != 0 {
		t.Errorf("agent must not run after a pre-spec failure, ran %d times", agentCalls)
	}
	if att.StateAfter != nil {
		t.Error("state_after must be absent when the agent never ran")
	}
	if !strings.HasPrefix(att.Error, "Pre-spec failed: gate: ") {
		t.Errorf("unexpected error message: %q", att.Error)
	}
}

func TestOrchestrator_BudgetExhausted(t *testing.T) {
	f := newPipelineFixture(t)
	o := NewOrchestrator(f.graph, f.specs, f.agents, zap.NewNop())

	state := NewState()
	state.Budgets[BudgetMaxTotalSteps] = 1

	record := o.Run(context.Background(), state, nil)

	if record.Status != RunStatusFailed {
		t.Fatalf("expected failed run, got %s", record.Status)
	}
	wantErr := (&BudgetExhaustedError{Budget: BudgetMaxTotalSteps, Limit: 1}).Error()
	if record.Error != wantErr {
		t.Errorf("error %q, want %q", record.Error, wantErr)
	}
	// Exactly one step completed before the budget tripped; extract never ran.
	if len(record.Steps) != 1 || record.Steps[0].StepID != "intake" || record.Steps[0].Status != StepStatusPassed {
		t.Errorf("unexpected attempts: %+v", record.Steps)
	}
}

func TestOrchestrator_LoopDetection(t *testing.T) {
	// The first retry changes the data shape anyway, because the
	// orchestrator enriches the state with the failure keys. The loop can
	// therefore only trip from the second retry on, when the agent keeps
	// mutating nothing.
	graph, err := NewGraph(GraphSpec{
		Name:  "stuck",
		Entry: "extract",
		Steps: []StepDefinition{
			{Name: "extract", AgentName: "extract_agent", PostSpecs: []string{"extract_post"}, Retry: RetryPolicy{MaxAttempts: 3}},
		},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("graph: %v", err)
	}

	specs := NewSpecRegistry()
	if err := specs.Register("extract_post", failingSpec("extract_post", "no items were extracted")); err != nil {
		t.Fatalf("register: %v", err)
	}

	calls := 0
	agents := NewAgentRegistry()
	if err := agents.Register("extract_agent", NewAgentFunc("extract_agent", func(context.Context, *State) error {
		calls++
		return nil
	})); err != nil {
		t.Fatalf("register: %v", err)
	}

	o := NewOrchestrator(graph, specs, agents, zap.NewNop())
	record := o.Run(context.Background(), NewState(), nil)

	if record.Status != RunStatusFailed {
		t.Fatalf("expected failed run, got %s", record.Status)
	}
	if !strings.Contains(record.Error, "loop detected") {
		t.Errorf("expected loop detection error, got %q", record.Error)
	}
	if calls != 3 {
		t.Errorf("expected 3 agent calls, got %d", calls)
	}
	// The fatal third attempt is not recorded: the loop error escapes
	// before the attempt is appended.
	if len(record.Steps) != 2 {
		t.Errorf("expected 2 recorded attempts, got %d", len(record.Steps))
	}
	if record.Steps[0].Fingerprint == record.Steps[1].Fingerprint {
		t.Error("retry enrichment changed the data shape, fingerprints must differ")
	}
}

func TestOrchestrator_RetryEnrichesState(t *testing.T) {
	f := newPipelineFixture(t)

	var sawRetryKeys bool
	attempt := 0
	f.replaceAgent(t, "extract_agent", func(_ context.Context, s *State) error {
		attempt++
		if attempt == 2 {
			if s.Data[KeyLastFailedStep] == "extract" && s.Data[KeyRetryAttempt] == 2 {
				if msg, _ := s.GetString(KeyLastError); strings.HasPrefix(msg, "Post-spec failed: ") {
					sawRetryKeys = true
				}
			}
			s.Data["extracted_items"] = []any{"recovered"}
		}
		return nil
	})

	o := NewOrchestrator(f.graph, f.specs, f.agents, zap.NewNop())
	record := o.Run(context.Background(), NewState(), nil)

	if record.Status != RunStatusCompleted {
		t.Fatalf("expected completed run, got %s (error: %s)", record.Status, record.Error)
	}
	if !sawRetryKeys {
		t.Error("retry attempt did not see the failure enrichment keys")
	}
}

func TestOrchestrator_AgentErrorIsCaught(t *testing.T) {
	f := newPipelineFixture(t)
	f.replaceAgent(t, "intake_agent", func(context.Context, *State) error {
		return errors.New("input folder does not exist")
	})

	o := NewOrchestrator(f.graph, f.specs, f.agents, zap.NewNop())
	record := o.Run(context.Background(), NewState(), nil)

	if record.Status != RunStatusFailed {
		t.Fatalf("expected failed run, got %s", record.Status)
	}
	if len(record.Steps) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(record.Steps))
	}
	if record.Steps[0].Error != "input folder does not exist" {
		t.Errorf("unexpected attempt error: %q", record.Steps[0].Error)
	}
}

func TestOrchestrator_AgentPanicIsContained(t *testing.T) {
	f := newPipelineFixture(t)
	f.replaceAgent(t, "intake_agent", func(context.Context, *State) error {
		panic("boom")
	})

	o := NewOrchestrator(f.graph, f.specs, f.agents, zap.NewNop())
	record := o.Run(context.Background(), NewState(), nil)

	if record.Status != RunStatusFailed {
		t.Fatalf("expected failed run, got %s", record.Status)
	}
	if !strings.Contains(record.Error, "boom") {
		t.Errorf("expected panic message in run error, got %q", record.Error)
	}
}

func TestOrchestrator_OnFailEdgeRoutesFailure(t *testing.T) {
	graph, err := NewGraph(GraphSpec{
		Name:  "fallback",
		Entry: "risky",
		Steps: []StepDefinition{
			{Name: "risky", AgentName: "risky_agent", PostSpecs: []string{"never"}, Retry: RetryPolicy{MaxAttempts: 1}},
			{Name: "cleanup", AgentName: "cleanup_agent", Retry: RetryPolicy{MaxAttempts: 1}},
		},
		Edges: []Edge{
			{From: "risky", To: "cleanup", Condition: OnFail},
			{From: "cleanup", To: EndStep, Condition: OnPass},
		},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("graph: %v", err)
	}

	specs := NewSpecRegistry()
	if err := specs.Register("never", failingSpec("never", "always fails")); err != nil {
		t.Fatalf("register: %v", err)
	}

	cleanupRan := false
	agents := NewAgentRegistry()
	for name, fn := range map[string]func(context.Context, *State) error{
		"risky_agent":   func(context.Context, *State) error { return nil },
		"cleanup_agent": func(context.Context, *State) error { cleanupRan = true; return nil },
	} {
		if err := agents.Register(name, NewAgentFunc(name, fn)); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	o := NewOrchestrator(graph, specs, agents, zap.NewNop())
	record := o.Run(context.Background(), NewState(), nil)

	if !cleanupRan {
		t.Error("on_fail edge must route the failure into cleanup")
	}
	if record.Status != RunStatusCompleted {
		t.Errorf("run ending on a passed cleanup step must complete, got %s (%s)", record.Status, record.Error)
	}
}

func TestOrchestrator_UnknownSpecAbortsRun(t *testing.T) {
	f := newPipelineFixture(t)
	graph, err := NewGraph(GraphSpec{
		Name:  "broken",
		Entry: "only",
		Steps: []StepDefinition{
			{Name: "only", AgentName: "intake_agent", PreSpecs: []string{"no_such_spec"}, Retry: RetryPolicy{MaxAttempts: 3}},
		},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("graph: %v", err)
	}

	o := NewOrchestrator(graph, f.specs, f.agents, zap.NewNop())
	record := o.Run(context.Background(), NewState(), nil)

	if record.Status != RunStatusFailed {
		t.Fatalf("expected failed run, got %s", record.Status)
	}
	if !strings.Contains(record.Error, "unknown spec") {
		t.Errorf("expected unknown spec error, got %q", record.Error)
	}
	// Programmer errors abort immediately: no attempts recorded, no retries.
	if len(record.Steps) != 0 {
		t.Errorf("expected no recorded attempts, got %d", len(record.Steps))
	}
}

func TestOrchestrator_TraceAttribution(t *testing.T) {
	f := newPipelineFixture(t)
	f.replaceAgent(t, "intake_agent", func(_ context.Context, s *State) error {
		s.AddTrace(TraceEntry{"type": "file_read", "file": "a.txt"})
		s.AddTrace(TraceEntry{"type": "file_read", "file": "b.txt"})
		s.Data["loaded_files"] = []any{"a.txt", "b.txt"}
		return nil
	})

	o := NewOrchestrator(f.graph, f.specs, f.agents, zap.NewNop())
	record := o.Run(context.Background(), NewState(), nil)

	if record.Status != RunStatusCompleted {
		t.Fatalf("expected completed run, got %s (%s)", record.Status, record.Error)
	}
	intake := record.Steps[0]
	if len(intake.Traces) != 2 {
		t.Fatalf("expected 2 traces on intake attempt, got %d", len(intake.Traces))
	}
	if intake.Traces[0]["timestamp"] == nil {
		t.Error("trace entries must be auto-stamped")
	}
	if len(record.Steps[1].Traces) != 0 {
		t.Error("extract attempt must not inherit intake traces")
	}
}
