package engine

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func passingSpec(ruleID string) SpecFunc {
	return func(*State) SpecResult {
		return SpecResult{RuleID: ruleID, Passed: true, Message: "ok"}
	}
}

func failingSpec(ruleID, message string) SpecFunc {
	return func(*State) SpecResult {
		return SpecResult{RuleID: ruleID, Passed: false, Message: message}
	}
}

func TestSpecRegistry_Register(t *testing.T) {
	reg := NewSpecRegistry()
	if err := reg.Register("a", passingSpec("a")); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	err := reg.Register("a", passingSpec("a"))
	if !errors.Is(err, ErrDuplicateSpec) {
		t.Errorf("expected ErrDuplicateSpec, got %v", err)
	}

	if err := reg.Register("", passingSpec("x")); err == nil {
		t.Error("expected error for empty name")
	}
	if err := reg.Register("nil", nil); err == nil {
		t.Error("expected error for nil function")
	}
}

func TestSpecRegistry_UnknownSpec(t *testing.T) {
	reg := NewSpecRegistry()
	if _, err := reg.Get("missing"); !errors.Is(err, ErrUnknownSpec) {
		t.Errorf("expected ErrUnknownSpec, got %v", err)
	}

	_, err := reg.Evaluate([]string{"missing"}, NewState())
	if !errors.Is(err, ErrUnknownSpec) {
		t.Errorf("expected ErrUnknownSpec from Evaluate, got %v", err)
	}
}

func TestSpecRegistry_EvaluateOrder(t *testing.T) {
	reg := NewSpecRegistry()
	for _, name := range []string{"c", "a", "b"} {
		if err := reg.Register(name, passingSpec(name)); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	results, err := reg.Evaluate([]string{"b", "c", "a"}, NewState())
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	got := []string{results[0].RuleID, results[1].RuleID, results[2].RuleID}
	want := []string{"b", "c", "a"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("results out of order: got %v, want %v", got, want)
	}
}

func TestSpecRegistry_EvaluateDoesNotMutateState(t *testing.T) {
	reg := NewSpecRegistry()
	if err := reg.Register("check", func(s *State) SpecResult {
		// A well-behaved spec only reads.
		_, _ = s.GetString("input_folder")
		return SpecResult{RuleID: "check", Passed: true}
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	state := NewState()
	state.Data["input_folder"] = "/tmp/in"
	state.Data["loaded_files"] = []any{map[string]any{"filename": "a.txt"}}

	before, _ := json.Marshal(state.SnapshotData())
	if _, err := reg.Evaluate([]string{"check", "check"}, state); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	after, _ := json.Marshal(state.SnapshotData())

	if string(before) != string(after) {
		t.Errorf("spec evaluation mutated working data:\nbefore=%s\nafter=%s", before, after)
	}
}

func TestSpecRegistry_Determinism(t *testing.T) {
	reg := NewSpecRegistry()
	if err := reg.Register("count", func(s *State) SpecResult {
		files, _ := s.GetSlice("loaded_files")
		return SpecResult{RuleID: "count", Passed: len(files) > 0, Message: "counted"}
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	state := NewState()
	state.Data["loaded_files"] = []any{map[string]any{"filename": "a.txt"}}

	first, err := reg.Evaluate([]string{"count"}, state)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	second, err := reg.Evaluate([]string{"count"}, state)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("same state produced different results: %+v vs %+v", first, second)
	}
}

func TestAllPassed(t *testing.T) {
	if !AllPassed(nil) {
		t.Error("empty result list must trivially pass")
	}
	if !AllPassed([]SpecResult{{Passed: true}, {Passed: true}}) {
		t.Error("all passing results must pass")
	}
	if AllPassed([]SpecResult{{Passed: true}, {Passed: false}}) {
		t.Error("one failing result must fail")
	}
}

func TestJoinFailures(t *testing.T) {
	failed := FailedResults([]SpecResult{
		{RuleID: "a", Passed: true, Message: "fine"},
		{RuleID: "b", Passed: false, Message: "missing key"},
		{RuleID: "c", Passed: false, Message: "empty list"},
	})
	got := joinFailures(failed)
	want := "b: missing key; c: empty list"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
