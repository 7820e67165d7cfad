package engine

import (
	"fmt"
	"sort"
	"strings"
)

// SpecFunc is a pure predicate over the run state.
//
// Spec functions must not perform IO and must not mutate the state: the
// same state must always yield the same result. The test suite enforces
// the no-mutation contract by hashing the working data around evaluation.
type SpecFunc func(*State) SpecResult

// SpecRegistry maps spec names to spec functions. It is an explicit value
// passed into the orchestrator rather than a global table, so tests can
// run with isolated fake registries.
type SpecRegistry struct {
	specs map[string]SpecFunc
}

// NewSpecRegistry creates an empty spec registry.
func NewSpecRegistry() *SpecRegistry {
	return &SpecRegistry{specs: make(map[string]SpecFunc)}
}

// Register adds a spec function under name. Re-registering a name fails
// with ErrDuplicateSpec; silent overwrites would hide manifest typos.
func (r *SpecRegistry) Register(name string, fn SpecFunc) error {
	if name == "" {
		return fmt.Errorf("spec name is required")
	}
	if fn == nil {
		return fmt.Errorf("spec %q: function is required", name)
	}
	if _, ok := r.specs[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateSpec, name)
	}
	r.specs[name] = fn
	return nil
}

// Get looks up a spec function by name.
func (r *SpecRegistry) Get(name string) (SpecFunc, error) {
	fn, ok := r.specs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownSpec, name, strings.Join(r.Names(), ", "))
	}
	return fn, nil
}

// Names returns the registered spec names, sorted.
func (r *SpecRegistry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Evaluate runs the named specs against state, returning one result per
// name in the same order. An unregistered name is a programmer error and
// aborts evaluation.
func (r *SpecRegistry) Evaluate(names []string, state *State) ([]SpecResult, error) {
	results := make([]SpecResult, 0, len(names))
	for _, name := range names {
		fn, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		results = append(results, fn(state))
	}
	return results, nil
}

// AllPassed reports whether every result passed. An empty list trivially
// passes.
func AllPassed(results []SpecResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// FailedResults returns the failing subset of results, in order.
func FailedResults(results []SpecResult) []SpecResult {
	var failed []SpecResult
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// joinFailures renders failing results as "rule_id: message; ...".
func joinFailures(failed []SpecResult) string {
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, r.RuleID+": "+r.Message)
	}
	return strings.Join(parts, "; ")
}
