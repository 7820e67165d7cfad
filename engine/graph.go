package engine

import (
	"time"

	"go.uber.org/zap"
)

// EndStep is the sentinel edge target meaning "end of run".
const EndStep = "__end__"

// EdgeCondition decides when an edge fires relative to a step outcome.
type EdgeCondition string

const (
	// OnPass fires when the step passed.
	OnPass EdgeCondition = "on_pass"
	// OnFail fires when the step exhausted its attempts without passing.
	OnFail EdgeCondition = "on_fail"
	// Always fires on either outcome.
	Always EdgeCondition = "always"
)

// Edge is a directed, conditional edge between two steps.
type Edge struct {
	From      string
	To        string
	Condition EdgeCondition
}

// RetryPolicy bounds how often a step may be attempted and how long the
// orchestrator waits between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// StepDefinition binds an agent to its spec lists and retry policy.
type StepDefinition struct {
	Name           string
	AgentName      string
	PreSpecs       []string
	PostSpecs      []string
	InvariantSpecs []string
	Retry          RetryPolicy
}

// GraphSpec is the raw material for a Graph, typically produced by the
// manifest loader.
type GraphSpec struct {
	Name        string
	Description string
	Version     string
	Entry       string
	Steps       []StepDefinition
	Edges       []Edge
	Defaults    map[string]any
	Budgets     map[string]int
}

// Graph is the immutable description of a workflow: steps, their bindings,
// and the conditional edges between them. It is validated once at
// construction and never mutated afterwards.
type Graph struct {
	name        string
	description string
	version     string
	entry       string
	steps       map[string]*StepDefinition
	edges       []Edge
	defaults    map[string]any
	budgets     map[string]int
}

// NewGraph validates spec and builds a Graph. Edge endpoints are checked
// permissively: an edge whose from step does not exist simply never fires,
// and a missing route is a normal end-of-run outcome, so neither is an
// error here. Duplicate (from, condition) pairs are legal but only the
// first is reachable, so the loader warns about them.
func NewGraph(spec GraphSpec, logger *zap.Logger) (*Graph, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if spec.Entry == "" {
		return nil, graphErrorf("entry step is required")
	}
	if len(spec.Steps) == 0 {
		return nil, graphErrorf("at least one step is required")
	}

	steps := make(map[string]*StepDefinition, len(spec.Steps))
	for i := range spec.Steps {
		sd := spec.Steps[i]
		if sd.Name == "" {
			return nil, graphErrorf("step %d has no name", i)
		}
		if _, ok := steps[sd.Name]; ok {
			return nil, graphErrorf("duplicate step %q", sd.Name)
		}
		if sd.AgentName == "" {
			return nil, graphErrorf("step %q has no agent binding", sd.Name)
		}
		if sd.Retry.MaxAttempts < 1 {
			return nil, graphErrorf("step %q: retry max_attempts must be >= 1, got %d", sd.Name, sd.Retry.MaxAttempts)
		}
		if sd.Retry.Delay < 0 {
			return nil, graphErrorf("step %q: retry delay must be >= 0", sd.Name)
		}
		steps[sd.Name] = &sd
	}

	if _, ok := steps[spec.Entry]; !ok {
		return nil, graphErrorf("entry step %q not found in steps", spec.Entry)
	}

	for i, e := range spec.Edges {
		switch e.Condition {
		case OnPass, OnFail, Always:
		default:
			return nil, graphErrorf("edge %d: unknown condition %q", i, e.Condition)
		}
		if _, ok := steps[e.From]; !ok {
			logger.Warn("edge references unknown from step; it will never fire",
				zap.String("from", e.From),
				zap.String("to", e.To),
			)
		}
	}
	warnShadowedEdges(spec.Edges, logger)

	g := &Graph{
		name:        spec.Name,
		description: spec.Description,
		version:     spec.Version,
		entry:       spec.Entry,
		steps:       steps,
		edges:       append([]Edge(nil), spec.Edges...),
		defaults:    make(map[string]any, len(spec.Defaults)),
		budgets:     make(map[string]int, len(spec.Budgets)),
	}
	for k, v := range spec.Defaults {
		g.defaults[k] = v
	}
	for k, v := range spec.Budgets {
		g.budgets[k] = v
	}
	return g, nil
}

// warnShadowedEdges flags duplicate (from, condition) pairs. The router
// follows the first matching edge in declaration order, which silently
// makes the second unreachable.
func warnShadowedEdges(edges []Edge, logger *zap.Logger) {
	type key struct {
		from string
		cond EdgeCondition
	}
	seen := make(map[key]Edge, len(edges))
	for _, e := range edges {
		k := key{from: e.From, cond: e.Condition}
		if first, ok := seen[k]; ok {
			logger.Warn("edge is unreachable: an earlier edge with the same from step and condition shadows it",
				zap.String("from", e.From),
				zap.String("condition", string(e.Condition)),
				zap.String("shadowed_to", e.To),
				zap.String("first_to", first.To),
			)
			continue
		}
		seen[k] = e
	}
}

// Name returns the workflow name.
func (g *Graph) Name() string { return g.name }

// Description returns the workflow description.
func (g *Graph) Description() string { return g.description }

// Version returns the manifest version string.
func (g *Graph) Version() string { return g.version }

// Entry returns the entry step name.
func (g *Graph) Entry() string { return g.entry }

// Step looks up a step definition by name.
func (g *Graph) Step(name string) (*StepDefinition, bool) {
	sd, ok := g.steps[name]
	return sd, ok
}

// StepCount returns the number of steps in the graph.
func (g *Graph) StepCount() int { return len(g.steps) }

// StepNames returns the names of all defined steps, in no particular order.
func (g *Graph) StepNames() []string {
	names := make([]string, 0, len(g.steps))
	for name := range g.steps {
		names = append(names, name)
	}
	return names
}

// Edges returns the declared edges in declaration order.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// EdgesFrom returns the ordered outgoing edges of a step. Used for
// diagnostics and visualization, not by the router's hot path.
func (g *Graph) EdgesFrom(step string) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.From == step {
			out = append(out, e)
		}
	}
	return out
}

// Defaults returns the opaque default configuration from the manifest.
func (g *Graph) Defaults() map[string]any { return g.defaults }

// Budgets returns the named numeric budgets from the manifest.
func (g *Graph) Budgets() map[string]int { return g.budgets }
