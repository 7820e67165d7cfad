package engine

import "sort"

// Router selects the next step from a step outcome and the graph's edges.
// The graph structure lives in the edges, not in the specs: specs only
// decide pass/fail, the router turns that into movement.
type Router struct {
	edges []Edge
}

// NewRouter creates a router over the given edges. Edge order matters:
// the first matching edge wins.
func NewRouter(edges []Edge) *Router {
	return &Router{edges: append([]Edge(nil), edges...)}
}

// NextStep returns the target of the first edge, in declaration order,
// whose from step matches and whose condition matches the outcome
// (Always matches either). The returned name may be EndStep for explicit
// terminal edges. ok is false when no edge matches, which the
// orchestrator treats as a normal end of run.
//
// First-match-wins is a deliberate precedence rule: a second edge with
// the same from step and condition is unreachable.
func (r *Router) NextStep(current string, passed bool) (next string, ok bool) {
	want := OnFail
	if passed {
		want = OnPass
	}
	for _, e := range r.edges {
		if e.From != current {
			continue
		}
		if e.Condition == want || e.Condition == Always {
			return e.To, true
		}
	}
	return "", false
}

// EdgesFrom returns all outgoing edges of a step, in declaration order.
func (r *Router) EdgesFrom(step string) []Edge {
	var out []Edge
	for _, e := range r.edges {
		if e.From == step {
			out = append(out, e)
		}
	}
	return out
}

// StepNames returns the sorted set of step names referenced by any edge,
// excluding the end sentinel.
func (r *Router) StepNames() []string {
	set := make(map[string]struct{})
	for _, e := range r.edges {
		set[e.From] = struct{}{}
		if e.To != EndStep {
			set[e.To] = struct{}{}
		}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
