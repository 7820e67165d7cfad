package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Agent is an externally owned unit of work. An agent reads and writes the
// run state's Data, Artifacts, and Trace; it must never remove or rename
// keys another step depends on (a convention, not enforced here). Routing
// is not the agent's concern.
type Agent interface {
	Name() string
	Execute(ctx context.Context, state *State) error
}

// AgentFunc adapts a function into an Agent, mainly for tests and small
// inline agents.
type AgentFunc struct {
	name string
	fn   func(ctx context.Context, state *State) error
}

// NewAgentFunc creates a function-backed agent.
func NewAgentFunc(name string, fn func(ctx context.Context, state *State) error) *AgentFunc {
	return &AgentFunc{name: name, fn: fn}
}

func (a *AgentFunc) Name() string { return a.name }

func (a *AgentFunc) Execute(ctx context.Context, state *State) error {
	return a.fn(ctx, state)
}

// AgentRegistry maps agent names to agents. Like SpecRegistry it is an
// explicit value handed to the orchestrator, never a package-level table.
type AgentRegistry struct {
	agents map[string]Agent
}

// NewAgentRegistry creates an empty agent registry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{agents: make(map[string]Agent)}
}

// Register adds an agent under name. Duplicate names fail with
// ErrDuplicateAgent.
func (r *AgentRegistry) Register(name string, agent Agent) error {
	if name == "" {
		return fmt.Errorf("agent name is required")
	}
	if agent == nil {
		return fmt.Errorf("agent %q: implementation is required", name)
	}
	if _, ok := r.agents[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateAgent, name)
	}
	r.agents[name] = agent
	return nil
}

// Get looks up an agent by name.
func (r *AgentRegistry) Get(name string) (Agent, error) {
	agent, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrUnknownAgent, name, strings.Join(r.Names(), ", "))
	}
	return agent, nil
}

// Names returns the registered agent names, sorted.
func (r *AgentRegistry) Names() []string {
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
