package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// StepCallback receives each step attempt right after it completes, in
// chronological order. Callbacks are for progress reporting and
// persistence; they run synchronously, must return quickly, and must not
// alter the run state.
type StepCallback func(*StepAttempt)

// Orchestrator drives a workflow run: it walks the graph from the entry
// step, retries failed steps within their retry policy, enforces the
// total-step budget, and terminates the run with a final status. One
// orchestrator value may serve many runs, but each run owns its state
// exclusively and runs single-threaded.
type Orchestrator struct {
	graph  *Graph
	router *Router
	specs  *SpecRegistry
	agents *AgentRegistry
	logger *zap.Logger
}

// NewOrchestrator wires an orchestrator from its explicit dependencies.
func NewOrchestrator(graph *Graph, specs *SpecRegistry, agents *AgentRegistry, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		graph:  graph,
		router: NewRouter(graph.Edges()),
		specs:  specs,
		agents: agents,
		logger: logger.With(zap.String("component", "orchestrator")),
	}
}

// Router exposes the orchestrator's router, mainly for diagnostics.
func (o *Orchestrator) Router() *Router { return o.router }

// Run executes the full workflow against state. It always returns a
// record with a terminal status; every failure path, including panics
// from agents or callbacks, funnels into a failed record rather than
// escaping to the caller.
func (o *Orchestrator) Run(ctx context.Context, state *State, onStep StepCallback) *RunRecord {
	record := &RunRecord{
		RunID:        state.RunID,
		WorkflowName: o.graph.Name(),
		Status:       RunStatusRunning,
		StartedAt:    time.Now(),
	}

	o.logger.Info("run started",
		zap.String("run_id", state.RunID),
		zap.String("workflow", o.graph.Name()),
		zap.String("entry", o.graph.Entry()),
		zap.Int("steps", o.graph.StepCount()),
	)

	err := o.execute(ctx, state, record, onStep)
	record.FinishedAt = time.Now()
	if err != nil {
		record.Status = RunStatusFailed
		record.Error = err.Error()
		o.logger.Warn("run failed",
			zap.String("run_id", state.RunID),
			zap.String("error", record.Error),
		)
	} else {
		record.Status = RunStatusCompleted
		o.logger.Info("run completed",
			zap.String("run_id", state.RunID),
			zap.Int("attempts", len(record.Steps)),
			zap.Duration("duration", record.FinishedAt.Sub(record.StartedAt)),
		)
	}
	return record
}

// execute walks the graph. The deferred recover is the last line of the
// "no escape" contract: adversarial agents and callbacks may panic.
func (o *Orchestrator) execute(ctx context.Context, state *State, record *RunRecord, onStep StepCallback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v", r)
		}
	}()

	exec := &stepExecutor{
		specs:  o.specs,
		agents: o.agents,
		loops:  NewLoopDetector(),
		logger: o.logger,
	}

	completed := 0
	current := o.graph.Entry()

	for current != "" && current != EndStep {
		step, ok := o.graph.Step(current)
		if !ok {
			return fmt.Errorf("step %q not found in graph", current)
		}

		// Budget check counts passed steps, so a run may end one failed
		// step after the limit but never completes more than the cap.
		maxTotal := state.Budget(BudgetMaxTotalSteps, DefaultMaxTotalSteps)
		if completed >= maxTotal {
			return &BudgetExhaustedError{Budget: BudgetMaxTotalSteps, Limit: maxTotal}
		}

		passed := false
		var lastErr string
		for attempt := 1; attempt <= step.Retry.MaxAttempts; attempt++ {
			result, fatal := exec.runAttempt(ctx, state, step, attempt)
			if fatal != nil {
				return fatal
			}
			record.Steps = append(record.Steps, result)
			if onStep != nil {
				onStep(result)
			}

			if result.Status == StepStatusPassed {
				passed = true
				completed++
				break
			}
			lastErr = result.Error

			if attempt < step.Retry.MaxAttempts {
				// Surface the failure to the next attempt so agents can
				// adapt, then honor the retry delay.
				state.Data[KeyLastError] = result.Error
				state.Data[KeyLastFailedStep] = current
				state.Data[KeyRetryAttempt] = attempt + 1
				if err := sleepContext(ctx, step.Retry.Delay); err != nil {
					return err
				}
			}
		}
		// Attempts exhausted without passing is not fatal by itself: the
		// graph may declare an on_fail edge that routes the failure
		// somewhere productive. Reaching the end of the graph on a failed
		// outcome is a failed run, though, not a graceful completion.
		next, ok := o.router.NextStep(current, passed)
		if !ok || next == EndStep {
			if !passed {
				return fmt.Errorf("step %q failed after %d attempt(s): %s", current, step.Retry.MaxAttempts, lastErr)
			}
			break
		}
		current = next
	}

	return nil
}

// sleepContext waits for d or until ctx is done, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
