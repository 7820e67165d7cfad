package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// stepExecutor runs one attempt of one step: pre-specs, the agent call,
// post-specs, invariant-specs. Each stage short-circuits to a failed
// attempt on its first failing check. The orchestrator decides whether a
// further attempt follows.
type stepExecutor struct {
	specs  *SpecRegistry
	agents *AgentRegistry
	loops  *LoopDetector
	logger *zap.Logger
}

// runAttempt produces the attempt record for one execution of step.
//
// A non-nil error is fatal for the whole run: loop detection, a fatal
// error surfaced through the agent, or a registry programmer error. All
// ordinary failures are recorded on the returned attempt instead.
func (e *stepExecutor) runAttempt(ctx context.Context, state *State, step *StepDefinition, attempt int) (*StepAttempt, error) {
	result := &StepAttempt{
		StepID:    step.Name,
		AgentID:   step.AgentName,
		Attempt:   attempt,
		Status:    StepStatusRunning,
		StartedAt: time.Now(),
	}

	// 1. Snapshot working data before anything runs.
	result.StateBefore = state.SnapshotData()

	// 2. Pre-specs gate the agent call.
	preResults, err := e.specs.Evaluate(step.PreSpecs, state)
	if err != nil {
		return result, err
	}
	result.PreResults = preResults
	if !AllPassed(preResults) {
		e.fail(result, "Pre-spec failed: "+joinFailures(FailedResults(preResults)))
		return result, nil
	}

	// 3. Agent execution. An agent error is an ordinary failed attempt
	// unless it carries a fatal engine error.
	agent, err := e.agents.Get(step.AgentName)
	if err != nil {
		return result, err
	}
	traceMark := len(state.Trace)
	if err := agent.Execute(ctx, state); err != nil {
		if isFatal(err) {
			return result, err
		}
		result.Traces = append([]TraceEntry(nil), state.Trace[traceMark:]...)
		e.fail(result, err.Error())
		return result, nil
	}
	result.Traces = append([]TraceEntry(nil), state.Trace[traceMark:]...)

	// 4. Snapshot working data after the agent mutated it.
	result.StateAfter = state.SnapshotData()

	// 5. Post-specs validate the agent's output. Failures here are the
	// retryable kind, so they feed the loop detector.
	postResults, err := e.specs.Evaluate(step.PostSpecs, state)
	if err != nil {
		return result, err
	}
	result.PostResults = postResults
	if !AllPassed(postResults) {
		failed := FailedResults(postResults)
		ruleIDs := make([]string, 0, len(failed))
		for _, r := range failed {
			ruleIDs = append(ruleIDs, r.RuleID)
		}
		fp := Fingerprint(step.Name, state.DataKeys(), ruleIDs)
		result.Fingerprint = fp
		if err := e.loops.Observe(step.Name, fp); err != nil {
			return result, err
		}
		e.fail(result, "Post-spec failed: "+joinFailures(failed))
		return result, nil
	}

	// 6. Invariant-specs guard deeper contracts. Not fingerprinted: a
	// recurring invariant breach burns through the attempt budget instead.
	invResults, err := e.specs.Evaluate(step.InvariantSpecs, state)
	if err != nil {
		return result, err
	}
	result.InvariantResults = invResults
	if !AllPassed(invResults) {
		e.fail(result, "Invariant failed: "+joinFailures(FailedResults(invResults)))
		return result, nil
	}

	// 7. All stages passed.
	result.Status = StepStatusPassed
	result.FinishedAt = time.Now()
	e.logger.Debug("step attempt passed",
		zap.String("step", step.Name),
		zap.Int("attempt", attempt),
	)
	return result, nil
}

func (e *stepExecutor) fail(result *StepAttempt, msg string) {
	result.Status = StepStatusFailed
	result.Error = msg
	result.FinishedAt = time.Now()
	e.logger.Debug("step attempt failed",
		zap.String("step", result.StepID),
		zap.Int("attempt", result.Attempt),
		zap.String("error", msg),
	)
}
