package engine

import (
	"errors"
	"fmt"
)

// Registry misuse errors. These are programmer errors: they abort the run
// through the orchestrator's catch-all rather than being retried.
var (
	// ErrUnknownSpec is returned when a step references an unregistered spec.
	ErrUnknownSpec = errors.New("unknown spec")
	// ErrDuplicateSpec is returned when a spec name is registered twice.
	ErrDuplicateSpec = errors.New("duplicate spec")
	// ErrUnknownAgent is returned when a step references an unregistered agent.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrDuplicateAgent is returned when an agent name is registered twice.
	ErrDuplicateAgent = errors.New("duplicate agent")
)

// GraphError reports a malformed workflow graph. It is raised at
// construction time only, never during a run.
type GraphError struct {
	Reason string
}

func (e *GraphError) Error() string {
	return "invalid workflow graph: " + e.Reason
}

func graphErrorf(format string, args ...any) *GraphError {
	return &GraphError{Reason: fmt.Sprintf(format, args...)}
}

// BudgetExhaustedError reports that a numeric run budget was reached.
// It is fatal: the whole run terminates as failed.
type BudgetExhaustedError struct {
	Budget string
	Limit  int
}

func (e *BudgetExhaustedError) Error() string {
	return fmt.Sprintf("budget %q exhausted (limit: %d)", e.Budget, e.Limit)
}

// LoopDetectedError reports a step failing twice with an identical
// fingerprint. It is fatal: a retry is only productive when the situation
// changed, so an identical failure indicates a non-convergent agent.
type LoopDetectedError struct {
	StepID      string
	Fingerprint string
}

func (e *LoopDetectedError) Error() string {
	return fmt.Sprintf("loop detected: step %q repeated with fingerprint %s", e.StepID, e.Fingerprint)
}

// isFatal reports whether err must escape the per-step retry loop and
// terminate the entire run.
func isFatal(err error) bool {
	var budget *BudgetExhaustedError
	var loop *LoopDetectedError
	return errors.As(err, &budget) || errors.As(err, &loop)
}
