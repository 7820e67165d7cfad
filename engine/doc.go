// Package engine implements the specflow workflow execution engine.
//
// A workflow is a graph of named steps. Each step binds an agent (the unit
// of work) to three lists of spec functions: pre-specs gate the agent call,
// post-specs validate its output, and invariant-specs guard cross-cutting
// contracts. Edges between steps carry a pass/fail condition; the router
// follows the first matching edge after every step outcome.
//
// The orchestrator drives a run from the entry step until no edge matches,
// retrying failed steps up to their retry policy while two safety nets
// guarantee termination: a total-step budget and a fingerprint-based loop
// detector that rejects a repeated identical post-spec failure.
//
// The engine owns no IO. Agents, manifest parsing, and persistence are
// supplied by the caller through explicit registries and callbacks.
package engine
