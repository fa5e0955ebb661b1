// Package lifecycle implements the agent lifecycle state machine.
//
// Transitions are a total function over (state, event): every pair either
// yields a next state or is rejected with core.ErrInvalidTransition, leaving
// the state unchanged. Each committed transition is appended to an
// append-only history used for tracing and audit.
//
// The verify/work loop is closed (verifying → working on failed
// commitments) and must be bounded externally; Rounds provides the bound.
package lifecycle
