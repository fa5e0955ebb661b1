package core

import (
	"errors"
	"fmt"
)

// Structural errors. They are returned synchronously to the caller and never
// leave partially applied state behind. Compare with errors.Is.
var (
	ErrDuplicateName      = errors.New("duplicate agent name")
	ErrInvalidName        = errors.New("invalid agent name")
	ErrInvalidBudget      = errors.New("invalid budget")
	ErrInsufficientBudget = errors.New("insufficient budget")
	ErrParentNotFound     = errors.New("parent not found")
	ErrParentTerminal     = errors.New("parent is terminal")
	ErrRootExists         = errors.New("root agent already exists")
	ErrAgentNotFound      = errors.New("agent not found")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrRoutingCycle       = errors.New("escalation routing cycle")
	ErrEscalationNotFound = errors.New("escalation not found")
	ErrSnapshotNotFound   = errors.New("snapshot not found")
	ErrNoOperator         = errors.New("no operator configured")
)

// Execution outcomes surfaced as errors only where a caller must know the
// operation did not run to its natural end.
var (
	// ErrCancelled is returned when an operation was cut short because the
	// agent (or an ancestor) was dismissed.
	ErrCancelled = errors.New("agent operation cancelled")
	// ErrBudgetExhausted is returned by budget checks; the engine converts it
	// into a budget_exhausted transition.
	ErrBudgetExhausted = errors.New("budget exhausted")
)

// TransitionError reports a rejected lifecycle event.
type TransitionError struct {
	AgentID string
	From    State
	Event   Event
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	if e.AgentID != "" {
		return fmt.Sprintf("invalid transition: agent %s: event %q from state %q", e.AgentID, e.Event, e.From)
	}
	return fmt.Sprintf("invalid transition: event %q from state %q", e.Event, e.From)
}

// Is makes TransitionError match ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }
