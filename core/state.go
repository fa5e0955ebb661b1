package core

import "time"

// State is a lifecycle state of an agent.
type State string

const (
	// StateIdle is the initial state of a freshly spawned agent.
	StateIdle State = "idle"
	// StateWorking indicates the agent is processing a turn.
	StateWorking State = "working"
	// StateWaitingForInput indicates the agent is suspended until external
	// input (an operator or ancestor answer, or a new message) arrives.
	StateWaitingForInput State = "waiting_for_input"
	// StateWaitingForWakeup indicates an autonomous agent is suspended until
	// its next internal prompt.
	StateWaitingForWakeup State = "waiting_for_wakeup"
	// StateVerifying indicates commitments are being checked.
	StateVerifying State = "verifying"
	// StateDone is the terminal success state.
	StateDone State = "done"
	// StateFailed is the terminal failure state.
	StateFailed State = "failed"
)

// IsTerminal reports whether no further transitions leave the state.
func (s State) IsTerminal() bool { return s == StateDone || s == StateFailed }

// Event is a lifecycle trigger fed into the state machine.
type Event string

const (
	EventStart              Event = "start"
	EventAwaitInput         Event = "await_input"
	EventInput              Event = "input"
	EventSleep              Event = "sleep"
	EventWake               Event = "wake"
	EventComplete           Event = "complete"
	EventVerified           Event = "verified"
	EventVerificationFailed Event = "verification_failed"
	EventBudgetExhausted    Event = "budget_exhausted"
	EventCutBait            Event = "cut_bait"
	EventDismiss            Event = "dismiss"
	EventError              Event = "error"
	EventRetriesExhausted   Event = "retries_exhausted"
	EventRestore            Event = "restore"
)

// IsFailure reports whether the event drives any live state to failed.
func (e Event) IsFailure() bool {
	switch e {
	case EventBudgetExhausted, EventCutBait, EventDismiss, EventError, EventRetriesExhausted:
		return true
	default:
		return false
	}
}

// Transition is the observable record emitted for every committed state
// change. Records are append-only and used for tracing and audit.
type Transition struct {
	From      State     `json:"from"`
	Event     Event     `json:"event"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// Mode selects how an agent continues after a turn.
type Mode string

const (
	// ModeInteractive agents wait for explicit external input.
	ModeInteractive Mode = "interactive"
	// ModeAutonomous agents sleep and are periodically self-prompted.
	ModeAutonomous Mode = "autonomous"
)

// Flags captures the behavioral differences between agent kinds. Root,
// worker and ephemeral task agents share one data shape and differ only in
// policy.
type Flags struct {
	IsRoot         bool `json:"is_root"`
	AutoReapOnDone bool `json:"auto_reap_on_done"`
	Mode           Mode `json:"mode"`
}
