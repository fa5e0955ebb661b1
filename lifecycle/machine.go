package lifecycle

import (
	"time"

	"github.com/hupe1980/agenttree/core"
)

// Guards carries the agent facts that select between transitions.
type Guards struct {
	Mode           core.Mode
	HasCommitments bool
}

// edges lists the unconditional transitions. Guarded and failure events are
// resolved in Next.
var edges = map[core.State]map[core.Event]core.State{
	core.StateIdle: {
		core.EventStart: core.StateWorking,
	},
	core.StateWorking: {
		core.EventAwaitInput: core.StateWaitingForInput,
		core.EventRestore:    core.StateWaitingForInput,
	},
	core.StateWaitingForInput: {
		core.EventInput: core.StateWorking,
	},
	core.StateVerifying: {
		core.EventVerified:           core.StateDone,
		core.EventVerificationFailed: core.StateWorking,
		core.EventRestore:            core.StateWaitingForInput,
	},
}

// Next is the transition function. ok is false when the event has no
// defined transition from state.
func Next(state core.State, ev core.Event, g Guards) (core.State, bool) {
	if state.IsTerminal() {
		return state, false
	}

	if ev.IsFailure() {
		return core.StateFailed, true
	}

	switch {
	case state == core.StateWorking && ev == core.EventComplete:
		if g.HasCommitments {
			return core.StateVerifying, true
		}
		return core.StateDone, true
	case state == core.StateWorking && ev == core.EventSleep:
		return core.StateWaitingForWakeup, g.Mode == core.ModeAutonomous
	case state == core.StateWaitingForWakeup && ev == core.EventWake:
		return core.StateWorking, g.Mode == core.ModeAutonomous
	}

	next, ok := edges[state][ev]
	if !ok {
		return state, false
	}
	return next, true
}

// Options configures a Machine.
type Options struct {
	// Initial state, defaults to idle. Used when restoring snapshots.
	State core.State
	// History restored from a snapshot.
	History []core.Transition
	// Now is the clock used for transition timestamps.
	Now func() time.Time
}

// Machine holds the current state and transition history of one agent. It
// is not safe for concurrent use; the owning agent serializes access.
type Machine struct {
	state   core.State
	history []core.Transition
	now     func() time.Time
}

// NewMachine creates a machine in the idle state unless overridden.
func NewMachine(optFns ...func(o *Options)) *Machine {
	opts := Options{
		State: core.StateIdle,
		Now:   time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Machine{
		state:   opts.State,
		history: append([]core.Transition(nil), opts.History...),
		now:     opts.Now,
	}
}

// State returns the current state.
func (m *Machine) State() core.State { return m.state }

// Can reports whether ev would be accepted.
func (m *Machine) Can(ev core.Event, g Guards) bool {
	_, ok := Next(m.state, ev, g)
	return ok
}

// Fire applies ev. On rejection the state is unchanged and the returned
// error wraps core.ErrInvalidTransition.
func (m *Machine) Fire(ev core.Event, g Guards) (core.Transition, error) {
	next, ok := Next(m.state, ev, g)
	if !ok {
		return core.Transition{}, &core.TransitionError{From: m.state, Event: ev}
	}

	t := core.Transition{From: m.state, Event: ev, To: next, Timestamp: m.now().UTC()}
	m.state = next
	m.history = append(m.history, t)
	return t, nil
}

// History returns a copy of all committed transitions.
func (m *Machine) History() []core.Transition {
	out := make([]core.Transition, len(m.history))
	copy(out, m.history)
	return out
}
