package agent

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/agenttree/core"
	"github.com/hupe1980/agenttree/lifecycle"
)

// Config describes a new agent.
type Config struct {
	ID          string
	Name        string
	ParentID    string
	Budget      int64
	Commitments []core.CommitmentSpec
	Flags       core.Flags
	// Parent is the cancellation context of the parent agent. Cancelling it
	// cancels this agent too.
	Parent context.Context
	Now    func() time.Time
}

// Agent is the live record of one node in the supervision tree. All exported
// methods are goroutine-safe.
type Agent struct {
	id       string
	name     string
	parentID string
	flags    core.Flags
	now      func() time.Time

	mu            sync.Mutex // Protects the mutable record below
	childIDs      []string
	allocated     int64
	remaining     int64
	commitments   []core.Commitment
	machine       *lifecycle.Machine
	failureReason string
	version       uint64
	updatedAt     time.Time

	sem    chan struct{}      // Serializes operations; held across suspension points
	ctx    context.Context    // Cancelled on dismissal of this agent or an ancestor
	cancel context.CancelFunc // Used to cancel in-flight operations
}

// New constructs an idle agent with its full budget remaining.
func New(cfg Config) *Agent {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	if cfg.ID == "" {
		cfg.ID = core.NewID()
	}

	if cfg.Flags.Mode == "" {
		cfg.Flags.Mode = core.ModeInteractive
	}

	a := newAgent(cfg.ID, cfg.Name, cfg.ParentID, cfg.Flags, cfg.Parent, now)
	a.allocated = cfg.Budget
	a.remaining = cfg.Budget
	a.machine = lifecycle.NewMachine(func(o *lifecycle.Options) { o.Now = now })
	a.updatedAt = now().UTC()

	for _, spec := range cfg.Commitments {
		a.commitments = append(a.commitments, core.NewCommitment(spec, a.updatedAt))
	}

	return a
}

// FromSnapshot rebuilds a live agent from a persisted snapshot.
func FromSnapshot(parent context.Context, snap core.Snapshot, now func() time.Time) *Agent {
	if now == nil {
		now = time.Now
	}

	a := newAgent(snap.ID, snap.Name, snap.ParentID, snap.Flags, parent, now)
	a.childIDs = append([]string(nil), snap.ChildIDs...)
	a.allocated = snap.AllocatedBudget
	a.remaining = snap.RemainingBudget
	a.commitments = core.CloneCommitments(snap.Commitments)
	a.failureReason = snap.FailureReason
	a.version = snap.Version
	a.updatedAt = snap.UpdatedAt
	a.machine = lifecycle.NewMachine(func(o *lifecycle.Options) {
		o.State = snap.State
		o.History = snap.History
		o.Now = now
	})

	if snap.State.IsTerminal() {
		a.cancel()
	}

	return a
}

func newAgent(id, name, parentID string, flags core.Flags, parent context.Context, now func() time.Time) *Agent {
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := context.WithCancel(parent)

	return &Agent{
		id:       id,
		name:     name,
		parentID: parentID,
		flags:    flags,
		now:      now,
		sem:      make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ID returns the unique identifier of the agent.
func (a *Agent) ID() string { return a.id }

// Name returns the globally unique name of the agent.
func (a *Agent) Name() string { return a.name }

// ParentID returns the parent id, empty for the root.
func (a *Agent) ParentID() string { return a.parentID }

// Flags returns the behavior flags.
func (a *Agent) Flags() core.Flags { return a.flags }

// Context returns the agent's cancellation context. It is done once the agent
// or any ancestor is dismissed.
func (a *Agent) Context() context.Context { return a.ctx }

// Cancel cancels every in-flight operation of the agent and its descendants.
func (a *Agent) Cancel() { a.cancel() }

// State returns the current lifecycle state.
func (a *Agent) State() core.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.machine.State()
}

// ChildIDs returns a copy of the ordered child ids.
func (a *Agent) ChildIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.childIDs...)
}

// Remaining returns the remaining budget.
func (a *Agent) Remaining() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remaining
}

// Snapshot returns a deep copy of the record.
func (a *Agent) Snapshot() core.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Agent) snapshotLocked() core.Snapshot {
	return core.Snapshot{
		ID:              a.id,
		Name:            a.name,
		State:           a.machine.State(),
		ParentID:        a.parentID,
		ChildIDs:        append([]string(nil), a.childIDs...),
		AllocatedBudget: a.allocated,
		RemainingBudget: a.remaining,
		Commitments:     core.CloneCommitments(a.commitments),
		Flags:           a.flags,
		History:         a.machine.History(),
		FailureReason:   a.failureReason,
		Version:         a.version,
		UpdatedAt:       a.updatedAt,
	}
}

// touchLocked marks a committed mutation.
func (a *Agent) touchLocked() {
	a.version++
	a.updatedAt = a.now().UTC()
}

func (a *Agent) guardsLocked() lifecycle.Guards {
	return lifecycle.Guards{Mode: a.flags.Mode, HasCommitments: a.hasActiveCommitmentsLocked()}
}

// Fire applies a lifecycle event. reason is recorded when the agent fails.
// The returned snapshot reflects the record right after the transition and
// is what write-through persistence should save.
func (a *Agent) Fire(ev core.Event, reason string) (core.Transition, core.Snapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, err := a.machine.Fire(ev, a.guardsLocked())
	if err != nil {
		return core.Transition{}, core.Snapshot{}, &core.TransitionError{AgentID: a.id, From: a.machine.State(), Event: ev}
	}

	if t.To == core.StateFailed {
		a.failureReason = reason
		if a.failureReason == "" {
			a.failureReason = string(ev)
		}
	}

	a.touchLocked()
	return t, a.snapshotLocked(), nil
}

// Can reports whether ev would currently be accepted.
func (a *Agent) Can(ev core.Event) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.machine.Can(ev, a.guardsLocked())
}

// Reserve atomically checks and decrements the budget for a child
// allocation. A failed reservation leaves the budget untouched.
func (a *Agent) Reserve(amount int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.machine.State().IsTerminal() {
		return fmt.Errorf("%w: %s is %s", core.ErrParentTerminal, a.name, a.machine.State())
	}

	if amount > a.remaining {
		return fmt.Errorf("%w: %s has %d, requested %d", core.ErrInsufficientBudget, a.name, a.remaining, amount)
	}

	a.remaining -= amount
	a.touchLocked()
	return nil
}

// CheckBudget returns core.ErrBudgetExhausted when fewer than cost units
// remain. It never spends.
func (a *Agent) CheckBudget(cost int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.remaining <= 0 || cost > a.remaining {
		return fmt.Errorf("%w: %s has %d, needs %d", core.ErrBudgetExhausted, a.name, a.remaining, cost)
	}
	return nil
}

// Spend deducts cost, clamping at zero, and returns the remaining budget.
func (a *Agent) Spend(cost int64) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cost < 0 {
		cost = 0
	}
	a.remaining -= cost
	if a.remaining < 0 {
		a.remaining = 0
	}
	a.touchLocked()
	return a.remaining
}

// AddChild appends a child id.
func (a *Agent) AddChild(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.childIDs = append(a.childIDs, id)
	a.touchLocked()
}

// RemoveChild detaches a child id. It reports whether the id was present.
func (a *Agent) RemoveChild(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := slices.Index(a.childIDs, id)
	if i < 0 {
		return false
	}
	a.childIDs = slices.Delete(a.childIDs, i, i+1)
	a.touchLocked()
	return true
}

// Declare appends new commitments and returns them.
func (a *Agent) Declare(specs ...core.CommitmentSpec) []core.Commitment {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now().UTC()
	out := make([]core.Commitment, 0, len(specs))
	for _, spec := range specs {
		c := core.NewCommitment(spec, now)
		a.commitments = append(a.commitments, c)
		out = append(out, c.Clone())
	}
	if len(specs) > 0 {
		a.touchLocked()
	}
	return out
}

// Supersede replaces an active commitment with a new declaration. The old
// commitment stays in the record, marked inactive.
func (a *Agent) Supersede(oldID string, spec core.CommitmentSpec) (core.Commitment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := a.indexLocked(oldID)
	if i < 0 {
		return core.Commitment{}, fmt.Errorf("commitment %s not found on agent %s", oldID, a.name)
	}
	if !a.commitments[i].Active() {
		return core.Commitment{}, fmt.Errorf("commitment %s already superseded", oldID)
	}

	c := core.NewCommitment(spec, a.now().UTC())
	a.commitments[i].SupersededBy = c.ID
	a.commitments = append(a.commitments, c)
	a.touchLocked()
	return c.Clone(), nil
}

// Commitments returns a deep copy of all commitments, superseded included.
func (a *Agent) Commitments() []core.Commitment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return core.CloneCommitments(a.commitments)
}

// HasActiveCommitments reports whether at least one commitment is active.
func (a *Agent) HasActiveCommitments() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hasActiveCommitmentsLocked()
}

func (a *Agent) hasActiveCommitmentsLocked() bool {
	for _, c := range a.commitments {
		if c.Active() {
			return true
		}
	}
	return false
}

func (a *Agent) indexLocked(id string) int {
	return slices.IndexFunc(a.commitments, func(c core.Commitment) bool { return c.ID == id })
}

// UpdateCommitment mutates one commitment under the agent mutex. fn must not
// block.
func (a *Agent) UpdateCommitment(id string, fn func(c *core.Commitment) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := a.indexLocked(id)
	if i < 0 {
		return fmt.Errorf("commitment %s not found on agent %s", id, a.name)
	}
	if err := fn(&a.commitments[i]); err != nil {
		return err
	}
	a.touchLocked()
	return nil
}

// Acquire blocks until the agent accepts a new operation. The returned
// release function is idempotent. Acquire fails with ctx's error or with
// core.ErrCancelled once the agent is dismissed.
func (a *Agent) Acquire(ctx context.Context) (func(), error) {
	select {
	case <-a.ctx.Done():
		return nil, fmt.Errorf("%w: %s", core.ErrCancelled, a.name)
	default:
	}

	select {
	case a.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.ctx.Done():
		return nil, fmt.Errorf("%w: %s", core.ErrCancelled, a.name)
	}

	return a.releaser(), nil
}

// TryAcquire acquires the operation slot without blocking.
func (a *Agent) TryAcquire() (func(), bool) {
	select {
	case a.sem <- struct{}{}:
		return a.releaser(), true
	default:
		return nil, false
	}
}

func (a *Agent) releaser() func() {
	var once sync.Once
	return func() { once.Do(func() { <-a.sem }) }
}
