package hierarchy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/hupe1980/agenttree/agent"
	"github.com/hupe1980/agenttree/core"
	"github.com/hupe1980/agenttree/logging"
)

// MaxNameLength bounds agent names, counted in runes.
const MaxNameLength = 128

// ValidateName reports whether name is usable as an agent name: non-empty,
// at most MaxNameLength runes, without surrounding whitespace or control
// characters.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) != name || name == "":
	case utf8.RuneCountInString(name) > MaxNameLength:
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
	default:
		return nil
	}
	return fmt.Errorf("%w: %q", core.ErrInvalidName, name)
}

// RootSpec describes the supervising root agent.
type RootSpec struct {
	ID          string
	Name        string
	Budget      int64
	Commitments []core.CommitmentSpec
	Mode        core.Mode
}

// SpawnRequest describes a worker to spawn under ParentID.
type SpawnRequest struct {
	ParentID       string
	Name           string
	Budget         int64
	Commitments    []core.CommitmentSpec
	Mode           core.Mode
	AutoReapOnDone bool
}

// TransitionFunc observes transitions fired by the manager itself (dismissal).
type TransitionFunc func(t core.Transition, snap core.Snapshot)

// Options configures a Manager.
type Options struct {
	Logger logging.Logger
	Now    func() time.Time
	// Context is the base cancellation context of the root agent.
	Context context.Context
	// OnTransition is called for every transition fired during dismissal,
	// children first.
	OnTransition TransitionFunc
}

// Manager is the hierarchy registry. It is safe for concurrent use.
type Manager struct {
	mu     sync.RWMutex
	byID   map[string]*agent.Agent
	byName map[string]string
	rootID string

	logger       logging.Logger
	now          func() time.Time
	base         context.Context
	onTransition TransitionFunc
}

// New creates an empty manager.
func New(optFns ...func(o *Options)) *Manager {
	opts := Options{
		Logger:  logging.NoOpLogger{},
		Now:     time.Now,
		Context: context.Background(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Manager{
		byID:         make(map[string]*agent.Agent),
		byName:       make(map[string]string),
		logger:       opts.Logger,
		now:          opts.Now,
		base:         opts.Context,
		onTransition: opts.OnTransition,
	}
}

// SpawnRoot creates the root agent. Only one root may exist at a time.
func (m *Manager) SpawnRoot(spec RootSpec) (*agent.Agent, error) {
	if err := ValidateName(spec.Name); err != nil {
		return nil, err
	}
	if spec.Budget < 0 {
		return nil, fmt.Errorf("%w: %d", core.ErrInvalidBudget, spec.Budget)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rootID != "" {
		return nil, core.ErrRootExists
	}
	if _, taken := m.byName[spec.Name]; taken {
		return nil, fmt.Errorf("%w: %s", core.ErrDuplicateName, spec.Name)
	}

	mode := spec.Mode
	if mode == "" {
		mode = core.ModeInteractive
	}

	root := agent.New(agent.Config{
		ID:          spec.ID,
		Name:        spec.Name,
		Budget:      spec.Budget,
		Commitments: spec.Commitments,
		Flags:       core.Flags{IsRoot: true, Mode: mode},
		Parent:      m.base,
		Now:         m.now,
	})

	m.registerLocked(root)
	m.rootID = root.ID()

	m.logger.Info("Root agent spawned", "agent_id", root.ID(), "name", root.Name(), "budget", spec.Budget)
	return root, nil
}

// Spawn creates a child under req.ParentID. Name uniqueness, the parent's
// liveness and the budget reservation are checked in one atomic step; a
// failed spawn leaves the parent untouched.
func (m *Manager) Spawn(req SpawnRequest) (*agent.Agent, error) {
	if err := ValidateName(req.Name); err != nil {
		return nil, err
	}
	if req.Budget < 0 {
		return nil, fmt.Errorf("%w: %d", core.ErrInvalidBudget, req.Budget)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	parent, ok := m.byID[req.ParentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrParentNotFound, req.ParentID)
	}
	if _, taken := m.byName[req.Name]; taken {
		return nil, fmt.Errorf("%w: %s", core.ErrDuplicateName, req.Name)
	}
	if err := parent.Reserve(req.Budget); err != nil {
		return nil, err
	}

	mode := req.Mode
	if mode == "" {
		mode = parent.Flags().Mode
	}

	child := agent.New(agent.Config{
		Name:        req.Name,
		ParentID:    parent.ID(),
		Budget:      req.Budget,
		Commitments: req.Commitments,
		Flags:       core.Flags{AutoReapOnDone: req.AutoReapOnDone, Mode: mode},
		Parent:      parent.Context(),
		Now:         m.now,
	})

	m.registerLocked(child)
	parent.AddChild(child.ID())

	m.logger.Info("Agent spawned", "agent_id", child.ID(), "name", child.Name(), "parent_id", parent.ID(), "budget", req.Budget)
	return child, nil
}

func (m *Manager) registerLocked(a *agent.Agent) {
	m.byID[a.ID()] = a
	m.byName[a.Name()] = a.ID()
}

// Dismiss removes the subtree rooted at id and drives every node to failed.
// The target receives ev (for example core.EventCutBait); descendants
// receive core.EventDismiss. In-flight operations are cancelled. Agents
// already terminal keep their state. Final snapshots are returned children
// first.
func (m *Manager) Dismiss(id string, ev core.Event, reason string) ([]core.Snapshot, error) {
	if ev == "" {
		ev = core.EventDismiss
	}
	if !ev.IsFailure() {
		return nil, fmt.Errorf("%w: %s cannot dismiss", core.ErrInvalidTransition, ev)
	}

	m.mu.Lock()
	target, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", core.ErrAgentNotFound, id)
	}

	subtree := m.postOrderLocked(target, nil)
	if parent, ok := m.byID[target.ParentID()]; ok {
		parent.RemoveChild(id)
	}
	for _, a := range subtree {
		delete(m.byID, a.ID())
		delete(m.byName, a.Name())
	}
	if m.rootID == id {
		m.rootID = ""
	}
	m.mu.Unlock()

	// Cancelling the target cancels every descendant context with it.
	target.Cancel()

	out := make([]core.Snapshot, 0, len(subtree))
	for _, a := range subtree {
		a.Cancel()

		nodeEv, nodeReason := core.EventDismiss, fmt.Sprintf("ancestor %s dismissed", target.Name())
		if a == target {
			nodeEv, nodeReason = ev, reason
		}

		if a.State().IsTerminal() {
			out = append(out, a.Snapshot())
			continue
		}

		t, snap, err := a.Fire(nodeEv, nodeReason)
		if err != nil {
			// Lost the race against a concurrent terminal transition.
			out = append(out, a.Snapshot())
			continue
		}

		if m.onTransition != nil {
			m.onTransition(t, snap)
		}
		out = append(out, snap)
	}

	m.logger.Info("Subtree dismissed", "agent_id", id, "name", target.Name(), "event", string(ev), "removed", len(subtree))
	return out, nil
}

func (m *Manager) postOrderLocked(a *agent.Agent, acc []*agent.Agent) []*agent.Agent {
	for _, cid := range a.ChildIDs() {
		if c, ok := m.byID[cid]; ok {
			acc = m.postOrderLocked(c, acc)
		}
	}
	return append(acc, a)
}

// Restore rebuilds a tree from snapshots, parents before children. The
// manager must not hold a root. Child ids without a snapshot are dropped.
func (m *Manager) Restore(snaps ...core.Snapshot) ([]*agent.Agent, error) {
	index := make(map[string]core.Snapshot, len(snaps))
	var rootID string
	for _, s := range snaps {
		index[s.ID] = s
		if s.IsRoot() {
			if rootID != "" {
				return nil, fmt.Errorf("%w: snapshots contain two roots", core.ErrRootExists)
			}
			rootID = s.ID
		}
	}
	if rootID == "" {
		return nil, fmt.Errorf("%w: no root snapshot", core.ErrAgentNotFound)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rootID != "" {
		return nil, core.ErrRootExists
	}

	var (
		restored []*agent.Agent
		walk     func(id string, parent context.Context) error
	)

	walk = func(id string, parent context.Context) error {
		s := index[id]
		if _, taken := m.byName[s.Name]; taken {
			return fmt.Errorf("%w: %s", core.ErrDuplicateName, s.Name)
		}

		s = s.Clone()
		kids := s.ChildIDs[:0]
		for _, cid := range s.ChildIDs {
			if _, ok := index[cid]; ok {
				kids = append(kids, cid)
			}
		}
		s.ChildIDs = kids

		a := agent.FromSnapshot(parent, s, m.now)
		m.registerLocked(a)
		restored = append(restored, a)

		for _, cid := range s.ChildIDs {
			if err := walk(cid, a.Context()); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(rootID, m.base); err != nil {
		for _, a := range restored {
			delete(m.byID, a.ID())
			delete(m.byName, a.Name())
			a.Cancel()
		}
		return nil, err
	}

	m.rootID = rootID
	m.logger.Info("Tree restored", "root_id", rootID, "agents", len(restored))
	return restored, nil
}

// Get returns the live agent with the given id.
func (m *Manager) Get(id string) (*agent.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrAgentNotFound, id)
	}
	return a, nil
}

// GetByName returns the live agent with the given name.
func (m *Manager) GetByName(name string) (*agent.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrAgentNotFound, name)
	}
	return m.byID[id], nil
}

// Root returns the root agent, if any.
func (m *Manager) Root() (*agent.Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.byID[m.rootID]
	return a, ok
}

// Parent returns the parent id of a live agent. ok is false when the agent
// is not registered; the root has an empty parent id.
func (m *Manager) Parent(id string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.byID[id]
	if !ok {
		return "", false
	}
	return a.ParentID(), true
}

// Descendants returns the ids of every live descendant of id in pre-order.
func (m *Manager) Descendants(id string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrAgentNotFound, id)
	}

	var out []string
	var walk func(a *agent.Agent)
	walk = func(a *agent.Agent) {
		for _, cid := range a.ChildIDs() {
			if c, ok := m.byID[cid]; ok {
				out = append(out, cid)
				walk(c)
			}
		}
	}
	walk(a)
	return out, nil
}

// Agents returns every live agent, root first, in pre-order.
func (m *Manager) Agents() []*agent.Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	root, ok := m.byID[m.rootID]
	if !ok {
		return nil
	}

	out := make([]*agent.Agent, 0, len(m.byID))
	var walk func(a *agent.Agent)
	walk = func(a *agent.Agent) {
		out = append(out, a)
		for _, cid := range a.ChildIDs() {
			if c, ok := m.byID[cid]; ok {
				walk(c)
			}
		}
	}
	walk(root)
	return out
}

// Snapshots returns snapshots of every live agent, root first.
func (m *Manager) Snapshots() []core.Snapshot {
	agents := m.Agents()
	out := make([]core.Snapshot, len(agents))
	for i, a := range agents {
		out[i] = a.Snapshot()
	}
	return out
}

// Len returns the number of live agents.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}
