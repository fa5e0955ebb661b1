package hierarchy

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agenttree/agent"
	"github.com/hupe1980/agenttree/core"
)

func newTree(t *testing.T, budget int64) (*Manager, *agent.Agent) {
	t.Helper()
	m := New()
	root, err := m.SpawnRoot(RootSpec{Name: "R", Budget: budget})
	require.NoError(t, err)
	return m, root
}

func spawn(t *testing.T, m *Manager, parentID, name string, budget int64) *agent.Agent {
	t.Helper()
	a, err := m.Spawn(SpawnRequest{ParentID: parentID, Name: name, Budget: budget})
	require.NoError(t, err)
	return a
}

func TestSpawn_BudgetScenario(t *testing.T) {
	m, root := newTree(t, 100)

	a := spawn(t, m, root.ID(), "A", 40)
	assert.Equal(t, int64(60), root.Remaining())
	assert.Equal(t, int64(40), a.Remaining())
	assert.Equal(t, []string{a.ID()}, root.ChildIDs())

	_, err := m.Spawn(SpawnRequest{ParentID: root.ID(), Name: "B", Budget: 70})
	assert.ErrorIs(t, err, core.ErrInsufficientBudget)
	assert.Equal(t, int64(60), root.Remaining())
	assert.Equal(t, 2, m.Len())

	_, err = m.GetByName("B")
	assert.ErrorIs(t, err, core.ErrAgentNotFound)
}

func TestSpawn_Errors(t *testing.T) {
	m, root := newTree(t, 100)
	a := spawn(t, m, root.ID(), "A", 10)

	tests := []struct {
		name string
		req  SpawnRequest
		want error
	}{
		{"duplicate name", SpawnRequest{ParentID: root.ID(), Name: "A", Budget: 1}, core.ErrDuplicateName},
		{"duplicate root name", SpawnRequest{ParentID: a.ID(), Name: "R", Budget: 1}, core.ErrDuplicateName},
		{"missing parent", SpawnRequest{ParentID: "nope", Name: "X", Budget: 1}, core.ErrParentNotFound},
		{"negative budget", SpawnRequest{ParentID: root.ID(), Name: "X", Budget: -1}, core.ErrInvalidBudget},
		{"empty name", SpawnRequest{ParentID: root.ID(), Name: "", Budget: 1}, core.ErrInvalidName},
		{"padded name", SpawnRequest{ParentID: root.ID(), Name: " X", Budget: 1}, core.ErrInvalidName},
		{"control character", SpawnRequest{ParentID: root.ID(), Name: "X\nY", Budget: 1}, core.ErrInvalidName},
		{"name too long", SpawnRequest{ParentID: root.ID(), Name: strings.Repeat("x", MaxNameLength+1), Budget: 1}, core.ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Spawn(tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, int64(90), root.Remaining())
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"A", "Agent A", "researcher.eu-west", "Prüfer", strings.Repeat("x", MaxNameLength)} {
		assert.NoError(t, ValidateName(name), name)
	}
	for _, name := range []string{"", "   ", "A ", "tab\tname"} {
		assert.ErrorIs(t, ValidateName(name), core.ErrInvalidName, name)
	}
}

func TestSpawn_TerminalParent(t *testing.T) {
	m, root := newTree(t, 100)
	a := spawn(t, m, root.ID(), "A", 10)

	_, _, err := a.Fire(core.EventError, "boom")
	require.NoError(t, err)

	_, err = m.Spawn(SpawnRequest{ParentID: a.ID(), Name: "B", Budget: 1})
	assert.ErrorIs(t, err, core.ErrParentTerminal)
	assert.Equal(t, int64(10), a.Remaining())
}

func TestSpawn_InheritsMode(t *testing.T) {
	m := New()
	root, err := m.SpawnRoot(RootSpec{Name: "R", Budget: 10, Mode: core.ModeAutonomous})
	require.NoError(t, err)

	a := spawn(t, m, root.ID(), "A", 1)
	assert.Equal(t, core.ModeAutonomous, a.Flags().Mode)
	assert.False(t, a.Flags().IsRoot)
	assert.True(t, root.Flags().IsRoot)

	b, err := m.Spawn(SpawnRequest{ParentID: root.ID(), Name: "B", Budget: 1, Mode: core.ModeInteractive, AutoReapOnDone: true})
	require.NoError(t, err)
	assert.Equal(t, core.ModeInteractive, b.Flags().Mode)
	assert.True(t, b.Flags().AutoReapOnDone)
}

func TestSpawnRoot_Once(t *testing.T) {
	m, _ := newTree(t, 10)
	_, err := m.SpawnRoot(RootSpec{Name: "R2", Budget: 10})
	assert.ErrorIs(t, err, core.ErrRootExists)
}

func TestSpawn_ConcurrentBudgetSafety(t *testing.T) {
	m, root := newTree(t, 100)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int64
	)

	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := m.Spawn(SpawnRequest{ParentID: root.ID(), Name: "w" + string(rune('a'+i%26)) + string(rune('a'+i/26)), Budget: 30})
			if err == nil {
				mu.Lock()
				granted += a.Snapshot().AllocatedBudget
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, core.ErrInsufficientBudget)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(90), granted)
	assert.Equal(t, int64(10), root.Remaining())
	assert.Len(t, root.ChildIDs(), 3)
}

func TestSpawn_ConcurrentSameName(t *testing.T) {
	m, root := newTree(t, 100)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Spawn(SpawnRequest{ParentID: root.ID(), Name: "same", Budget: 1})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, core.ErrDuplicateName)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, int64(99), root.Remaining())
}

func TestDismiss_Subtree(t *testing.T) {
	m, root := newTree(t, 100)
	a := spawn(t, m, root.ID(), "A", 50)
	b := spawn(t, m, a.ID(), "B", 20)
	c := spawn(t, m, b.ID(), "C", 5)
	d := spawn(t, m, a.ID(), "D", 5)
	other := spawn(t, m, root.ID(), "other", 10)

	for _, ag := range []*agent.Agent{b, c} {
		_, _, err := ag.Fire(core.EventStart, "")
		require.NoError(t, err)
	}

	var seen []string
	m.onTransition = func(tr core.Transition, snap core.Snapshot) {
		seen = append(seen, snap.Name)
	}

	snaps, err := m.Dismiss(a.ID(), core.EventCutBait, "no progress")
	require.NoError(t, err)

	names := make([]string, len(snaps))
	for i, s := range snaps {
		names[i] = s.Name
		assert.Equal(t, core.StateFailed, s.State)
	}
	assert.Equal(t, []string{"C", "B", "D", "A"}, names)
	assert.Equal(t, names, seen)

	last := snaps[len(snaps)-1]
	assert.Equal(t, "no progress", last.FailureReason)
	assert.Equal(t, core.EventCutBait, last.History[len(last.History)-1].Event)
	assert.Equal(t, core.EventDismiss, snaps[0].History[len(snaps[0].History)-1].Event)

	for _, ag := range []*agent.Agent{a, b, c, d} {
		assert.Error(t, ag.Context().Err())
		_, err := m.Get(ag.ID())
		assert.ErrorIs(t, err, core.ErrAgentNotFound)
	}

	assert.NoError(t, other.Context().Err())
	assert.Equal(t, []string{other.ID()}, root.ChildIDs())
	assert.Equal(t, 2, m.Len())
	// Budget is not reclaimed.
	assert.Equal(t, int64(40), root.Remaining())

	// Names are released.
	spawn(t, m, root.ID(), "A", 1)
}

func TestDismiss_KeepsTerminalState(t *testing.T) {
	m, root := newTree(t, 10)
	a := spawn(t, m, root.ID(), "A", 5)
	_, _, _ = a.Fire(core.EventStart, "")
	_, _, err := a.Fire(core.EventComplete, "")
	require.NoError(t, err)

	snaps, err := m.Dismiss(a.ID(), core.EventDismiss, "")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, core.StateDone, snaps[0].State)
}

func TestDismiss_Errors(t *testing.T) {
	m, root := newTree(t, 10)

	_, err := m.Dismiss("missing", core.EventDismiss, "")
	assert.ErrorIs(t, err, core.ErrAgentNotFound)

	_, err = m.Dismiss(root.ID(), core.EventStart, "")
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestDismiss_Root(t *testing.T) {
	m, root := newTree(t, 10)
	spawn(t, m, root.ID(), "A", 5)

	snaps, err := m.Dismiss(root.ID(), core.EventDismiss, "shutdown")
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
	assert.Equal(t, 0, m.Len())

	_, ok := m.Root()
	assert.False(t, ok)

	_, err = m.SpawnRoot(RootSpec{Name: "R", Budget: 5})
	assert.NoError(t, err)
}

func TestQueries(t *testing.T) {
	m, root := newTree(t, 100)
	a := spawn(t, m, root.ID(), "A", 10)
	b := spawn(t, m, a.ID(), "B", 5)
	c := spawn(t, m, root.ID(), "C", 10)

	p, ok := m.Parent(b.ID())
	assert.True(t, ok)
	assert.Equal(t, a.ID(), p)

	p, ok = m.Parent(root.ID())
	assert.True(t, ok)
	assert.Empty(t, p)

	_, ok = m.Parent("gone")
	assert.False(t, ok)

	desc, err := m.Descendants(root.ID())
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID(), b.ID(), c.ID()}, desc)

	got, err := m.GetByName("B")
	require.NoError(t, err)
	assert.Equal(t, b, got)

	snaps := m.Snapshots()
	require.Len(t, snaps, 4)
	assert.Equal(t, "R", snaps[0].Name)
}

func TestRestore(t *testing.T) {
	m, root := newTree(t, 100)
	a := spawn(t, m, root.ID(), "A", 40)
	spawn(t, m, a.ID(), "B", 10)
	_, _, _ = a.Fire(core.EventStart, "")

	snaps := m.Snapshots()
	// A stale child reference is pruned.
	snaps[0].ChildIDs = append(snaps[0].ChildIDs, "dangling")

	restored := New()
	agents, err := restored.Restore(snaps[2], snaps[0], snaps[1])
	require.NoError(t, err)
	assert.Len(t, agents, 3)

	r, ok := restored.Root()
	require.True(t, ok)
	assert.Equal(t, root.ID(), r.ID())
	assert.Equal(t, []string{a.ID()}, r.ChildIDs())
	assert.Equal(t, int64(60), r.Remaining())

	ra, err := restored.GetByName("A")
	require.NoError(t, err)
	assert.Equal(t, core.StateWorking, ra.State())
	assert.Equal(t, a.Snapshot().Version, ra.Snapshot().Version)

	_, err = restored.Restore(snaps...)
	assert.ErrorIs(t, err, core.ErrRootExists)

	// Dismissal still cascades after restore.
	rb, err := restored.GetByName("B")
	require.NoError(t, err)
	_, err = restored.Dismiss(ra.ID(), core.EventDismiss, "")
	require.NoError(t, err)
	assert.Error(t, rb.Context().Err())
}

func TestRestore_NoRoot(t *testing.T) {
	m, root := newTree(t, 100)
	spawn(t, m, root.ID(), "A", 10)

	_, err := New().Restore(m.Snapshots()[1])
	assert.ErrorIs(t, err, core.ErrAgentNotFound)
}
