package testutil

import (
	"time"

	"github.com/hupe1980/agenttree/core"
)

// SnapshotBuilder helps construct snapshots with fluent chaining for tests.
// Example:
//
//	snap := NewSnapshotBuilder("a-1", "alpha").Parent("root").Budget(10, 4).Build()
type SnapshotBuilder struct {
	snap core.Snapshot
}

// NewSnapshotBuilder creates an idle interactive snapshot.
func NewSnapshotBuilder(id, name string) *SnapshotBuilder {
	return &SnapshotBuilder{snap: core.Snapshot{
		ID:        id,
		Name:      name,
		State:     core.StateIdle,
		Flags:     core.Flags{Mode: core.ModeInteractive},
		UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}}
}

// Root marks the snapshot as the root (chainable).
func (b *SnapshotBuilder) Root() *SnapshotBuilder {
	b.snap.Flags.IsRoot = true
	return b
}

// Parent sets the parent id (chainable).
func (b *SnapshotBuilder) Parent(id string) *SnapshotBuilder {
	b.snap.ParentID = id
	return b
}

// Children sets the child ids (chainable).
func (b *SnapshotBuilder) Children(ids ...string) *SnapshotBuilder {
	b.snap.ChildIDs = append(b.snap.ChildIDs, ids...)
	return b
}

// State sets the lifecycle state (chainable).
func (b *SnapshotBuilder) State(s core.State) *SnapshotBuilder {
	b.snap.State = s
	return b
}

// Budget sets allocated and remaining budget (chainable).
func (b *SnapshotBuilder) Budget(allocated, remaining int64) *SnapshotBuilder {
	b.snap.AllocatedBudget = allocated
	b.snap.RemainingBudget = remaining
	return b
}

// Mode sets the operating mode (chainable).
func (b *SnapshotBuilder) Mode(m core.Mode) *SnapshotBuilder {
	b.snap.Flags.Mode = m
	return b
}

// Commitment appends a commitment (chainable).
func (b *SnapshotBuilder) Commitment(c core.Commitment) *SnapshotBuilder {
	b.snap.Commitments = append(b.snap.Commitments, c)
	return b
}

// Version sets the version (chainable).
func (b *SnapshotBuilder) Version(v uint64) *SnapshotBuilder {
	b.snap.Version = v
	return b
}

// Build returns a deep copy of the snapshot.
func (b *SnapshotBuilder) Build() core.Snapshot {
	return b.snap.Clone()
}
