package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agenttree/core"
	"github.com/hupe1980/agenttree/internal/testutil"
)

var _ core.Store = (*Store)(nil)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSnapshot() core.Snapshot {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	c := core.NewCommitment(core.CommitmentSpec{
		Description: "unit tests pass",
		Assertion:   core.Assertion{Runner: "cmd", Expr: "go test ./...", Timeout: time.Minute},
	}, now)
	_ = c.Begin(now)
	_ = c.Finish(false, "FAIL pkg", now)
	_ = c.Reopen()

	snap := testutil.NewSnapshotBuilder("a-1", "alpha").
		Parent("root").
		Children("b-1", "b-2").
		State(core.StateWaitingForInput).
		Budget(40, 12).
		Mode(core.ModeAutonomous).
		Commitment(c).
		Version(7).
		Build()
	snap.History = []core.Transition{
		{From: core.StateIdle, Event: core.EventStart, To: core.StateWorking, Timestamp: now},
		{From: core.StateWorking, Event: core.EventAwaitInput, To: core.StateWaitingForInput, Timestamp: now},
	}
	snap.UpdatedAt = now
	return snap
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	snap := sampleSnapshot()
	require.NoError(t, s.Save(ctx, snap))

	got, err := s.Load(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestLoad_Missing(t *testing.T) {
	_, err := testStore(t).Load(context.Background(), "nope")
	assert.ErrorIs(t, err, core.ErrSnapshotNotFound)
}

func TestSave_VersionGuard(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	snap := sampleSnapshot()
	require.NoError(t, s.Save(ctx, snap))

	stale := snap.Clone()
	stale.Version = 6
	stale.State = core.StateWorking
	require.NoError(t, s.Save(ctx, stale))

	got, _ := s.Load(ctx, snap.ID)
	assert.Equal(t, core.StateWaitingForInput, got.State)

	newer := snap.Clone()
	newer.Version = 8
	newer.State = core.StateFailed
	newer.FailureReason = "cut_bait"
	require.NoError(t, s.Save(ctx, newer))

	got, _ = s.Load(ctx, snap.ID)
	assert.Equal(t, core.StateFailed, got.State)
	assert.Equal(t, "cut_bait", got.FailureReason)
}

func TestChildrenListDelete(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	require.NoError(t, s.Save(ctx, testutil.NewSnapshotBuilder("r", "root").Root().Version(1).Build()))
	require.NoError(t, s.Save(ctx, testutil.NewSnapshotBuilder("b", "bravo").Parent("r").Version(1).Build()))
	require.NoError(t, s.Save(ctx, testutil.NewSnapshotBuilder("a", "alpha").Parent("r").Version(1).Build()))

	kids, err := s.Children(ctx, "r")
	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.Equal(t, "alpha", kids[0].Name)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "a"))
	kids, _ = s.Children(ctx, "r")
	assert.Len(t, kids, 1)
}

func TestOpen_FileSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "agents.db")

	s, err := Open(path)
	require.NoError(t, err)
	snap := sampleSnapshot()
	require.NoError(t, s.Save(ctx, snap))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Load(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, snap.Version, got.Version)
	assert.Equal(t, snap.Commitments, got.Commitments)
}
