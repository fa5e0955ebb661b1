package agenttree

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agenttree/config"
	"github.com/hupe1980/agenttree/core"
	"github.com/hupe1980/agenttree/hierarchy"
	"github.com/hupe1980/agenttree/internal/testutil"
	"github.com/hupe1980/agenttree/store/sqlite"
)

func TestNew_Defaults(t *testing.T) {
	backend := testutil.NewScriptedBackend().
		Reply("root", core.Reply{Directive: core.DirectiveAsk, Question: "ship it?", Classification: core.ClassificationQuick})

	tree := New(backend)
	t.Cleanup(func() { _ = tree.Close() })

	root, err := tree.StartRoot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "root", root.Name)
	assert.Equal(t, int64(1000), root.AllocatedBudget)

	res, err := tree.Send(context.Background(), root.ID, "plan the release")
	require.NoError(t, err)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, core.OutcomeSurfaced, res.Outcome.Kind)
	assert.Equal(t, core.StateWaitingForInput, res.Snapshot.State)

	require.NotNil(t, tree.Inbox())
	esc, ok := tree.Inbox().Next()
	require.True(t, ok)
	assert.Equal(t, core.KindQuestion, esc.Kind)

	res, err = tree.Answer(context.Background(), esc.ID, "yes")
	require.NoError(t, err)
	assert.Equal(t, core.StateDone, res.Snapshot.State)
}

func TestNew_CustomOperator(t *testing.T) {
	op := &testutil.RecordingOperator{}
	tree := New(testutil.NewScriptedBackend(), func(o *Options) {
		o.Operator = op
		o.Root = hierarchy.RootSpec{Name: "lead", Budget: 10}
	})
	t.Cleanup(func() { _ = tree.Close() })

	assert.Nil(t, tree.Inbox())

	root, err := tree.StartRoot(context.Background())
	require.NoError(t, err)

	_, err = tree.Raise(context.Background(), root.ID, "disk is full", core.KindDiscovery, core.ClassificationUrgent)
	require.NoError(t, err)
	assert.Equal(t, 1, op.Count())
}

func TestNewFromConfig_MockBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Root.Name = "lead"
	cfg.Root.Budget = 20

	tree, err := NewFromConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tree.Close() })

	root, err := tree.StartRoot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "lead", root.Name)

	res, err := tree.Send(context.Background(), root.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, core.StateWaitingForInput, res.Snapshot.State)
	assert.Contains(t, res.Reply.Text, "Mock response to: hello")
	assert.Equal(t, int64(19), res.Snapshot.RemainingBudget)
}

func TestNewFromConfig_SQLiteStore(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = filepath.Join(t.TempDir(), "tree.db")

	tree, err := NewFromConfig(cfg, func(o *Options) {
		o.Backend = testutil.NewScriptedBackend()
	})
	require.NoError(t, err)

	root, err := tree.StartRoot(context.Background())
	require.NoError(t, err)
	w, err := tree.Spawn(context.Background(), hierarchy.SpawnRequest{ParentID: root.ID, Name: "worker", Budget: 5})
	require.NoError(t, err)
	require.NoError(t, tree.Close())

	st, err := sqlite.Open(cfg.Store.Path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	got, err := st.Load(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, "worker", got.Name)
	assert.Equal(t, root.ID, got.ParentID)
	assert.Equal(t, core.StateIdle, got.State)
}

func TestNewFromConfig_Invalid(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.Provider = "carrier-pigeon"

	_, err := NewFromConfig(cfg)
	require.Error(t, err)
}

func TestNewModel(t *testing.T) {
	tests := []struct {
		provider string
		want     string
		wantErr  bool
	}{
		{provider: "", want: "mock"},
		{provider: "mock", want: "mock"},
		{provider: "anthropic", want: "anthropic"},
		{provider: "openai", want: "openai"},
		{provider: "bogus", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			m, err := NewModel(config.BackendConfig{Provider: tt.provider, APIKey: "test"})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Info().Provider)
		})
	}
}

func TestPolicy(t *testing.T) {
	pc := config.Default().Policy
	pc.SendCost = 3
	pc.WakeInterval = time.Minute
	pc.CutBaitAfter = time.Hour
	pc.EscalateFailures = false

	p := Policy(pc)
	assert.Equal(t, int64(3), p.SendCost)
	assert.Equal(t, pc.MaxVerifyRounds, p.MaxVerifyRounds)
	assert.Equal(t, time.Minute, p.WakeInterval)
	assert.Equal(t, time.Hour, p.CutBaitAfter)
	assert.False(t, p.EscalateFailures)
	assert.Equal(t, 30*time.Second, p.MaxRetryBackoff)
}
