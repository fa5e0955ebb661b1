package escalation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agenttree/core"
	"github.com/hupe1980/agenttree/internal/testutil"
)

// mapTree is a static parent table; "" marks the root.
type mapTree map[string]string

func (t mapTree) Parent(id string) (string, bool) {
	p, ok := t[id]
	return p, ok
}

// A <- B <- C
var chain = mapTree{"A": "", "B": "A", "C": "B"}

func newRouter(tree Tree, op core.Operator) *Router {
	return New(tree, func(o *Options) { o.Operator = op })
}

func question(origin string, class core.Classification) core.Escalation {
	return core.Escalation{OriginAgentID: origin, Content: "which database?", Classification: class}
}

func TestRaise_BubblesToAncestor(t *testing.T) {
	op := &testutil.RecordingOperator{}
	r := newRouter(chain, op)

	var visited []string
	r.SetResolver("B", ResolverFunc(func(_ context.Context, h string, _ core.Escalation) (Resolution, error) {
		visited = append(visited, h)
		return Pass(), nil
	}))
	r.SetResolver("A", ResolverFunc(func(_ context.Context, h string, esc core.Escalation) (Resolution, error) {
		visited = append(visited, h)
		return Answer("postgres"), nil
	}))

	out, err := r.Raise(context.Background(), question("C", core.ClassificationQuick))
	require.NoError(t, err)

	assert.Equal(t, core.OutcomeHandled, out.Kind)
	assert.Equal(t, "A", out.HandlerID)
	assert.Equal(t, "postgres", out.Answer)
	assert.Equal(t, []string{"C", "B", "A"}, out.Escalation.Path)
	assert.Equal(t, []string{"B", "A"}, visited)
	assert.NotEmpty(t, out.Escalation.ID)
	assert.False(t, out.Escalation.RaisedAt.IsZero())
	assert.Equal(t, 0, op.Count())
	assert.Empty(t, r.Pending())
}

func TestRaise_SurfacesFromRoot(t *testing.T) {
	op := &testutil.RecordingOperator{}
	r := newRouter(chain, op)

	out, err := r.Raise(context.Background(), question("C", core.ClassificationDeep))
	require.NoError(t, err)

	assert.Equal(t, core.OutcomeSurfaced, out.Kind)
	assert.Equal(t, core.OperatorHandlerID, out.HandlerID)
	require.Equal(t, 1, op.Count())
	assert.Equal(t, []string{"C", "B", "A"}, op.Surfaced()[0].Path)

	pending := r.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, out.Escalation.ID, pending[0].ID)
}

func TestRaise_RootOriginGoesToOperator(t *testing.T) {
	op := &testutil.RecordingOperator{}
	r := newRouter(chain, op)

	out, err := r.Raise(context.Background(), question("A", core.ClassificationQuick))
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeSurfaced, out.Kind)
	assert.Equal(t, []string{"A"}, out.Escalation.Path)
}

func TestRaise_FocusBypassesAncestors(t *testing.T) {
	op := &testutil.RecordingOperator{}
	r := newRouter(chain, op)

	called := false
	r.SetResolver("A", ResolverFunc(func(context.Context, string, core.Escalation) (Resolution, error) {
		called = true
		return Answer("nope"), nil
	}))

	r.Focus("C")
	assert.Equal(t, "C", r.Focused())

	out, err := r.Raise(context.Background(), question("C", core.ClassificationQuick))
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeSurfaced, out.Kind)
	assert.Equal(t, []string{"C"}, out.Escalation.Path)
	assert.False(t, called)

	// Focusing a middle agent cuts the walk there.
	r.Focus("B")
	out, err = r.Raise(context.Background(), question("C", core.ClassificationQuick))
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeSurfaced, out.Kind)
	assert.Equal(t, []string{"C", "B"}, out.Escalation.Path)
	assert.False(t, called)

	r.Unfocus()
	out, err = r.Raise(context.Background(), question("C", core.ClassificationQuick))
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeHandled, out.Kind)
	assert.True(t, called)
}

func TestRaise_VanishedAgentGoesToOperator(t *testing.T) {
	op := &testutil.RecordingOperator{}
	r := newRouter(mapTree{"A": ""}, op)

	out, err := r.Raise(context.Background(), question("ghost", core.ClassificationUrgent))
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeSurfaced, out.Kind)
}

func TestRaise_Cycle(t *testing.T) {
	r := newRouter(mapTree{"X": "Y", "Y": "X"}, &testutil.RecordingOperator{})

	_, err := r.Raise(context.Background(), question("X", core.ClassificationQuick))
	assert.ErrorIs(t, err, core.ErrRoutingCycle)
	assert.Empty(t, r.Pending())
}

func TestRaise_ResolverErrorPasses(t *testing.T) {
	r := newRouter(chain, &testutil.RecordingOperator{})
	r.SetResolver("B", ResolverFunc(func(context.Context, string, core.Escalation) (Resolution, error) {
		return Resolution{}, errors.New("model offline")
	}))
	r.SetResolver("A", ResolverFunc(func(context.Context, string, core.Escalation) (Resolution, error) {
		return Answer("yes"), nil
	}))

	out, err := r.Raise(context.Background(), question("C", core.ClassificationQuick))
	require.NoError(t, err)
	assert.Equal(t, "A", out.HandlerID)
}

func TestRaise_SurfaceErrorKeepsPending(t *testing.T) {
	op := &testutil.RecordingOperator{Err: errors.New("pager down")}
	r := newRouter(chain, op)

	out, err := r.Raise(context.Background(), question("B", core.ClassificationUrgent))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pager down")
	assert.Equal(t, core.OutcomeSurfaced, out.Kind)

	_, ok := r.Get(out.Escalation.ID)
	assert.True(t, ok)
}

func TestRaise_NoOperator(t *testing.T) {
	r := New(chain)

	out, err := r.Raise(context.Background(), question("B", core.ClassificationRoutine))
	assert.ErrorIs(t, err, core.ErrNoOperator)
	assert.Len(t, r.Pending(), 1)

	resolved, err := r.Resolve(out.Escalation.ID, "answered later")
	require.NoError(t, err)
	assert.Equal(t, "answered later", resolved.Answer)
}

func TestDeferAndResolve_ExactlyOnce(t *testing.T) {
	op := &testutil.RecordingOperator{}
	r := newRouter(chain, op)
	r.SetResolver("B", ResolverFunc(func(context.Context, string, core.Escalation) (Resolution, error) {
		return Defer(), nil
	}))

	out, err := r.Raise(context.Background(), question("C", core.ClassificationDeep))
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeForwarded, out.Kind)
	assert.Equal(t, "B", out.HandlerID)
	assert.Len(t, r.PendingFor("B"), 1)
	assert.Equal(t, 0, op.Count())

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve(out.Escalation.ID, "later"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, core.ErrEscalationNotFound)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Empty(t, r.Pending())
}

func TestPass_ContinuesFromDeferringHandler(t *testing.T) {
	op := &testutil.RecordingOperator{}
	r := newRouter(chain, op)
	r.SetResolver("B", ResolverFunc(func(context.Context, string, core.Escalation) (Resolution, error) {
		return Defer(), nil
	}))

	out, err := r.Raise(context.Background(), question("C", core.ClassificationDeep))
	require.NoError(t, err)

	passed, err := r.Pass(context.Background(), out.Escalation.ID)
	require.NoError(t, err)
	assert.Equal(t, core.OutcomeSurfaced, passed.Kind)
	assert.Equal(t, []string{"C", "B", "A"}, passed.Escalation.Path)
	assert.Empty(t, r.PendingFor("B"))
	assert.Len(t, r.PendingFor(core.OperatorHandlerID), 1)

	_, err = r.Pass(context.Background(), out.Escalation.ID)
	assert.Error(t, err)
	assert.Len(t, r.Pending(), 1)

	_, err = r.Pass(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrEscalationNotFound)
}

func TestDefaultResolver(t *testing.T) {
	r := New(chain, func(o *Options) {
		o.Operator = &testutil.RecordingOperator{}
		o.DefaultResolver = ResolverFunc(func(_ context.Context, h string, _ core.Escalation) (Resolution, error) {
			if h == "A" {
				return Answer("default"), nil
			}
			return Pass(), nil
		})
	})

	out, err := r.Raise(context.Background(), question("C", core.ClassificationQuick))
	require.NoError(t, err)
	assert.Equal(t, "default", out.Answer)

	r.SetResolver("B", ResolverFunc(func(context.Context, string, core.Escalation) (Resolution, error) {
		return Answer("override"), nil
	}))
	out, err = r.Raise(context.Background(), question("C", core.ClassificationQuick))
	require.NoError(t, err)
	assert.Equal(t, "override", out.Answer)

	r.SetResolver("B", nil)
	out, err = r.Raise(context.Background(), question("C", core.ClassificationQuick))
	require.NoError(t, err)
	assert.Equal(t, "default", out.Answer)
}

func TestDrop_DiscardsEscalationsOfOrigins(t *testing.T) {
	r := newRouter(chain, &testutil.RecordingOperator{})

	fromC, err := r.Raise(context.Background(), question("C", core.ClassificationQuick))
	require.NoError(t, err)
	fromB, err := r.Raise(context.Background(), question("B", core.ClassificationQuick))
	require.NoError(t, err)
	require.Len(t, r.Pending(), 2)

	dropped := r.Drop("C", "unknown")
	require.Len(t, dropped, 1)
	assert.Equal(t, fromC.Escalation.ID, dropped[0].ID)

	pending := r.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, fromB.Escalation.ID, pending[0].ID)

	_, err = r.Resolve(fromC.Escalation.ID, "too late")
	assert.ErrorIs(t, err, core.ErrEscalationNotFound)
	assert.Empty(t, r.Drop())
}
