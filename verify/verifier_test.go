package verify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agenttree/agent"
	"github.com/hupe1980/agenttree/core"
	"github.com/hupe1980/agenttree/internal/testutil"
)

func spec(expr string) core.CommitmentSpec {
	return core.CommitmentSpec{Description: expr, Assertion: core.Assertion{Runner: "fake", Expr: expr}}
}

type lookupFunc func(id string) (*agent.Agent, error)

func (f lookupFunc) Get(id string) (*agent.Agent, error) { return f(id) }

func TestVerify_OneOfTwoFails(t *testing.T) {
	runner := testutil.NewFakeRunner().On("lint", testutil.Fail("3 warnings"))
	a := agent.New(agent.Config{Name: "A", Budget: 10, Commitments: []core.CommitmentSpec{spec("tests"), spec("lint")}})

	report := New(runner, nil).Verify(context.Background(), a)

	assert.False(t, report.AllPassed)
	require.Len(t, report.Passed, 1)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "tests", report.Passed[0].Assertion.Expr)
	assert.Equal(t, "3 warnings", report.Failed[0].Latest().Output)

	for _, c := range a.Commitments() {
		latest := c.Latest()
		assert.False(t, latest.StartedAt.IsZero())
		assert.False(t, latest.FinishedAt.IsZero())
	}
}

func TestVerify_IdempotentWhenAllPassed(t *testing.T) {
	runner := testutil.NewFakeRunner()
	a := agent.New(agent.Config{Name: "A", Budget: 10, Commitments: []core.CommitmentSpec{spec("one"), spec("two")}})
	v := New(runner, nil)

	first := v.Verify(context.Background(), a)
	require.True(t, first.AllPassed)
	before := a.Commitments()

	second := v.Verify(context.Background(), a)
	assert.True(t, second.AllPassed)
	assert.Equal(t, before, a.Commitments())
	assert.Equal(t, 1, runner.Runs("one"))
	assert.Equal(t, 1, runner.Runs("two"))
}

func TestVerify_ExecutionFailuresBecomeFailed(t *testing.T) {
	runner := testutil.NewFakeRunner().
		On("err", testutil.FakeResult{Err: errors.New("runner exploded")}).
		On("panic", testutil.FakeResult{Panic: "nil map"}).
		On("slow", testutil.FakeResult{Block: true})

	a := agent.New(agent.Config{Name: "A", Budget: 10})
	a.Declare(spec("err"), spec("panic"))
	slow := spec("slow")
	slow.Assertion.Timeout = 10 * time.Millisecond
	a.Declare(slow)

	report := New(runner, nil).Verify(context.Background(), a)

	assert.False(t, report.AllPassed)
	require.Len(t, report.Failed, 3)
	assert.Contains(t, report.Failed[0].Latest().Output, "runner exploded")
	assert.Contains(t, report.Failed[1].Latest().Output, "panicked")
	assert.Contains(t, report.Failed[2].Latest().Output, "deadline exceeded")
}

func TestVerify_SkipsSuperseded(t *testing.T) {
	runner := testutil.NewFakeRunner().On("old", testutil.Fail("stale"))
	a := agent.New(agent.Config{Name: "A", Budget: 10, Commitments: []core.CommitmentSpec{spec("old")}})
	_, err := a.Supersede(a.Commitments()[0].ID, spec("new"))
	require.NoError(t, err)

	report := New(runner, nil).Verify(context.Background(), a)
	assert.True(t, report.AllPassed)
	assert.Equal(t, 0, runner.Runs("old"))
}

func TestVerify_ReopenRetriesOnlyFailed(t *testing.T) {
	runner := testutil.NewFakeRunner().On("flaky", testutil.Fail("first"), testutil.Pass())
	a := agent.New(agent.Config{Name: "A", Budget: 10, Commitments: []core.CommitmentSpec{spec("stable"), spec("flaky")}})
	v := New(runner, nil)

	report := v.Verify(context.Background(), a)
	require.Len(t, report.Failed, 1)

	ids := []string{report.Failed[0].ID, report.Passed[0].ID, "unknown"}
	assert.Equal(t, 1, Reopen(a, ids...))

	report = v.Verify(context.Background(), a)
	assert.True(t, report.AllPassed)
	assert.Equal(t, 1, runner.Runs("stable"))
	assert.Equal(t, 2, runner.Runs("flaky"))

	for _, c := range a.Commitments() {
		if c.Assertion.Expr == "flaky" {
			require.Len(t, c.Attempts, 2)
			assert.Equal(t, core.CommitmentFailed, c.Attempts[0].Status)
			assert.Equal(t, "first", c.Attempts[0].Output)
			assert.Equal(t, core.CommitmentPassed, c.Attempts[1].Status)
		}
	}
}

type countingRunner struct {
	active, peak atomic.Int32
}

func (r *countingRunner) Run(ctx context.Context, _ core.Assertion) (core.AssertionResult, error) {
	n := r.active.Add(1)
	defer r.active.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return core.AssertionResult{Success: true}, nil
}

func TestVerify_ConcurrencyLimit(t *testing.T) {
	runner := &countingRunner{}
	a := agent.New(agent.Config{Name: "A", Budget: 10})
	for _, e := range []string{"a", "b", "c", "d", "e", "f"} {
		a.Declare(spec(e))
	}

	report := New(runner, nil, func(o *Options) { o.Concurrency = 2 }).Verify(context.Background(), a)
	assert.True(t, report.AllPassed)
	assert.LessOrEqual(t, runner.peak.Load(), int32(2))
}

func TestVerifyAll(t *testing.T) {
	a := agent.New(agent.Config{Name: "A", Budget: 10, Commitments: []core.CommitmentSpec{spec("x")}})
	lookup := lookupFunc(func(id string) (*agent.Agent, error) {
		if id == a.ID() {
			return a, nil
		}
		return nil, core.ErrAgentNotFound
	})
	v := New(testutil.NewFakeRunner(), lookup)

	ok, err := v.VerifyAll(context.Background(), a.ID())
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = v.VerifyAll(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrAgentNotFound)
}

func TestInterrupt_ReopensAttemptsLeftVerifying(t *testing.T) {
	runner := testutil.NewFakeRunner()
	a := agent.New(agent.Config{Name: "A", Budget: 10, Commitments: []core.CommitmentSpec{spec("build"), spec("docs")}})
	build := a.Commitments()[0]

	now := time.Now().UTC()
	require.NoError(t, a.UpdateCommitment(build.ID, func(c *core.Commitment) error { return c.Begin(now) }))

	assert.Equal(t, 1, Interrupt(a, "interrupted", now))
	assert.Zero(t, Interrupt(a, "interrupted", now))

	got := a.Commitments()[0]
	require.Len(t, got.Attempts, 2)
	assert.Equal(t, core.CommitmentFailed, got.Attempts[0].Status)
	assert.Equal(t, "interrupted", got.Attempts[0].Output)
	assert.Equal(t, core.CommitmentPending, got.Attempts[1].Status)

	report := New(runner, nil).Verify(context.Background(), a)
	assert.True(t, report.AllPassed)
	assert.Equal(t, 1, runner.Runs("build"))
	assert.Equal(t, 1, runner.Runs("docs"))
}
