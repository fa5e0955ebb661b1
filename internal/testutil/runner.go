package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/agenttree/core"
)

// FakeRunner answers assertions from a table keyed by Expr. Each key holds a
// queue of results; the last one repeats. Unknown expressions pass.
type FakeRunner struct {
	mu      sync.Mutex
	results map[string][]FakeResult
	runs    map[string]int
}

// FakeResult is a programmed assertion outcome.
type FakeResult struct {
	Success bool
	Output  string
	Err     error
	Panic   any
	// Block waits for context cancellation before returning.
	Block bool
}

// NewFakeRunner creates an empty runner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{results: make(map[string][]FakeResult), runs: make(map[string]int)}
}

// On queues results for expr (chainable).
func (r *FakeRunner) On(expr string, results ...FakeResult) *FakeRunner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[expr] = append(r.results[expr], results...)
	return r
}

// Pass is a passing result.
func Pass() FakeResult { return FakeResult{Success: true, Output: "ok"} }

// Fail is a failing result with the given output.
func Fail(out string) FakeResult { return FakeResult{Output: out} }

// Run implements core.AssertionRunner.
func (r *FakeRunner) Run(ctx context.Context, a core.Assertion) (core.AssertionResult, error) {
	r.mu.Lock()
	r.runs[a.Expr]++
	res := FakeResult{Success: true, Output: "ok"}
	if q := r.results[a.Expr]; len(q) > 0 {
		res = q[0]
		if len(q) > 1 {
			r.results[a.Expr] = q[1:]
		}
	}
	r.mu.Unlock()

	if res.Panic != nil {
		panic(res.Panic)
	}
	if res.Block {
		<-ctx.Done()
		return core.AssertionResult{}, ctx.Err()
	}
	if res.Err != nil {
		return core.AssertionResult{}, res.Err
	}
	return core.AssertionResult{Success: res.Success, Output: res.Output}, nil
}

// Runs reports how often expr was executed.
func (r *FakeRunner) Runs(expr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[expr]
}
