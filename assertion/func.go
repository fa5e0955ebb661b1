package assertion

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/agenttree/core"
)

// CheckFunc is a Go implemented assertion.
type CheckFunc func(ctx context.Context) (passed bool, output string, err error)

// FuncRunner resolves assertion expressions to registered CheckFuncs.
type FuncRunner struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewFuncRunner creates an empty registry.
func NewFuncRunner() *FuncRunner {
	return &FuncRunner{checks: make(map[string]CheckFunc)}
}

// Register adds or replaces the check with the given name.
func (r *FuncRunner) Register(name string, fn CheckFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[name] = fn
}

// Names returns the registered check names, sorted.
func (r *FuncRunner) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.checks))
	for n := range r.checks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run implements core.AssertionRunner.
func (r *FuncRunner) Run(ctx context.Context, a core.Assertion) (core.AssertionResult, error) {
	r.mu.RLock()
	fn, ok := r.checks[a.Expr]
	r.mu.RUnlock()

	if !ok {
		return core.AssertionResult{}, fmt.Errorf("no check registered as %q", a.Expr)
	}

	passed, output, err := fn(ctx)
	if err != nil {
		return core.AssertionResult{}, err
	}
	return core.AssertionResult{Success: passed, Output: output}, nil
}
