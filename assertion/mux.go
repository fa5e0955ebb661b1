package assertion

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agenttree/core"
)

// Mux dispatches assertions to runners by core.Assertion.Runner.
type Mux struct {
	mu      sync.RWMutex
	runners map[string]core.AssertionRunner
}

// NewMux creates an empty mux.
func NewMux() *Mux {
	return &Mux{runners: make(map[string]core.AssertionRunner)}
}

// Handle registers runner for scheme (chainable).
func (m *Mux) Handle(scheme string, runner core.AssertionRunner) *Mux {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runners[scheme] = runner
	return m
}

// Run implements core.AssertionRunner.
func (m *Mux) Run(ctx context.Context, a core.Assertion) (core.AssertionResult, error) {
	m.mu.RLock()
	runner, ok := m.runners[a.Runner]
	m.mu.RUnlock()

	if !ok {
		return core.AssertionResult{}, fmt.Errorf("no assertion runner for %q", a.Runner)
	}
	return runner.Run(ctx, a)
}

// NewDefault returns a mux with "cmd" mapped to a CommandRunner and "func"
// mapped to funcs.
func NewDefault(funcs *FuncRunner, optFns ...func(o *CommandOptions)) *Mux {
	if funcs == nil {
		funcs = NewFuncRunner()
	}
	return NewMux().
		Handle("cmd", NewCommandRunner(optFns...)).
		Handle("func", funcs)
}
