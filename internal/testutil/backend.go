package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agenttree/core"
)

// Step is one scripted backend turn. Exactly one of Reply, Err or Func is used;
// Func wins when set.
type Step struct {
	Reply core.Reply
	Err   error
	Func  func(ctx context.Context, prompt string, sc core.SessionContext) (core.Reply, error)
}

// Call records one Send invocation.
type Call struct {
	AgentID string
	Prompt  string
	Session core.SessionContext
}

// ScriptedBackend replays per-agent scripts. Agents are keyed by id or by
// name; the id wins. When a script runs out, Fallback is returned.
type ScriptedBackend struct {
	mu       sync.Mutex
	scripts  map[string][]Step
	calls    []Call
	Fallback core.Reply
}

// NewScriptedBackend creates an empty backend whose fallback reply
// completes the turn.
func NewScriptedBackend() *ScriptedBackend {
	return &ScriptedBackend{
		scripts:  make(map[string][]Step),
		Fallback: core.Reply{Text: "done", Directive: core.DirectiveComplete},
	}
}

// Script appends steps for the agent with the given id or name (chainable).
func (b *ScriptedBackend) Script(key string, steps ...Step) *ScriptedBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scripts[key] = append(b.scripts[key], steps...)
	return b
}

// Reply is shorthand for Script(key, Step{Reply: r}...).
func (b *ScriptedBackend) Reply(key string, replies ...core.Reply) *ScriptedBackend {
	steps := make([]Step, len(replies))
	for i, r := range replies {
		steps[i] = Step{Reply: r}
	}
	return b.Script(key, steps...)
}

// Send implements core.Backend.
func (b *ScriptedBackend) Send(ctx context.Context, agentID, prompt string, sc core.SessionContext) (core.Reply, error) {
	b.mu.Lock()
	b.calls = append(b.calls, Call{AgentID: agentID, Prompt: prompt, Session: sc})

	key := agentID
	if len(b.scripts[key]) == 0 {
		key = sc.Name
	}

	var step *Step
	if steps := b.scripts[key]; len(steps) > 0 {
		step = &steps[0]
		b.scripts[key] = steps[1:]
	}
	fallback := b.Fallback
	b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return core.Reply{}, err
	}

	if step == nil {
		return fallback, nil
	}
	if step.Func != nil {
		return step.Func(ctx, prompt, sc)
	}
	return step.Reply, step.Err
}

// Calls returns a copy of all recorded calls.
func (b *ScriptedBackend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// CallsFor returns the prompts sent for the agent with the given name.
func (b *ScriptedBackend) CallsFor(name string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []string
	for _, c := range b.calls {
		if c.Session.Name == name || c.AgentID == name {
			out = append(out, c.Prompt)
		}
	}
	return out
}

// Blocking returns a step that blocks until ctx is cancelled and signals
// started once it is running.
func Blocking(started chan<- string) Step {
	return Step{Func: func(ctx context.Context, _ string, sc core.SessionContext) (core.Reply, error) {
		if started != nil {
			started <- sc.Name
		}
		<-ctx.Done()
		return core.Reply{}, fmt.Errorf("backend interrupted: %w", ctx.Err())
	}}
}
