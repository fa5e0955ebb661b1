package core

import "context"

// Backend is the LLM backend port. Implementations are non-deterministic and
// may fail; the core never assumes identical prompts produce identical
// replies.
type Backend interface {
	Send(ctx context.Context, agentID, prompt string, sc SessionContext) (Reply, error)
}

// AssertionRunner executes commitment assertions. It is used solely by the
// verifier.
type AssertionRunner interface {
	Run(ctx context.Context, a Assertion) (AssertionResult, error)
}

// Operator receives escalations that no agent in the tree resolved.
type Operator interface {
	Surface(ctx context.Context, esc Escalation) error
}

// Store is the write-through persistence port. Save is called after every
// committed transition; Load is used on restore.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, agentID string) (Snapshot, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, agentID, prompt string, sc SessionContext) (Reply, error)

// Send implements Backend.
func (f BackendFunc) Send(ctx context.Context, agentID, prompt string, sc SessionContext) (Reply, error) {
	return f(ctx, agentID, prompt, sc)
}

// OperatorFunc adapts a function to the Operator interface.
type OperatorFunc func(ctx context.Context, esc Escalation) error

// Surface implements Operator.
func (f OperatorFunc) Surface(ctx context.Context, esc Escalation) error { return f(ctx, esc) }
