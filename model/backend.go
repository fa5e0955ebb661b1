package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agenttree/core"
	"github.com/hupe1980/agenttree/logging"
)

// BackendOptions configures a Backend.
type BackendOptions struct {
	// System is prepended to the directive instructions.
	System string
	// Stream requests streaming generation from the model.
	Stream bool
	// TokensPerUnit converts token usage into budget units. Zero leaves the
	// reply cost at zero so the engine's per-send cost applies.
	TokensPerUnit int64
	Logger        logging.Logger
}

// Backend adapts a Model to the core.Backend port.
type Backend struct {
	model Model
	opts  BackendOptions
}

// NewBackend creates a Backend over m.
func NewBackend(m Model, optFns ...func(o *BackendOptions)) *Backend {
	opts := BackendOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Backend{model: m, opts: opts}
}

var _ core.Backend = (*Backend)(nil)

// Send implements core.Backend.
func (b *Backend) Send(ctx context.Context, agentID, prompt string, sc core.SessionContext) (core.Reply, error) {
	req := Request{
		System:   b.system(sc),
		Messages: append(append([]core.Message(nil), sc.History...), core.Message{Role: core.RoleUser, Text: prompt}),
		Stream:   b.opts.Stream,
	}

	resp, err := Collect(ctx, b.model, req)
	if err != nil {
		return core.Reply{}, fmt.Errorf("%s generate: %w", b.model.Info().Provider, err)
	}

	reply, err := ParseReply(resp.Text)
	if err != nil {
		b.opts.Logger.Warn("Ignoring malformed directive", "agent_id", agentID, "error", err)
		reply = core.Reply{Text: strings.TrimSpace(resp.Text)}
	}

	if resp.Usage != nil && b.opts.TokensPerUnit > 0 {
		reply.Cost = (resp.Usage.TotalTokens + b.opts.TokensPerUnit - 1) / b.opts.TokensPerUnit
	}

	return reply, nil
}

func (b *Backend) system(sc core.SessionContext) string {
	var sb strings.Builder
	if b.opts.System != "" {
		sb.WriteString(b.opts.System)
		sb.WriteString("\n\n")
	}
	sb.WriteString(Instructions)
	fmt.Fprintf(&sb, "\n\nYou are %q, running in %s mode with %d budget units left.", sc.Name, sc.Mode, sc.RemainingBudget)

	if len(sc.FailedCommitments) > 0 {
		sb.WriteString("\nThese commitments failed verification and must be fixed:")
		for _, c := range sc.FailedCommitments {
			fmt.Fprintf(&sb, "\n- %s (%s): %s", c.Description, c.Assertion, c.Latest().Output)
		}
	}
	return sb.String()
}
