package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agenttree/agent"
	"github.com/hupe1980/agenttree/core"
	"github.com/hupe1980/agenttree/logging"
)

// send calls the backend, retrying failures with exponential backoff. The
// error of the last attempt is returned once the retries are used up.
func (e *Engine) send(ctx context.Context, a *agent.Agent, message string, sc core.SessionContext) (core.Reply, error) {
	delay := e.policy.RetryBackoff

	var lastErr error
	for attempt := 0; attempt <= e.policy.SendRetries; attempt++ {
		if attempt > 0 {
			e.logger.Warn("Backend send failed, retrying",
				"agent_id", a.ID(),
				"attempt", attempt,
				"next_delay", delay.String(),
				"error", lastErr,
			)

			if !sleepCtx(ctx, delay) {
				return core.Reply{}, ctx.Err()
			}

			// Grow delay with ceiling.
			delay *= 2
			if ceiling := e.policy.MaxRetryBackoff; ceiling > 0 && delay > ceiling {
				delay = ceiling
			}
		}

		start := e.now()
		reply, err := e.backend.Send(ctx, a.ID(), message, sc)
		logging.BackendCall(e.logger, a.ID(), reply.Cost, e.now().Sub(start), err)
		if err == nil {
			return reply, nil
		}
		if ctx.Err() != nil {
			return core.Reply{}, err
		}
		lastErr = err
	}

	return core.Reply{}, fmt.Errorf("backend send failed after %d attempts: %w", e.policy.SendRetries+1, lastErr)
}

// sleepCtx sleeps for d or until ctx is cancelled. It reports whether the
// full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
