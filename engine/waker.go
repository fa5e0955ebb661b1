package engine

import (
	"time"

	"github.com/hupe1980/agenttree/core"
)

// runWaker periodically wakes autonomous agents sleeping in
// waiting_for_wakeup. Busy agents are skipped until the next tick.
func (e *Engine) runWaker(interval time.Duration) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if n := e.wakeSleepers(); n > 0 {
				e.logger.Debug("Woke sleeping agents", "count", n)
			}
		}
	}
}

// wakeSleepers starts a wake turn for every sleeping agent whose operation
// slot is free and returns how many were started.
func (e *Engine) wakeSleepers() int {
	n := 0
	for _, a := range e.tree.Agents() {
		if a.State() != core.StateWaitingForWakeup {
			continue
		}

		release, ok := a.TryAcquire()
		if !ok {
			continue
		}

		n++
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			defer release()

			if a.State() != core.StateWaitingForWakeup {
				return
			}
			if _, err := e.loop(e.ctx, a, core.EventWake, e.policy.WakePrompt); err != nil {
				e.logger.Warn("Wake turn failed", "agent_id", a.ID(), "error", err)
			}
		}()
	}
	return n
}
