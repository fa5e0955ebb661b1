package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agenttree/core"
)

// watchdog cuts agents that made no transition for a while. Every
// transition of a live non-root agent re-arms its timer.
type watchdog struct {
	after  time.Duration
	expire func(id string)

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func newWatchdog(after time.Duration, expire func(id string)) *watchdog {
	return &watchdog{after: after, expire: expire, timers: make(map[string]*time.Timer)}
}

func (w *watchdog) touch(id string) {
	if w.after <= 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if old, ok := w.timers[id]; ok {
		old.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(w.after, func() {
		w.mu.Lock()
		current := w.timers[id] == t
		if current {
			delete(w.timers, id)
		}
		w.mu.Unlock()

		if current {
			w.expire(id)
		}
	})
	w.timers[id] = t
}

func (w *watchdog) stop(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[id]; ok {
		t.Stop()
		delete(w.timers, id)
	}
}

func (w *watchdog) stopAll() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
}

// armed reports whether id has a running timer.
func (w *watchdog) armed(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.timers[id]
	return ok
}

func (e *Engine) cutStalled(id string) {
	reason := fmt.Sprintf("no progress within %s", e.policy.CutBaitAfter)
	if _, err := e.dismiss(e.ctx, id, core.EventCutBait, reason); err != nil {
		e.logger.Debug("Watchdog skipped agent", "agent_id", id, "error", err)
		return
	}
	e.logger.Warn("Watchdog cut stalled agent", "agent_id", id, "after", e.policy.CutBaitAfter.String())
}
