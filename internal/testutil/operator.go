package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/agenttree/core"
)

// RecordingOperator records surfaced escalations. Err, when set, is returned
// from Surface after recording.
type RecordingOperator struct {
	mu   sync.Mutex
	seen []core.Escalation
	Err  error
}

// Surface implements core.Operator.
func (o *RecordingOperator) Surface(_ context.Context, esc core.Escalation) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, esc.Clone())
	return o.Err
}

// Surfaced returns a copy of all recorded escalations.
func (o *RecordingOperator) Surfaced() []core.Escalation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]core.Escalation(nil), o.seen...)
}

// Count returns the number of surfaced escalations.
func (o *RecordingOperator) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.seen)
}
