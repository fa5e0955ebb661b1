package operator

import (
	"context"
	"slices"
	"sync"

	"github.com/hupe1980/agenttree/core"
)

// InboxOptions configures an Inbox.
type InboxOptions struct {
	// Notify is called for every surfaced escalation whose classification
	// urgency is at least NotifyUrgency. It must not block.
	Notify        func(esc core.Escalation)
	NotifyUrgency int
}

// Inbox is an in-memory operator queue. Escalations are ordered by
// urgency (urgent, quick, deep, routine) and then by arrival.
type Inbox struct {
	mu      sync.Mutex
	items   []entry
	seq     uint64
	arrived chan struct{}
	opts    InboxOptions
}

type entry struct {
	esc core.Escalation
	seq uint64
}

// NewInbox creates an empty inbox. By default only urgent escalations
// trigger Notify.
func NewInbox(optFns ...func(o *InboxOptions)) *Inbox {
	opts := InboxOptions{NotifyUrgency: core.ClassificationUrgent.Urgency()}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Inbox{arrived: make(chan struct{}), opts: opts}
}

// Surface implements core.Operator.
func (in *Inbox) Surface(_ context.Context, esc core.Escalation) error {
	in.mu.Lock()
	in.seq++
	in.items = append(in.items, entry{esc: esc.Clone(), seq: in.seq})
	slices.SortStableFunc(in.items, compareEntries)
	close(in.arrived)
	in.arrived = make(chan struct{})
	in.mu.Unlock()

	if in.opts.Notify != nil && esc.Classification.Urgency() >= in.opts.NotifyUrgency {
		in.opts.Notify(esc.Clone())
	}
	return nil
}

func compareEntries(a, b entry) int {
	if d := b.esc.Classification.Urgency() - a.esc.Classification.Urgency(); d != 0 {
		return d
	}
	switch {
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	default:
		return 0
	}
}

// List returns the queued escalations in triage order.
func (in *Inbox) List() []core.Escalation {
	in.mu.Lock()
	defer in.mu.Unlock()

	out := make([]core.Escalation, len(in.items))
	for i, e := range in.items {
		out[i] = e.esc.Clone()
	}
	return out
}

// Len returns the number of queued escalations.
func (in *Inbox) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.items)
}

// Next removes and returns the most urgent escalation.
func (in *Inbox) Next() (core.Escalation, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if len(in.items) == 0 {
		return core.Escalation{}, false
	}
	e := in.items[0]
	in.items = in.items[1:]
	return e.esc, true
}

// Wait blocks until an escalation is available and removes it.
func (in *Inbox) Wait(ctx context.Context) (core.Escalation, error) {
	for {
		in.mu.Lock()
		if len(in.items) > 0 {
			e := in.items[0]
			in.items = in.items[1:]
			in.mu.Unlock()
			return e.esc, nil
		}
		arrived := in.arrived
		in.mu.Unlock()

		select {
		case <-ctx.Done():
			return core.Escalation{}, ctx.Err()
		case <-arrived:
		}
	}
}

// Remove drops the escalation with the given id. It reports whether it was
// queued.
func (in *Inbox) Remove(escID string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	i := slices.IndexFunc(in.items, func(e entry) bool { return e.esc.ID == escID })
	if i < 0 {
		return false
	}
	in.items = slices.Delete(in.items, i, i+1)
	return true
}
