package escalation

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/agenttree/core"
	"github.com/hupe1980/agenttree/logging"
)

// Decision is a resolver's verdict on an escalation.
type Decision int

const (
	// DecisionPass hands the escalation to the next successor.
	DecisionPass Decision = iota
	// DecisionAnswer resolves the escalation immediately.
	DecisionAnswer
	// DecisionDefer parks the escalation with the deciding handler.
	DecisionDefer
)

func (d Decision) String() string {
	switch d {
	case DecisionAnswer:
		return "answer"
	case DecisionDefer:
		return "defer"
	default:
		return "pass"
	}
}

// Resolution is returned by a Resolver.
type Resolution struct {
	Decision Decision
	Answer   string
}

// Answer resolves with text.
func Answer(text string) Resolution { return Resolution{Decision: DecisionAnswer, Answer: text} }

// Pass hands the escalation on.
func Pass() Resolution { return Resolution{Decision: DecisionPass} }

// Defer parks the escalation with the handler.
func Defer() Resolution { return Resolution{Decision: DecisionDefer} }

// Resolver decides what an ancestor does with an escalation.
type Resolver interface {
	Resolve(ctx context.Context, handlerID string, esc core.Escalation) (Resolution, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, handlerID string, esc core.Escalation) (Resolution, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, handlerID string, esc core.Escalation) (Resolution, error) {
	return f(ctx, handlerID, esc)
}

// Tree is the read view of the hierarchy the router walks. ok is false for
// agents that do not exist; the root has an empty parent id.
type Tree interface {
	Parent(id string) (parentID string, ok bool)
}

// Options configures a Router.
type Options struct {
	Logger   logging.Logger
	Operator core.Operator
	Now      func() time.Time
	// DefaultResolver decides for agents without a registered resolver.
	// Nil passes.
	DefaultResolver Resolver
	// MaxHops bounds a single walk.
	MaxHops int
}

// Router routes escalations. It is safe for concurrent use.
type Router struct {
	tree Tree
	opts Options

	mu        sync.RWMutex
	resolvers map[string]Resolver
	focus     string
	pending   map[string]core.Escalation
}

// New creates a router over tree.
func New(tree Tree, optFns ...func(o *Options)) *Router {
	opts := Options{
		Logger:  logging.NoOpLogger{},
		Now:     time.Now,
		MaxHops: 1024,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Router{
		tree:      tree,
		opts:      opts,
		resolvers: make(map[string]Resolver),
		pending:   make(map[string]core.Escalation),
	}
}

// SetResolver registers the resolver consulted when an escalation reaches
// agentID. A nil resolver removes the registration.
func (r *Router) SetResolver(agentID string, res Resolver) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if res == nil {
		delete(r.resolvers, agentID)
		return
	}
	r.resolvers[agentID] = res
}

// Focus routes escalations reaching agentID straight to the operator. Only
// one agent can be focused; focusing another replaces it.
func (r *Router) Focus(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.focus = agentID
}

// Unfocus clears the focus overlay.
func (r *Router) Unfocus() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.focus = ""
}

// Focused returns the focused agent id, if any.
func (r *Router) Focused() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.focus
}

// successor returns the next handler after id; toOperator is true when the
// walk ends at the operator.
func (r *Router) successor(id string) (next string, toOperator bool) {
	r.mu.RLock()
	focused := r.focus == id
	r.mu.RUnlock()

	if focused {
		return "", true
	}

	parent, ok := r.tree.Parent(id)
	if !ok || parent == "" {
		return "", true
	}
	return parent, false
}

func (r *Router) resolverFor(id string) Resolver {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if res, ok := r.resolvers[id]; ok {
		return res
	}
	return r.opts.DefaultResolver
}

// Raise routes a new escalation. ID, Path and RaisedAt are filled in when
// empty. A structural error (routing cycle) leaves nothing pending. When
// surfacing to the operator fails the escalation stays pending and the
// error is returned alongside the surfaced outcome.
func (r *Router) Raise(ctx context.Context, esc core.Escalation) (core.Outcome, error) {
	if esc.OriginAgentID == "" {
		return core.Outcome{}, fmt.Errorf("%w: escalation without origin", core.ErrAgentNotFound)
	}
	if esc.ID == "" {
		esc.ID = core.NewID()
	}
	if esc.Kind == "" {
		esc.Kind = core.KindQuestion
	}
	if esc.Classification == "" {
		esc.Classification = core.ClassificationRoutine
	}
	if esc.RaisedAt.IsZero() {
		esc.RaisedAt = r.opts.Now().UTC()
	}
	esc = esc.Clone()
	if len(esc.Path) == 0 {
		esc.Path = []string{esc.OriginAgentID}
	}
	esc.HandlerID = ""

	return r.walk(ctx, esc, esc.Path[len(esc.Path)-1])
}

func (r *Router) walk(ctx context.Context, esc core.Escalation, from string) (core.Outcome, error) {
	cur := from
	for hops := 0; ; hops++ {
		if hops >= r.opts.MaxHops {
			return core.Outcome{}, fmt.Errorf("%w: %s exceeded %d hops", core.ErrRoutingCycle, esc.ID, r.opts.MaxHops)
		}

		next, toOperator := r.successor(cur)
		if toOperator {
			return r.surface(ctx, esc)
		}
		if esc.Visited(next) {
			return core.Outcome{}, fmt.Errorf("%w: %s revisits %s", core.ErrRoutingCycle, esc.ID, next)
		}
		esc.Path = append(esc.Path, next)

		res := Pass()
		if resolver := r.resolverFor(next); resolver != nil {
			var err error
			res, err = resolver.Resolve(ctx, next, esc.Clone())
			if err != nil {
				r.opts.Logger.Warn("Resolver failed, passing escalation on", "escalation_id", esc.ID, "handler", next, "error", err)
				res = Pass()
			}
		}

		switch res.Decision {
		case DecisionAnswer:
			esc.HandlerID = next
			r.log(esc, core.OutcomeHandled)
			return core.Outcome{Kind: core.OutcomeHandled, HandlerID: next, Answer: res.Answer, Escalation: esc}, nil
		case DecisionDefer:
			esc.HandlerID = next
			r.park(esc)
			r.log(esc, core.OutcomeForwarded)
			return core.Outcome{Kind: core.OutcomeForwarded, HandlerID: next, Escalation: esc.Clone()}, nil
		}

		cur = next
	}
}

func (r *Router) surface(ctx context.Context, esc core.Escalation) (core.Outcome, error) {
	esc.HandlerID = core.OperatorHandlerID
	r.park(esc)
	r.log(esc, core.OutcomeSurfaced)

	out := core.Outcome{Kind: core.OutcomeSurfaced, HandlerID: core.OperatorHandlerID, Escalation: esc.Clone()}

	if r.opts.Operator == nil {
		return out, fmt.Errorf("%w: escalation %s is pending", core.ErrNoOperator, esc.ID)
	}
	if err := r.opts.Operator.Surface(ctx, esc.Clone()); err != nil {
		r.opts.Logger.Error("Surfacing escalation failed", "escalation_id", esc.ID, "error", err)
		return out, fmt.Errorf("surface escalation %s: %w", esc.ID, err)
	}
	return out, nil
}

func (r *Router) park(esc core.Escalation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[esc.ID] = esc.Clone()
}

func (r *Router) log(esc core.Escalation, kind core.OutcomeKind) {
	logging.Escalation(r.opts.Logger, esc.ID, esc.OriginAgentID, string(kind), esc.HandlerID, len(esc.Path)-1)
}

// Resolve answers a parked escalation. Each escalation can be resolved
// exactly once; later calls return core.ErrEscalationNotFound.
func (r *Router) Resolve(escID, answer string) (core.Outcome, error) {
	r.mu.Lock()
	esc, ok := r.pending[escID]
	if ok {
		delete(r.pending, escID)
	}
	r.mu.Unlock()

	if !ok {
		return core.Outcome{}, fmt.Errorf("%w: %s", core.ErrEscalationNotFound, escID)
	}

	r.opts.Logger.Info("Escalation resolved", "escalation_id", escID, "handler", esc.HandlerID)
	return core.Outcome{Kind: core.OutcomeHandled, HandlerID: esc.HandlerID, Answer: answer, Escalation: esc}, nil
}

// Pass lets the ancestor holding a deferred escalation hand it on. The walk
// continues from that ancestor. Escalations held by the operator cannot be
// passed.
func (r *Router) Pass(ctx context.Context, escID string) (core.Outcome, error) {
	r.mu.Lock()
	esc, ok := r.pending[escID]
	if ok && esc.HandlerID != core.OperatorHandlerID {
		delete(r.pending, escID)
	}
	r.mu.Unlock()

	if !ok {
		return core.Outcome{}, fmt.Errorf("%w: %s", core.ErrEscalationNotFound, escID)
	}
	if esc.HandlerID == core.OperatorHandlerID {
		return core.Outcome{}, fmt.Errorf("escalation %s is held by the operator", escID)
	}

	from := esc.HandlerID
	esc.HandlerID = ""
	return r.walk(ctx, esc, from)
}

// Get returns a pending escalation.
func (r *Router) Get(escID string) (core.Escalation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	esc, ok := r.pending[escID]
	return esc.Clone(), ok
}

// Pending returns all parked escalations, oldest first.
func (r *Router) Pending() []core.Escalation {
	r.mu.RLock()
	out := slices.Collect(maps.Values(r.pending))
	r.mu.RUnlock()

	for i := range out {
		out[i] = out[i].Clone()
	}
	slices.SortFunc(out, func(a, b core.Escalation) int {
		if c := a.RaisedAt.Compare(b.RaisedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// PendingFor returns the escalations parked with handlerID.
func (r *Router) PendingFor(handlerID string) []core.Escalation {
	var out []core.Escalation
	for _, esc := range r.Pending() {
		if esc.HandlerID == handlerID {
			out = append(out, esc)
		}
	}
	return out
}

// Drop discards the parked escalations raised by any of the listed agents
// and returns them.
func (r *Router) Drop(originIDs ...string) []core.Escalation {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []core.Escalation
	for id, esc := range r.pending {
		if slices.Contains(originIDs, esc.OriginAgentID) {
			delete(r.pending, id)
			out = append(out, esc)
		}
	}
	return out
}
