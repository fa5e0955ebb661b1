package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agenttree/agent"
	"github.com/hupe1980/agenttree/core"
	"github.com/hupe1980/agenttree/escalation"
	"github.com/hupe1980/agenttree/hierarchy"
	"github.com/hupe1980/agenttree/internal/prompt"
	"github.com/hupe1980/agenttree/lifecycle"
	"github.com/hupe1980/agenttree/logging"
	"github.com/hupe1980/agenttree/session"
	"github.com/hupe1980/agenttree/verify"
)

// Policy tunes the orchestrator's behavior.
type Policy struct {
	// SendCost is charged per backend turn when the reply reports no cost
	// of its own. It is also the minimum budget required before a send.
	SendCost int64

	// SendRetries is the number of retries after a failed backend send.
	SendRetries int

	// RetryBackoff is the delay before the first retry; it doubles per
	// retry up to MaxRetryBackoff.
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration

	// MaxVerifyRounds bounds the verify → work loop of one agent. Zero
	// means unbounded (the budget still bounds it).
	MaxVerifyRounds int

	// MaxTurns bounds the backend turns of a single operation. Zero means
	// unbounded.
	MaxTurns int

	// HistoryLimit is the number of transcript messages sent with each
	// prompt. Zero sends the whole transcript.
	HistoryLimit int

	// WakeInterval enables the autonomous waker when positive.
	WakeInterval time.Duration

	// WakePrompt is sent to an agent woken from waiting_for_wakeup.
	WakePrompt string

	// CutBaitAfter enables the watchdog when positive: a non-root agent
	// without a transition for this long is cut.
	CutBaitAfter time.Duration

	// EscalateFailures raises an urgent failure escalation for non-root
	// agents that fail during their own turn loop.
	EscalateFailures bool
}

// DefaultPolicy provides the default tuning values.
func DefaultPolicy() Policy {
	return Policy{
		SendCost:         1,
		SendRetries:      2,
		RetryBackoff:     500 * time.Millisecond,
		MaxRetryBackoff:  30 * time.Second,
		MaxVerifyRounds:  3,
		MaxTurns:         32,
		HistoryLimit:     50,
		WakePrompt:       "Wake up and continue your task.",
		EscalateFailures: true,
	}
}

// Options configures an Engine instance using the functional options
// pattern. Every collaborator except the backend has a default, so
//
//	eng := engine.New(backend)
//
// yields a working in-memory orchestrator.
type Options struct {
	// Policy contains the operational parameters. Defaults to DefaultPolicy.
	Policy Policy

	// Runner executes commitment assertions. Without a runner every
	// assertion fails.
	Runner core.AssertionRunner

	// Operator receives escalations no agent resolved.
	Operator core.Operator

	// Store receives a write-through snapshot after every committed
	// transition. Nil disables persistence.
	Store core.Store

	// Sessions keeps the per-agent transcripts. Defaults to an in-memory
	// store.
	Sessions session.Store

	// DefaultResolver is consulted for agents without their own resolver.
	DefaultResolver escalation.Resolver

	// VerifyConcurrency bounds parallel assertion runs per verification.
	VerifyConcurrency int

	// Callbacks are registered at construction.
	Callbacks []Callback

	// Context is the base context; cancelling it tears the tree down.
	Context context.Context

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Result describes where an operation on an agent left it.
type Result struct {
	// Snapshot is the agent state when the operation returned.
	Snapshot core.Snapshot

	// Reply is the last backend reply of the operation.
	Reply core.Reply

	// Outcome is set when the operation raised an escalation.
	Outcome *core.Outcome

	// Report is set when the operation ran a verification round.
	Report *verify.Report
}

// Engine is the composition root of the agent tree. It exposes spawn,
// dismiss, send, answer, escalation and verification operations and runs
// each agent's turn loop.
//
// Operations on one agent are serialized; operations on different agents
// run concurrently. Structural errors (core.ErrDuplicateName,
// core.ErrInsufficientBudget, ...) are returned to the caller and leave no
// state behind. Execution failures (backend errors, budget exhaustion,
// failed assertions) are absorbed into the lifecycle and observable as the
// agent's state.
type Engine struct {
	backend   core.Backend
	policy    Policy
	store     core.Store
	sessions  session.Store
	logger    logging.Logger
	now       func() time.Time
	callbacks *CallbackManager

	tree     *hierarchy.Manager
	router   *escalation.Router
	verifier *verify.Verifier
	watchdog *watchdog

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates an engine around backend.
func New(backend core.Backend, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Policy:            DefaultPolicy(),
		Sessions:          session.NewInMemoryStore(0),
		VerifyConcurrency: 4,
		Context:           context.Background(),
		Logger:            logging.NoOpLogger{},
		Now:               time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Runner == nil {
		opts.Runner = missingRunner{}
	}

	ctx, cancel := context.WithCancel(opts.Context)

	e := &Engine{
		backend:   backend,
		policy:    opts.Policy,
		store:     opts.Store,
		sessions:  opts.Sessions,
		logger:    opts.Logger,
		now:       opts.Now,
		callbacks: NewCallbackManager(),
		ctx:       ctx,
		cancel:    cancel,
	}

	e.tree = hierarchy.New(func(o *hierarchy.Options) {
		o.Logger = opts.Logger
		o.Now = opts.Now
		o.Context = ctx
		o.OnTransition = e.observe
	})

	e.router = escalation.New(e.tree, func(o *escalation.Options) {
		o.Logger = opts.Logger
		o.Operator = opts.Operator
		o.Now = opts.Now
		o.DefaultResolver = opts.DefaultResolver
	})

	e.verifier = verify.New(opts.Runner, e.tree, func(o *verify.Options) {
		o.Logger = opts.Logger
		o.Now = opts.Now
		o.Concurrency = opts.VerifyConcurrency
	})

	e.watchdog = newWatchdog(opts.Policy.CutBaitAfter, e.cutStalled)

	for _, cb := range opts.Callbacks {
		e.callbacks.RegisterCallback(cb)
	}

	if opts.Policy.WakeInterval > 0 {
		e.wg.Add(1)
		go e.runWaker(opts.Policy.WakeInterval)
	}

	return e
}

// RegisterCallback adds a hook.
func (e *Engine) RegisterCallback(cb Callback) { e.callbacks.RegisterCallback(cb) }

// Close stops the waker and the watchdog, cancels every in-flight
// operation and waits for background turns to return. Agents keep their
// last state.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.watchdog.stopAll()
		e.cancel()
		e.wg.Wait()
	})
	return nil
}

// Start spawns the root agent.
func (e *Engine) Start(ctx context.Context, spec hierarchy.RootSpec) (core.Snapshot, error) {
	root, err := e.tree.SpawnRoot(spec)
	if err != nil {
		return core.Snapshot{}, err
	}

	snap := root.Snapshot()
	e.spawned(ctx, snap)
	return snap, nil
}

// Spawn creates a worker under req.ParentID.
func (e *Engine) Spawn(ctx context.Context, req hierarchy.SpawnRequest) (core.Snapshot, error) {
	child, err := e.tree.Spawn(req)
	if err != nil {
		return core.Snapshot{}, err
	}

	if parent, err := e.tree.Get(req.ParentID); err == nil {
		e.save(parent.Snapshot())
	}

	snap := child.Snapshot()
	e.spawned(ctx, snap)
	return snap, nil
}

func (e *Engine) spawned(ctx context.Context, snap core.Snapshot) {
	e.save(snap)
	if !snap.IsRoot() {
		e.watchdog.touch(snap.ID)
	}
	e.hook(ctx, CallbackOnSpawn, &CallbackContext{AgentID: snap.ID, Snapshot: &snap})
}

// Dismiss tears down the subtree rooted at id. Every live agent in it is
// cancelled and ends failed. Final snapshots are returned children first.
func (e *Engine) Dismiss(ctx context.Context, id string) ([]core.Snapshot, error) {
	return e.dismiss(ctx, id, core.EventDismiss, "dismissed")
}

// CutBait dismisses the subtree rooted at id with the cut_bait event.
func (e *Engine) CutBait(ctx context.Context, id, reason string) ([]core.Snapshot, error) {
	if reason == "" {
		reason = "cut bait"
	}
	return e.dismiss(ctx, id, core.EventCutBait, reason)
}

func (e *Engine) dismiss(ctx context.Context, id string, ev core.Event, reason string) ([]core.Snapshot, error) {
	snaps, err := e.tree.Dismiss(id, ev, reason)
	if err != nil {
		return nil, err
	}

	target := snaps[len(snaps)-1]
	if parent, err := e.tree.Get(target.ParentID); err == nil {
		// The detached child must not come back on restore.
		e.save(parent.Snapshot())
	}

	focused := e.router.Focused()
	ids := make([]string, len(snaps))
	for i, s := range snaps {
		ids[i] = s.ID
		e.watchdog.stop(s.ID)
		e.router.SetResolver(s.ID, nil)
		if s.ID == focused {
			e.router.Unfocus()
		}
		if err := e.sessions.Delete(s.ID); err != nil {
			e.logger.Warn("Dropping transcript failed", "agent_id", s.ID, "error", err)
		}
	}
	for _, esc := range e.router.Drop(ids...) {
		e.logger.Info("Dropping escalation of dismissed agent", "escalation_id", esc.ID, "origin", esc.OriginAgentID)
	}

	e.hook(ctx, CallbackOnDismiss, &CallbackContext{AgentID: target.ID, Snapshot: &target})
	return snaps, nil
}

// Send delivers an external message to the agent and runs its turn loop
// until the agent completes, fails, or suspends (waiting for input or for
// its next wakeup). Send is valid from idle, waiting_for_input and
// waiting_for_wakeup.
//
// A dismissal during the operation returns core.ErrCancelled with the
// agent already failed. Cancelling ctx parks the agent in
// waiting_for_input and returns the context's error.
func (e *Engine) Send(ctx context.Context, id, message string) (Result, error) {
	a, err := e.tree.Get(id)
	if err != nil {
		return Result{}, err
	}
	return e.turn(ctx, a, message, "")
}

// Wake runs the turn loop of an agent sleeping in waiting_for_wakeup with
// the policy's wake prompt.
func (e *Engine) Wake(ctx context.Context, id string) (Result, error) {
	a, err := e.tree.Get(id)
	if err != nil {
		return Result{}, err
	}
	return e.turn(ctx, a, e.policy.WakePrompt, core.EventWake)
}

// turn acquires the agent's operation slot and runs the loop. A non-empty
// want rejects entry events other than want.
func (e *Engine) turn(ctx context.Context, a *agent.Agent, message string, want core.Event) (Result, error) {
	release, err := a.Acquire(ctx)
	if err != nil {
		return Result{Snapshot: a.Snapshot()}, err
	}
	defer release()

	entry := entryEvent(a.State())
	if entry == "" || (want != "" && entry != want) {
		ev := want
		if ev == "" {
			ev = core.EventInput
		}
		return Result{Snapshot: a.Snapshot()}, &core.TransitionError{AgentID: a.ID(), From: a.State(), Event: ev}
	}

	return e.loop(ctx, a, entry, message)
}

func entryEvent(s core.State) core.Event {
	switch s {
	case core.StateIdle:
		return core.EventStart
	case core.StateWaitingForInput:
		return core.EventInput
	case core.StateWaitingForWakeup:
		return core.EventWake
	default:
		return ""
	}
}

// loop is the turn loop. The caller holds the agent's operation slot.
func (e *Engine) loop(ctx context.Context, a *agent.Agent, entry core.Event, message string) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(a.Context(), cancel)()

	var res Result
	if _, err := e.fire(a, entry, ""); err != nil {
		return e.abort(a, res, err)
	}

	rounds := lifecycle.NewRounds(e.policy.MaxVerifyRounds)
	var failed []core.Commitment

	for turn := 1; ; turn++ {
		if e.policy.MaxTurns > 0 && turn > e.policy.MaxTurns {
			return e.finish(ctx, a, res, core.EventRetriesExhausted, fmt.Sprintf("no result after %d turns", e.policy.MaxTurns))
		}
		if err := a.CheckBudget(e.policy.SendCost); err != nil {
			return e.finish(ctx, a, res, core.EventBudgetExhausted, err.Error())
		}

		reply, err := e.send(ctx, a, message, e.sessionContext(a, failed))
		if err != nil {
			return e.sendFailed(ctx, a, res, err)
		}
		res.Reply = reply
		e.charge(a, reply)
		e.record(a, message, reply)

		if len(reply.Commitments) > 0 {
			a.Declare(reply.Commitments...)
			e.save(a.Snapshot())
		}

		switch reply.Directive {
		case core.DirectiveComplete:
			if !a.HasActiveCommitments() {
				snap, err := e.fire(a, core.EventComplete, "")
				if err != nil {
					return e.abort(a, res, err)
				}
				return e.done(ctx, a, res, snap)
			}

			if err := rounds.Begin(); err != nil {
				return e.exhausted(ctx, a, res, err)
			}
			if _, err := e.fire(a, core.EventComplete, ""); err != nil {
				return e.abort(a, res, err)
			}

			report := e.verifier.Verify(ctx, a)
			res.Report = &report
			snap := a.Snapshot()
			e.hook(ctx, CallbackOnVerification, &CallbackContext{AgentID: a.ID(), Snapshot: &snap, Report: &report})
			if a.Context().Err() != nil {
				return e.abort(a, res, nil)
			}

			if report.AllPassed {
				snap, err := e.fire(a, core.EventVerified, "")
				if err != nil {
					return e.abort(a, res, err)
				}
				return e.done(ctx, a, res, snap)
			}

			if _, err := e.fire(a, core.EventVerificationFailed, ""); err != nil {
				return e.abort(a, res, err)
			}
			if err := rounds.Failed(); err != nil {
				return e.exhausted(ctx, a, res, err)
			}

			failed = report.Failed
			ids := make([]string, len(failed))
			for i, c := range failed {
				ids[i] = c.ID
			}
			verify.Reopen(a, ids...)
			e.save(a.Snapshot())

			message = prompt.Retry(failed)

		case core.DirectiveAsk:
			if _, err := e.fire(a, core.EventAwaitInput, ""); err != nil {
				return e.abort(a, res, err)
			}

			out, err := e.raise(ctx, core.Escalation{
				OriginAgentID:  a.ID(),
				Content:        reply.Question,
				Kind:           core.KindQuestion,
				Classification: reply.Classification,
			})
			if out.Escalation.ID != "" {
				res.Outcome = &out
			}
			if err != nil || out.Kind != core.OutcomeHandled {
				res.Snapshot = a.Snapshot()
				return res, err
			}

			if _, err := e.fire(a, core.EventInput, ""); err != nil {
				return e.abort(a, res, err)
			}
			failed = nil
			message = prompt.Answer(reply.Question, e.handlerName(out.HandlerID), out.Answer)

		case core.DirectiveFail:
			return e.finish(ctx, a, res, core.EventError, reply.Reason)

		default:
			ev := core.EventAwaitInput
			if a.Flags().Mode == core.ModeAutonomous {
				ev = core.EventSleep
			}
			snap, err := e.fire(a, ev, "")
			if err != nil {
				return e.abort(a, res, err)
			}
			res.Snapshot = snap
			return res, nil
		}
	}
}

func (e *Engine) exhausted(ctx context.Context, a *agent.Agent, res Result, err error) (Result, error) {
	var re *lifecycle.RoundsError
	if !errors.As(err, &re) {
		return e.abort(a, res, err)
	}
	return e.finish(ctx, a, res, re.Event(), re.Error())
}

// abort ends an operation that could not continue. An agent dismissed
// mid-operation yields core.ErrCancelled.
func (e *Engine) abort(a *agent.Agent, res Result, err error) (Result, error) {
	res.Snapshot = a.Snapshot()
	if a.Context().Err() != nil {
		return res, fmt.Errorf("%w: %s", core.ErrCancelled, a.Name())
	}
	return res, err
}

func (e *Engine) sendFailed(ctx context.Context, a *agent.Agent, res Result, err error) (Result, error) {
	if a.Context().Err() != nil {
		return e.abort(a, res, err)
	}

	if ctx.Err() != nil {
		// The caller gave up; the agent waits for the next message.
		snap, ferr := e.fire(a, core.EventAwaitInput, "")
		if ferr != nil {
			return e.abort(a, res, ferr)
		}
		res.Snapshot = snap
		return res, ctx.Err()
	}

	return e.finish(ctx, a, res, core.EventError, err.Error())
}

// finish drives the agent to failed and escalates the failure.
func (e *Engine) finish(ctx context.Context, a *agent.Agent, res Result, ev core.Event, reason string) (Result, error) {
	snap, err := e.fire(a, ev, reason)
	if err != nil {
		return e.abort(a, res, err)
	}
	res.Snapshot = snap

	if !e.policy.EscalateFailures || snap.IsRoot() {
		return res, nil
	}

	out, err := e.raise(ctx, core.Escalation{
		OriginAgentID:  a.ID(),
		Content:        prompt.Failure(a.Name(), ev, snap.FailureReason),
		Kind:           core.KindFailure,
		Classification: core.ClassificationUrgent,
	})
	if err != nil {
		e.logger.Warn("Failure escalation not delivered", "agent_id", a.ID(), "error", err)
	}
	if out.Escalation.ID != "" {
		res.Outcome = &out
	}
	return res, nil
}

func (e *Engine) done(ctx context.Context, a *agent.Agent, res Result, snap core.Snapshot) (Result, error) {
	res.Snapshot = snap
	if snap.Flags.AutoReapOnDone && !snap.IsRoot() {
		if _, err := e.dismiss(ctx, a.ID(), core.EventDismiss, "reaped"); err != nil {
			e.logger.Warn("Reaping finished agent failed", "agent_id", a.ID(), "error", err)
		}
	}
	return res, nil
}

func (e *Engine) charge(a *agent.Agent, reply core.Reply) {
	cost := reply.Cost
	if cost <= 0 {
		cost = e.policy.SendCost
	}
	a.Spend(cost)
}

func (e *Engine) record(a *agent.Agent, message string, reply core.Reply) {
	now := e.now().UTC()
	err := e.sessions.Append(a.ID(),
		core.Message{Role: core.RoleUser, Text: message, Time: now},
		core.Message{Role: core.RoleAssistant, Text: reply.Text, Time: now},
	)
	if err != nil {
		e.logger.Warn("Recording transcript failed", "agent_id", a.ID(), "error", err)
	}
}

func (e *Engine) sessionContext(a *agent.Agent, failed []core.Commitment) core.SessionContext {
	history, err := e.sessions.History(a.ID(), e.policy.HistoryLimit)
	if err != nil {
		e.logger.Warn("Loading transcript failed", "agent_id", a.ID(), "error", err)
	}

	return core.SessionContext{
		AgentID:           a.ID(),
		Name:              a.Name(),
		Mode:              a.Flags().Mode,
		History:           history,
		FailedCommitments: failed,
		RemainingBudget:   a.Remaining(),
	}
}

func (e *Engine) handlerName(id string) string {
	if a, err := e.tree.Get(id); err == nil {
		return a.Name()
	}
	return id
}

// fire commits a transition on a and publishes it.
func (e *Engine) fire(a *agent.Agent, ev core.Event, reason string) (core.Snapshot, error) {
	t, snap, err := a.Fire(ev, reason)
	if err != nil {
		return a.Snapshot(), err
	}
	e.observe(t, snap)
	return snap, nil
}

// observe publishes a committed transition: log, persist, watchdog, hooks.
func (e *Engine) observe(t core.Transition, snap core.Snapshot) {
	logging.Transition(e.logger, snap.ID, string(t.From), string(t.Event), string(t.To))
	e.save(snap)

	switch {
	case snap.State.IsTerminal():
		e.watchdog.stop(snap.ID)
	case !snap.IsRoot():
		e.watchdog.touch(snap.ID)
	}

	e.hook(e.ctx, CallbackOnTransition, &CallbackContext{AgentID: snap.ID, Snapshot: &snap, Transition: &t})
}

// save writes snap through to the store. Failures are logged and reported
// to hooks; the in-memory state stays authoritative.
func (e *Engine) save(snap core.Snapshot) {
	if e.store == nil {
		return
	}

	ctx := context.WithoutCancel(e.ctx)
	if err := e.store.Save(ctx, snap); err != nil {
		e.logger.Error("Persisting snapshot failed", "agent_id", snap.ID, "version", snap.Version, "error", err)
		e.hook(ctx, CallbackOnPersistError, &CallbackContext{AgentID: snap.ID, Snapshot: &snap, Err: err})
	}
}

func (e *Engine) hook(ctx context.Context, typ CallbackType, cc *CallbackContext) {
	if err := e.callbacks.ExecuteCallbacks(ctx, typ, cc); err != nil {
		e.logger.Warn("Callback failed", "type", string(typ), "agent_id", cc.AgentID, "error", err)
	}
}

// Raise routes an escalation on behalf of agentID without changing its
// lifecycle state; use it for discoveries and questions that do not block
// the agent.
func (e *Engine) Raise(ctx context.Context, agentID, content string, kind core.EscalationKind, class core.Classification) (core.Outcome, error) {
	if _, err := e.tree.Get(agentID); err != nil {
		return core.Outcome{}, err
	}

	return e.raise(ctx, core.Escalation{
		OriginAgentID:  agentID,
		Content:        content,
		Kind:           kind,
		Classification: class,
	})
}

func (e *Engine) raise(ctx context.Context, esc core.Escalation) (core.Outcome, error) {
	out, err := e.router.Raise(ctx, esc)
	if out.Escalation.ID != "" {
		e.hook(ctx, CallbackOnEscalation, &CallbackContext{AgentID: esc.OriginAgentID, Outcome: &out})
	}
	return out, err
}

// Answer resolves a pending escalation. Each escalation can be answered
// exactly once. When the origin is still waiting for input the answer is
// delivered to it and its turn loop resumes.
func (e *Engine) Answer(ctx context.Context, escID, answer string) (Result, error) {
	out, err := e.router.Resolve(escID, answer)
	if err != nil {
		return Result{}, err
	}

	e.hook(ctx, CallbackOnEscalation, &CallbackContext{AgentID: out.Escalation.OriginAgentID, Outcome: &out})
	return e.deliver(ctx, out)
}

// Pass hands a deferred escalation on from the ancestor holding it.
func (e *Engine) Pass(ctx context.Context, escID string) (Result, error) {
	out, err := e.router.Pass(ctx, escID)
	if out.Escalation.ID != "" {
		e.hook(ctx, CallbackOnEscalation, &CallbackContext{AgentID: out.Escalation.OriginAgentID, Outcome: &out})
	}
	if err != nil {
		return Result{Outcome: outcomeOrNil(out)}, err
	}

	if out.Kind == core.OutcomeHandled {
		return e.deliver(ctx, out)
	}

	res := Result{Outcome: &out}
	if a, err := e.tree.Get(out.Escalation.OriginAgentID); err == nil {
		res.Snapshot = a.Snapshot()
	}
	return res, nil
}

func outcomeOrNil(out core.Outcome) *core.Outcome {
	if out.Escalation.ID == "" {
		return nil
	}
	return &out
}

func (e *Engine) deliver(ctx context.Context, out core.Outcome) (Result, error) {
	a, err := e.tree.Get(out.Escalation.OriginAgentID)
	if errors.Is(err, core.ErrAgentNotFound) {
		// Dismissed while the answer was on its way; nothing to resume.
		return Result{Outcome: &out}, nil
	}
	if err != nil {
		return Result{Outcome: &out}, err
	}

	if out.Escalation.Kind != core.KindQuestion || a.State() != core.StateWaitingForInput {
		return Result{Snapshot: a.Snapshot(), Outcome: &out}, nil
	}

	message := prompt.Answer(out.Escalation.Content, e.handlerName(out.HandlerID), out.Answer)
	res, err := e.turn(ctx, a, message, core.EventInput)
	if res.Outcome == nil {
		res.Outcome = &out
	}
	return res, err
}

// SetResolver registers the resolver an agent uses to handle escalations
// reaching it. A nil resolver removes it.
func (e *Engine) SetResolver(agentID string, res escalation.Resolver) error {
	if _, err := e.tree.Get(agentID); err != nil {
		return err
	}
	e.router.SetResolver(agentID, res)
	return nil
}

// Focus routes escalations reaching agentID straight to the operator
// until Unfocus. The tree itself is not changed.
func (e *Engine) Focus(agentID string) error {
	if _, err := e.tree.Get(agentID); err != nil {
		return err
	}
	e.router.Focus(agentID)
	return nil
}

// Unfocus restores normal routing.
func (e *Engine) Unfocus() { e.router.Unfocus() }

// Declare adds commitments to a live agent mid-task.
func (e *Engine) Declare(_ context.Context, agentID string, specs ...core.CommitmentSpec) ([]core.Commitment, error) {
	a, err := e.live(agentID)
	if err != nil {
		return nil, err
	}

	out := a.Declare(specs...)
	e.save(a.Snapshot())
	return out, nil
}

// Supersede replaces a commitment; the old one stays in the record as
// inactive.
func (e *Engine) Supersede(_ context.Context, agentID, commitmentID string, spec core.CommitmentSpec) (core.Commitment, error) {
	a, err := e.live(agentID)
	if err != nil {
		return core.Commitment{}, err
	}

	c, err := a.Supersede(commitmentID, spec)
	if err != nil {
		return core.Commitment{}, err
	}
	e.save(a.Snapshot())
	return c, nil
}

func (e *Engine) live(agentID string) (*agent.Agent, error) {
	a, err := e.tree.Get(agentID)
	if err != nil {
		return nil, err
	}
	if s := a.State(); s.IsTerminal() {
		return nil, fmt.Errorf("%w: agent %s is %s", core.ErrInvalidTransition, a.Name(), s)
	}
	return a, nil
}

// Verify runs the agent's pending commitments outside of the turn loop.
// It records results but fires no transition.
func (e *Engine) Verify(ctx context.Context, agentID string) (verify.Report, error) {
	a, err := e.tree.Get(agentID)
	if err != nil {
		return verify.Report{}, err
	}

	release, err := a.Acquire(ctx)
	if err != nil {
		return verify.Report{}, err
	}
	defer release()

	report := e.verifier.Verify(ctx, a)
	snap := a.Snapshot()
	e.save(snap)
	e.hook(ctx, CallbackOnVerification, &CallbackContext{AgentID: a.ID(), Snapshot: &snap, Report: &report})
	return report, nil
}

// Get returns the snapshot of a live agent.
func (e *Engine) Get(agentID string) (core.Snapshot, error) {
	a, err := e.tree.Get(agentID)
	if err != nil {
		return core.Snapshot{}, err
	}
	return a.Snapshot(), nil
}

// GetByName returns the snapshot of the live agent called name.
func (e *Engine) GetByName(name string) (core.Snapshot, error) {
	a, err := e.tree.GetByName(name)
	if err != nil {
		return core.Snapshot{}, err
	}
	return a.Snapshot(), nil
}

// Snapshots returns every live agent, root first.
func (e *Engine) Snapshots() []core.Snapshot { return e.tree.Snapshots() }

// Pending returns the escalations awaiting an answer, oldest first.
func (e *Engine) Pending() []core.Escalation { return e.router.Pending() }

// Transcript returns the last limit messages exchanged with the agent.
func (e *Engine) Transcript(agentID string, limit int) ([]core.Message, error) {
	if _, err := e.tree.Get(agentID); err != nil {
		return nil, err
	}
	return e.sessions.History(agentID, limit)
}

// Restore loads the tree rooted at rootID from the store. The engine must
// not hold a root. Agents persisted mid-operation (working, verifying)
// come back waiting for input, and commitment attempts cut short while
// verifying are reopened. Pending escalations are not persisted.
func (e *Engine) Restore(ctx context.Context, rootID string) ([]core.Snapshot, error) {
	if e.store == nil {
		return nil, errors.New("restore: no store configured")
	}

	root, err := e.store.Load(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("restore root %s: %w", rootID, err)
	}

	snaps := []core.Snapshot{root}
	seen := map[string]bool{root.ID: true}
	level := root.ChildIDs

	for len(level) > 0 {
		loaded := make([]*core.Snapshot, len(level))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(8)
		for i, id := range level {
			if seen[id] {
				continue
			}
			seen[id] = true

			g.Go(func() error {
				s, err := e.store.Load(gctx, id)
				if errors.Is(err, core.ErrSnapshotNotFound) {
					e.logger.Warn("Dropping child without snapshot", "agent_id", id)
					return nil
				}
				if err != nil {
					return fmt.Errorf("restore %s: %w", id, err)
				}
				loaded[i] = &s
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var next []string
		for _, s := range loaded {
			if s != nil {
				snaps = append(snaps, *s)
				next = append(next, s.ChildIDs...)
			}
		}
		level = next
	}

	agents, err := e.tree.Restore(snaps...)
	if err != nil {
		return nil, err
	}

	for _, a := range agents {
		if n := verify.Interrupt(a, "verification interrupted by restore", e.now().UTC()); n > 0 {
			e.logger.Warn("Reopened interrupted commitments", "agent_id", a.ID(), "count", n)
			e.save(a.Snapshot())
		}

		switch a.State() {
		case core.StateWorking, core.StateVerifying:
			if _, err := e.fire(a, core.EventRestore, ""); err != nil {
				e.logger.Warn("Cannot park restored agent", "agent_id", a.ID(), "error", err)
			}
		default:
			if !a.Flags().IsRoot && !a.State().IsTerminal() {
				e.watchdog.touch(a.ID())
			}
		}
	}

	return e.tree.Snapshots(), nil
}

type missingRunner struct{}

func (missingRunner) Run(_ context.Context, a core.Assertion) (core.AssertionResult, error) {
	return core.AssertionResult{}, fmt.Errorf("no assertion runner configured for %s", a)
}
