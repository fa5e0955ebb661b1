// Package agenttree provides a high-level facade over the orchestration
// engine and its ports (backend, assertion runner, operator, persistence and
// logging). Most applications interact with this package by:
//  1. Creating a Tree via New() or NewFromConfig()
//  2. Starting the root agent (StartRoot) and spawning workers beneath it
//  3. Driving agents with Send, answering surfaced escalations from the
//     operator inbox with Answer
//
// The facade delegates orchestration to engine.Engine. All defaults are
// in-memory and safe for local development and testing; production
// deployments typically configure the sqlite store and a real model
// provider through config.Config.
package agenttree

import (
	"context"
	"errors"
	"fmt"
	"io"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agenttree/assertion"
	"github.com/hupe1980/agenttree/config"
	"github.com/hupe1980/agenttree/core"
	"github.com/hupe1980/agenttree/engine"
	"github.com/hupe1980/agenttree/hierarchy"
	"github.com/hupe1980/agenttree/logging"
	"github.com/hupe1980/agenttree/model"
	"github.com/hupe1980/agenttree/model/anthropic"
	"github.com/hupe1980/agenttree/model/openai"
	"github.com/hupe1980/agenttree/operator"
	"github.com/hupe1980/agenttree/session"
	"github.com/hupe1980/agenttree/store/memory"
	"github.com/hupe1980/agenttree/store/sqlite"
)

// Options configures the Tree instance.
type Options struct {
	// Backend produces agent replies. Required.
	Backend core.Backend

	// Root describes the agent started by StartRoot.
	Root hierarchy.RootSpec

	// Policy contains the engine's operational parameters.
	Policy engine.Policy

	// VerifyConcurrency bounds parallel assertion runs per verification.
	VerifyConcurrency int

	// Runner executes commitment assertions. Defaults to the "cmd" and
	// "func" scheme mux with an empty function registry.
	Runner core.AssertionRunner

	// Operator receives escalations no agent resolved. Defaults to the
	// Tree's inbox.
	Operator core.Operator

	// Stores (default to in-memory implementations if not provided)
	Store    core.Store
	Sessions session.Store

	// Callbacks are registered on the engine at construction.
	Callbacks []engine.Callback

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Tree is the high-level facade aggregating the engine and its services.
// Every engine operation is available on it directly.
type Tree struct {
	*engine.Engine

	opts    Options
	inbox   *operator.Inbox
	closers []io.Closer
}

// New creates a new Tree over backend. Any unset service is initialized
// with an in-memory implementation.
func New(backend core.Backend, optFns ...func(o *Options)) *Tree {
	opts := defaultOptions()
	opts.Backend = backend

	for _, fn := range optFns {
		fn(&opts)
	}

	return newTree(opts)
}

// NewFromConfig creates a Tree from a validated configuration. The config
// selects the store, model provider, assertion runner settings, logger and
// policy; optFns run afterwards and may override any of them.
func NewFromConfig(cfg *config.Config, optFns ...func(o *Options)) (*Tree, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}

	opts := defaultOptions()
	opts.Logger = logger
	opts.Root = RootSpec(cfg.Root)
	opts.Policy = Policy(cfg.Policy)
	opts.VerifyConcurrency = cfg.Policy.VerifyConcurrency
	opts.Sessions = session.NewInMemoryStore(cfg.Policy.HistoryLimit)
	opts.Runner = assertion.NewDefault(nil, func(o *assertion.CommandOptions) {
		o.Dir = cfg.Assertions.Dir
		o.Env = cfg.Assertions.Env
		if cfg.Assertions.MaxOutputBytes > 0 {
			o.MaxOutputBytes = cfg.Assertions.MaxOutputBytes
		}
		if cfg.Assertions.DefaultTimeout > 0 {
			o.DefaultTimeout = cfg.Assertions.DefaultTimeout
		}
	})

	m, err := NewModel(cfg.Backend)
	if err != nil {
		return nil, err
	}
	opts.Backend = model.NewBackend(m, func(o *model.BackendOptions) {
		o.System = cfg.Backend.System
		o.Stream = cfg.Backend.Stream
		o.TokensPerUnit = cfg.Backend.TokensPerUnit
		o.Logger = logger
	})

	var closers []io.Closer
	switch cfg.Store.Driver {
	case "sqlite":
		st, err := sqlite.Open(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		opts.Store = st
		closers = append(closers, st)
	default:
		opts.Store = memory.New()
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	t := newTree(opts)
	t.closers = closers

	return t, nil
}

func defaultOptions() Options {
	return Options{
		Root: hierarchy.RootSpec{
			Name:   "root",
			Budget: 1000,
			Mode:   core.ModeInteractive,
		},
		Policy:   engine.DefaultPolicy(),
		Runner:   assertion.NewDefault(nil),
		Store:    memory.New(),
		Sessions: session.NewInMemoryStore(0),
		Logger:   logging.NoOpLogger{},
	}
}

func newTree(opts Options) *Tree {
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	t := &Tree{}
	if opts.Operator == nil {
		t.inbox = operator.NewInbox()
		opts.Operator = operator.Multi{t.inbox, operator.NewLogOperator(opts.Logger)}
	}

	t.Engine = engine.New(opts.Backend, func(o *engine.Options) {
		o.Policy = opts.Policy
		o.VerifyConcurrency = opts.VerifyConcurrency
		o.Runner = opts.Runner
		o.Operator = opts.Operator
		o.Store = opts.Store
		o.Sessions = opts.Sessions
		o.Callbacks = opts.Callbacks
		o.Logger = opts.Logger
	})
	t.opts = opts

	return t
}

// StartRoot starts the configured root agent.
func (t *Tree) StartRoot(ctx context.Context) (core.Snapshot, error) {
	return t.Start(ctx, t.opts.Root)
}

// Inbox returns the operator inbox, or nil when a custom operator was
// configured.
func (t *Tree) Inbox() *operator.Inbox { return t.inbox }

// Close stops the engine and releases the store.
func (t *Tree) Close() error {
	errs := []error{t.Engine.Close()}
	for _, c := range t.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// RootSpec converts the root section of a configuration.
func RootSpec(rc config.RootConfig) hierarchy.RootSpec {
	return hierarchy.RootSpec{
		Name:        rc.Name,
		Budget:      rc.Budget,
		Mode:        rc.Mode,
		Commitments: rc.Commitments,
	}
}

// Policy converts the policy section of a configuration. Fields the
// configuration does not carry keep their engine defaults.
func Policy(pc config.PolicyConfig) engine.Policy {
	p := engine.DefaultPolicy()
	p.SendCost = pc.SendCost
	p.SendRetries = pc.SendRetries
	p.RetryBackoff = pc.RetryBackoff
	p.MaxVerifyRounds = pc.MaxVerifyRounds
	p.MaxTurns = pc.MaxTurns
	p.HistoryLimit = pc.HistoryLimit
	p.WakeInterval = pc.WakeInterval
	p.WakePrompt = pc.WakePrompt
	p.CutBaitAfter = pc.CutBaitAfter
	p.EscalateFailures = pc.EscalateFailures
	return p
}

// NewModel creates the model named by the backend section of a
// configuration.
func NewModel(bc config.BackendConfig) (model.Model, error) {
	switch bc.Provider {
	case "", "mock":
		name := bc.Model
		if name == "" {
			name = "mock"
		}
		return model.NewMockModel(name), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if bc.Model != "" {
				o.Model = anthropicsdk.Model(bc.Model)
			}
			o.APIKey = bc.APIKey
			o.Temperature = bc.Temperature
			if bc.MaxTokens > 0 {
				o.MaxTokens = bc.MaxTokens
			}
		}), nil
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if bc.Model != "" {
				o.Model = bc.Model
			}
			o.APIKey = bc.APIKey
			o.BaseURL = bc.BaseURL
			o.Temperature = bc.Temperature
			if bc.MaxTokens > 0 {
				o.MaxCompletionTokens = bc.MaxTokens
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown backend provider %q", bc.Provider)
	}
}
