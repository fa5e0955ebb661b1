package verify

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agenttree/agent"
	"github.com/hupe1980/agenttree/core"
	"github.com/hupe1980/agenttree/logging"
)

// Lookup resolves live agents by id.
type Lookup interface {
	Get(id string) (*agent.Agent, error)
}

// Report summarizes one verification round.
type Report struct {
	AllPassed bool
	Passed    []core.Commitment
	Failed    []core.Commitment
}

// Options configures a Verifier.
type Options struct {
	Logger logging.Logger
	Now    func() time.Time
	// Concurrency bounds parallel assertion runs. Zero or negative means
	// unlimited.
	Concurrency int
	// DefaultTimeout applies to assertions without their own timeout.
	DefaultTimeout time.Duration
}

// Verifier checks declared commitments through an AssertionRunner.
type Verifier struct {
	runner core.AssertionRunner
	lookup Lookup
	opts   Options
}

// New creates a verifier. lookup may be nil when only Verify is used.
func New(runner core.AssertionRunner, lookup Lookup, optFns ...func(o *Options)) *Verifier {
	opts := Options{
		Logger:         logging.NoOpLogger{},
		Now:            time.Now,
		Concurrency:    4,
		DefaultTimeout: 2 * time.Minute,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Verifier{runner: runner, lookup: lookup, opts: opts}
}

// VerifyAll verifies the agent's commitments and reports whether all active
// commitments passed. The error is non-nil only when the agent is unknown.
func (v *Verifier) VerifyAll(ctx context.Context, agentID string) (bool, error) {
	if v.lookup == nil {
		return false, fmt.Errorf("%w: %s", core.ErrAgentNotFound, agentID)
	}

	a, err := v.lookup.Get(agentID)
	if err != nil {
		return false, err
	}

	return v.Verify(ctx, a).AllPassed, nil
}

// Verify runs every active pending commitment of a and records the result.
// Commitments that already passed are not re-run, so verifying an agent
// whose commitments all passed is a no-op that reports success.
func (v *Verifier) Verify(ctx context.Context, a *agent.Agent) Report {
	start := v.opts.Now()

	var toRun []core.Commitment
	for _, c := range a.Commitments() {
		if !c.Active() || c.Status() != core.CommitmentPending {
			continue
		}
		now := v.opts.Now().UTC()
		if err := a.UpdateCommitment(c.ID, func(c *core.Commitment) error { return c.Begin(now) }); err != nil {
			v.opts.Logger.Warn("Cannot begin verification", "agent_id", a.ID(), "commitment_id", c.ID, "error", err)
			continue
		}
		toRun = append(toRun, c)
	}

	results := make([]core.AssertionResult, len(toRun))

	g, gctx := errgroup.WithContext(ctx)
	if v.opts.Concurrency > 0 {
		g.SetLimit(v.opts.Concurrency)
	}

	for i, c := range toRun {
		g.Go(func() error {
			results[i] = v.run(gctx, c.Assertion)
			return nil
		})
	}
	_ = g.Wait()

	for i, c := range toRun {
		res := results[i]
		now := v.opts.Now().UTC()
		if err := a.UpdateCommitment(c.ID, func(c *core.Commitment) error { return c.Finish(res.Success, res.Output, now) }); err != nil {
			v.opts.Logger.Warn("Cannot record verification result", "agent_id", a.ID(), "commitment_id", c.ID, "error", err)
		}
	}

	report := Report{AllPassed: true}
	for _, c := range a.Commitments() {
		if !c.Active() {
			continue
		}
		if c.Status() == core.CommitmentPassed {
			report.Passed = append(report.Passed, c)
			continue
		}
		report.AllPassed = false
		if c.Status() == core.CommitmentFailed {
			report.Failed = append(report.Failed, c)
		}
	}

	logging.Verification(v.opts.Logger, a.ID(), len(report.Passed), len(report.Failed), v.opts.Now().Sub(start))

	return report
}

// run executes one assertion, converting errors, timeouts and panics into a
// failed result.
func (v *Verifier) run(ctx context.Context, as core.Assertion) (res core.AssertionResult) {
	timeout := as.Timeout
	if timeout <= 0 {
		timeout = v.opts.DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			res = core.AssertionResult{Success: false, Output: fmt.Sprintf("assertion %s panicked: %v", as, r)}
		}
	}()

	out, err := v.runner.Run(ctx, as)
	if err != nil {
		return core.AssertionResult{Success: false, Output: fmt.Sprintf("assertion %s: %v", as, err)}
	}
	if ctx.Err() != nil && !out.Success {
		return core.AssertionResult{Success: false, Output: fmt.Sprintf("assertion %s: %v", as, ctx.Err())}
	}
	return out
}

// Reopen appends a fresh pending attempt to each listed commitment that
// failed. Unknown or non-failed ids are skipped. The number of reopened
// commitments is returned.
func Reopen(a *agent.Agent, ids ...string) int {
	n := 0
	for _, id := range ids {
		if err := a.UpdateCommitment(id, func(c *core.Commitment) error { return c.Reopen() }); err == nil {
			n++
		}
	}
	return n
}

// Interrupt closes every attempt left verifying as failed with output and
// reopens its commitment, so the next round runs the assertion again. Use
// it when a round was cut short without recording results, for example
// after a restart. The number of interrupted commitments is returned.
func Interrupt(a *agent.Agent, output string, now time.Time) int {
	n := 0
	for _, c := range a.Commitments() {
		if c.Status() != core.CommitmentVerifying {
			continue
		}
		err := a.UpdateCommitment(c.ID, func(c *core.Commitment) error {
			if err := c.Finish(false, output, now); err != nil {
				return err
			}
			return c.Reopen()
		})
		if err == nil {
			n++
		}
	}
	return n
}
