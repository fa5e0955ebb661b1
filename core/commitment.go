package core

import (
	"fmt"
	"time"
)

// CommitmentStatus is the outcome of the latest verification attempt.
type CommitmentStatus string

const (
	CommitmentPending   CommitmentStatus = "pending"
	CommitmentVerifying CommitmentStatus = "verifying"
	CommitmentPassed    CommitmentStatus = "passed"
	CommitmentFailed    CommitmentStatus = "failed"
)

// Assertion is an externally executable check. Runner selects the executor
// (for example "cmd" or "func") and Expr is interpreted by it.
type Assertion struct {
	Runner  string        `json:"runner" yaml:"runner"`
	Expr    string        `json:"expr" yaml:"expr"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout"`
}

func (a Assertion) String() string { return a.Runner + ":" + a.Expr }

// AssertionResult is what an AssertionRunner reports for one execution.
type AssertionResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
}

// Attempt is one verification attempt of a commitment. Once Status reaches
// passed or failed the attempt is never modified again.
type Attempt struct {
	Number     int              `json:"number"`
	Status     CommitmentStatus `json:"status"`
	Output     string           `json:"output,omitempty"`
	StartedAt  time.Time        `json:"started_at,omitempty"`
	FinishedAt time.Time        `json:"finished_at,omitempty"`
}

// CommitmentSpec declares a commitment before it receives an identity.
type CommitmentSpec struct {
	Description string    `json:"description" yaml:"description"`
	Assertion   Assertion `json:"assertion" yaml:"assertion"`
}

// Commitment is a declared, independently checkable assertion that must hold
// before an agent's work is considered complete. Commitments are never
// deleted, only superseded.
type Commitment struct {
	ID           string    `json:"id"`
	Description  string    `json:"description"`
	Assertion    Assertion `json:"assertion"`
	Attempts     []Attempt `json:"attempts"`
	SupersededBy string    `json:"superseded_by,omitempty"`
	DeclaredAt   time.Time `json:"declared_at"`
}

// NewCommitment creates a commitment with a single pending attempt.
func NewCommitment(spec CommitmentSpec, now time.Time) Commitment {
	return Commitment{
		ID:          NewID(),
		Description: spec.Description,
		Assertion:   spec.Assertion,
		Attempts:    []Attempt{{Number: 1, Status: CommitmentPending}},
		DeclaredAt:  now,
	}
}

// Status returns the status of the latest attempt.
func (c Commitment) Status() CommitmentStatus {
	if len(c.Attempts) == 0 {
		return CommitmentPending
	}
	return c.Attempts[len(c.Attempts)-1].Status
}

// Latest returns the latest attempt.
func (c Commitment) Latest() Attempt {
	if len(c.Attempts) == 0 {
		return Attempt{Number: 1, Status: CommitmentPending}
	}
	return c.Attempts[len(c.Attempts)-1]
}

// Active reports whether the commitment still counts toward completion.
func (c Commitment) Active() bool { return c.SupersededBy == "" }

// Begin moves the latest pending attempt to verifying.
func (c *Commitment) Begin(now time.Time) error {
	if c.Status() != CommitmentPending {
		return fmt.Errorf("commitment %s: cannot begin verification from %s", c.ID, c.Status())
	}
	if len(c.Attempts) == 0 {
		c.Attempts = []Attempt{{Number: 1}}
	}
	last := &c.Attempts[len(c.Attempts)-1]
	last.Status = CommitmentVerifying
	last.StartedAt = now
	return nil
}

// Finish records the result of the attempt currently verifying.
func (c *Commitment) Finish(passed bool, output string, now time.Time) error {
	if c.Status() != CommitmentVerifying {
		return fmt.Errorf("commitment %s: cannot finish verification from %s", c.ID, c.Status())
	}
	last := &c.Attempts[len(c.Attempts)-1]
	last.Status = CommitmentFailed
	if passed {
		last.Status = CommitmentPassed
	}
	last.Output = output
	last.FinishedAt = now
	return nil
}

// Reopen appends a fresh pending attempt after a failed one. History is
// preserved.
func (c *Commitment) Reopen() error {
	if c.Status() != CommitmentFailed {
		return fmt.Errorf("commitment %s: only failed commitments can be reopened, status %s", c.ID, c.Status())
	}
	c.Attempts = append(c.Attempts, Attempt{Number: len(c.Attempts) + 1, Status: CommitmentPending})
	return nil
}

// Clone returns a deep copy.
func (c Commitment) Clone() Commitment {
	out := c
	out.Attempts = append([]Attempt(nil), c.Attempts...)
	return out
}

// CloneCommitments deep-copies a commitment slice.
func CloneCommitments(in []Commitment) []Commitment {
	if in == nil {
		return nil
	}
	out := make([]Commitment, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}
