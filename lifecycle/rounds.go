package lifecycle

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agenttree/core"
)

// ErrRoundsExhausted matches the error returned once an operation used up
// its verification rounds.
var ErrRoundsExhausted = errors.New("verification rounds exhausted")

// RoundsError reports an operation that ran out of verification rounds.
type RoundsError struct {
	Rounds int
}

func (e *RoundsError) Error() string {
	return fmt.Sprintf("commitments still failing after %d verification rounds", e.Rounds)
}

// Is makes errors.Is(err, ErrRoundsExhausted) hold.
func (e *RoundsError) Is(target error) bool { return target == ErrRoundsExhausted }

// Event is the lifecycle event that ends the agent.
func (e *RoundsError) Event() core.Event { return core.EventRetriesExhausted }

// Rounds bounds the verifying → working → verifying loop of one operation.
// A zero max allows unlimited rounds. Rounds belongs to a single turn loop
// and is not safe for concurrent use.
type Rounds struct {
	max  int
	used int
}

// NewRounds creates a budget of max verification rounds.
func NewRounds(max int) *Rounds {
	return &Rounds{max: max}
}

// Begin claims the next round. It fails with a *RoundsError when none is
// left.
func (r *Rounds) Begin() error {
	if r.exhausted() {
		return &RoundsError{Rounds: r.used}
	}
	r.used++
	return nil
}

// Failed records that the current round left commitments failing. It
// returns a *RoundsError when that was the last round, nil when the agent
// may go back to work.
func (r *Rounds) Failed() error {
	if r.exhausted() {
		return &RoundsError{Rounds: r.used}
	}
	return nil
}

// Used returns the number of rounds claimed.
func (r *Rounds) Used() int { return r.used }

func (r *Rounds) exhausted() bool { return r.max > 0 && r.used >= r.max }
