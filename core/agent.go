package core

import "time"

// Snapshot is the value form of an agent record. It is what the persistence
// port stores and what read APIs return.
type Snapshot struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	State           State        `json:"state"`
	ParentID        string       `json:"parent_id,omitempty"`
	ChildIDs        []string     `json:"child_ids"`
	AllocatedBudget int64        `json:"allocated_budget"`
	RemainingBudget int64        `json:"remaining_budget"`
	Commitments     []Commitment `json:"commitments"`
	Flags           Flags        `json:"flags"`
	History         []Transition `json:"history"`
	FailureReason   string       `json:"failure_reason,omitempty"`
	Version         uint64       `json:"version"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// IsRoot reports whether the snapshot describes the root agent.
func (s Snapshot) IsRoot() bool { return s.Flags.IsRoot }

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.ChildIDs = append([]string(nil), s.ChildIDs...)
	out.Commitments = CloneCommitments(s.Commitments)
	out.History = append([]Transition(nil), s.History...)
	return out
}

// ActiveCommitments returns the commitments that were not superseded.
func (s Snapshot) ActiveCommitments() []Commitment {
	var out []Commitment
	for _, c := range s.Commitments {
		if c.Active() {
			out = append(out, c)
		}
	}
	return out
}

// FailedCommitments returns the active commitments whose latest attempt
// failed.
func (s Snapshot) FailedCommitments() []Commitment {
	var out []Commitment
	for _, c := range s.Commitments {
		if c.Active() && c.Status() == CommitmentFailed {
			out = append(out, c)
		}
	}
	return out
}
