package core

import "time"

// Directive is what the backend asks the core to do after a turn.
type Directive string

const (
	// DirectiveContinue ends the turn; the agent waits for input (interactive)
	// or for its next wakeup (autonomous).
	DirectiveContinue Directive = ""
	// DirectiveComplete signals the agent believes its task is done.
	DirectiveComplete Directive = "complete"
	// DirectiveAsk raises a question that cannot be answered locally.
	DirectiveAsk Directive = "ask"
	// DirectiveFail gives up on the task.
	DirectiveFail Directive = "fail"
)

// Reply is the normalized backend response for one turn.
type Reply struct {
	Text           string           `json:"text"`
	Directive      Directive        `json:"directive,omitempty"`
	Question       string           `json:"question,omitempty"`
	Classification Classification   `json:"classification,omitempty"`
	Reason         string           `json:"reason,omitempty"`
	Commitments    []CommitmentSpec `json:"commitments,omitempty"`
	// Cost is the budget consumed by the turn. Zero means the engine's
	// configured per-send cost applies.
	Cost int64 `json:"cost,omitempty"`
}

// Message is one entry of an agent transcript.
type Message struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// Transcript roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// SessionContext carries the agent-scoped context sent with every prompt.
type SessionContext struct {
	AgentID           string       `json:"agent_id"`
	Name              string       `json:"name"`
	Mode              Mode         `json:"mode"`
	History           []Message    `json:"history"`
	FailedCommitments []Commitment `json:"failed_commitments,omitempty"`
	RemainingBudget   int64        `json:"remaining_budget"`
}
