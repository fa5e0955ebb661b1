package core

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Classification triages an escalation for the operator. It influences
// notification urgency only, never the routing path.
type Classification string

const (
	ClassificationQuick   Classification = "quick"
	ClassificationDeep    Classification = "deep"
	ClassificationUrgent  Classification = "urgent"
	ClassificationRoutine Classification = "routine"
)

// Urgency ranks classifications for notification ordering. Higher values
// are more urgent.
func (c Classification) Urgency() int {
	switch c {
	case ClassificationUrgent:
		return 3
	case ClassificationQuick:
		return 2
	case ClassificationDeep:
		return 1
	default:
		return 0
	}
}

// ParseClassification converts a case-insensitive name into a
// Classification. An empty string yields routine.
func ParseClassification(s string) (Classification, error) {
	switch c := Classification(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return ClassificationRoutine, nil
	case ClassificationQuick, ClassificationDeep, ClassificationUrgent, ClassificationRoutine:
		return c, nil
	default:
		return ClassificationRoutine, fmt.Errorf("unknown classification %q (valid: quick, deep, urgent, routine)", s)
	}
}

// EscalationKind distinguishes what is bubbling up.
type EscalationKind string

const (
	KindQuestion  EscalationKind = "question"
	KindDiscovery EscalationKind = "discovery"
	KindFailure   EscalationKind = "failure"
)

// Escalation is a question, discovery or failure traveling toward a handler.
type Escalation struct {
	ID             string         `json:"id"`
	OriginAgentID  string         `json:"origin_agent_id"`
	Content        string         `json:"content"`
	Kind           EscalationKind `json:"kind"`
	Classification Classification `json:"classification"`
	// Path lists the agents the escalation passed through, origin first.
	Path      []string  `json:"path"`
	HandlerID string    `json:"handler_id,omitempty"`
	RaisedAt  time.Time `json:"raised_at"`
}

// Visited reports whether agentID already appears in the path.
func (e Escalation) Visited(agentID string) bool { return slices.Contains(e.Path, agentID) }

// Clone returns a copy with an independent path slice.
func (e Escalation) Clone() Escalation {
	out := e
	out.Path = append([]string(nil), e.Path...)
	return out
}

// OperatorHandlerID is the HandlerID of escalations surfaced to the operator.
const OperatorHandlerID = "operator"

// OutcomeKind is the routing result of raising an escalation.
type OutcomeKind string

const (
	// OutcomeHandled means an ancestor answered synchronously.
	OutcomeHandled OutcomeKind = "handled"
	// OutcomeForwarded means an ancestor took ownership and will answer later.
	OutcomeForwarded OutcomeKind = "forwarded"
	// OutcomeSurfaced means the escalation reached the operator.
	OutcomeSurfaced OutcomeKind = "surfaced"
)

// Outcome describes where an escalation ended up.
type Outcome struct {
	Kind       OutcomeKind `json:"kind"`
	HandlerID  string      `json:"handler_id"`
	Answer     string      `json:"answer,omitempty"`
	Escalation Escalation  `json:"escalation"`
}
