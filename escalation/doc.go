// Package escalation routes questions, discoveries and failures up the
// supervision tree.
//
// An escalation starts at its origin and visits successors: normally the
// parent, but the operator for the root, for the focused agent and for
// agents that no longer exist. Each visited ancestor's Resolver answers it,
// defers it (the escalation is parked with that ancestor) or passes it on.
// Escalations that reach the operator stay pending until resolved.
package escalation
