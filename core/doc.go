// Package core provides the foundational domain types and ports used by
// agenttree. It defines the core abstractions for:
//
//   - Agents (snapshots of a node in the supervision tree)
//   - Lifecycle states, events and transition records
//   - Commitments (independently checkable completion criteria)
//   - Escalations (questions and failures bubbling toward an operator)
//   - Ports to external collaborators (LLM backend, assertion execution,
//     operator, persistence)
//
// The package intentionally keeps behavior (state machine, hierarchy,
// routing, verification) out of scope, exposing small value types and
// interfaces so the behavioral packages stay decoupled from one another.
package core
