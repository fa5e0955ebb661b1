// Package engine is the composition root of agenttree.
//
// An Engine wires the hierarchy manager, the escalation router and the
// commitment verifier around the ports of package core (backend, assertion
// runner, operator, store) and runs each agent's turn loop:
//
//	start/input/wake → send → charge budget → act on directive
//	    complete → verify → done | back to working (bounded)
//	    ask      → waiting_for_input + escalation
//	    fail     → failed (+ failure escalation)
//	    continue → waiting_for_input | waiting_for_wakeup
//
// # Concurrency
//
// Each agent runs at most one operation at a time; the turn loop holds the
// agent's operation slot until the agent completes, fails or suspends.
// Operations on different agents never block each other. Dismissal cancels
// the context of every agent in the subtree, so in-flight backend calls and
// assertions return promptly and the operation reports core.ErrCancelled.
//
// # Persistence
//
// With a Store configured, every committed transition and every spawn is
// written through. Save errors are logged and reported to
// CallbackOnPersistError hooks; the in-memory tree stays authoritative.
// Restore rebuilds a tree from its root id.
//
// # Background workers
//
// Policy.WakeInterval starts a waker that resumes sleeping autonomous
// agents. Policy.CutBaitAfter arms a watchdog that cuts non-root agents
// without a transition for that long. Close stops both.
package engine
