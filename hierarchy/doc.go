// Package hierarchy owns the supervision tree: an arena of live agents
// indexed by id, a global name index, budget sub-allocation on spawn and
// cascading dismissal.
//
// Records reference each other by id only. The registry lock guards the
// arena and is held for bookkeeping, never across I/O.
package hierarchy
