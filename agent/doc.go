// Package agent contains the live agent record used by the orchestration
// core. The package focuses on three concerns:
//
//  1. Identity and hierarchy links (parent id, ordered child ids)
//  2. Lifecycle execution (lifecycle.Machine behind a per-agent mutex)
//  3. Operation serialization and cancellation (Acquire / Cancel)
//
// Design principles:
//   - Ids, not pointers – parent and children are referenced by id and
//     resolved through the hierarchy registry
//   - One data shape – root, worker and ephemeral agents differ only in
//     core.Flags
//   - Short critical sections – the data mutex is never held across I/O;
//     the operation semaphore is
//
// Budget check-and-decrement happens inside the agent mutex so concurrent
// spawns under the same parent cannot overdraw it.
package agent
