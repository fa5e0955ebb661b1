// Package verify runs commitment assertions for an agent and records the
// outcome of each attempt.
//
// Assertions run concurrently with a configurable limit. Runner errors,
// timeouts and panics are recorded as failed attempts, never returned.
package verify
