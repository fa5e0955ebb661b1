// Package store groups implementations of the core.Store persistence port.
//
// Stores are versioned: a snapshot whose Version is not newer than the one
// already stored is ignored, so out-of-order write-through saves can never
// regress an agent record.
//
// Sub-packages:
//
//   - memory: process local map, the default
//   - sqlite: durable store on modernc.org/sqlite (pure Go, no cgo)
package store
