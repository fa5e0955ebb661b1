// Package logging provides a minimal logging interface and adapters for agenttree.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the engine, hierarchy manager, router and verifier use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - TreeLogger with component/agent context and domain helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	tree := agenttree.New(func(o *agenttree.Options) { o.Logger = logger })
package logging
