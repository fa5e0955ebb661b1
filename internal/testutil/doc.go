// Package testutil contains fakes and builders used across tests to reduce
// boilerplate: a scripted backend, a programmable assertion runner, a
// recording operator and a snapshot builder. They are not intended for
// production usage.
package testutil
