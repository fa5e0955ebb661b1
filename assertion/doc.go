// Package assertion provides core.AssertionRunner implementations.
//
//   - CommandRunner executes shell commands; exit status zero passes
//   - FuncRunner looks up registered Go check functions by name
//   - Mux dispatches on core.Assertion.Runner ("cmd", "func", ...)
package assertion
