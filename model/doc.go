// Package model defines the provider-agnostic abstractions for language
// models and the Backend that turns model output into core.Reply values.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Keep request/response shapes minimal and transport independent
//   - Express agent directives (complete, ask, fail, commit) as plain text so
//     any chat model can drive the orchestration core
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (e.g. OpenAI, Anthropic) implement the Model interface from this
// package so the engine stays decoupled from vendor SDKs.
package model
