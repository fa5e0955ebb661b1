// Package session stores per-agent transcripts. The engine appends every
// prompt and reply and hands the recent tail to the backend through
// core.SessionContext.
//
// Add additional backends in sub-packages without changing calling code;
// only the wiring layer decides which Store to instantiate.
package session
