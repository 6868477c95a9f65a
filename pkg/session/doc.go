// Package session provides keyed persistence of per-thread conversation and
// execution state across suspend and resume.
//
// Invariants:
// - Operations on the same thread ID are serialized; unrelated threads never block each other.
// - History is append-only; messages are immutable once appended.
// - A session is awaiting results exactly when its last appended message carries action requests.
package session
