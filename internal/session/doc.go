// Package session runs one editable draft: a single writer goroutine applies
// engine events in order, logs each one to the draft store, and autosaves the
// resulting snapshot on a ticker.
//
// Every mutation goes through the loop, so the engine state is never written
// concurrently. Readers get a consistent copy through State.
package session
