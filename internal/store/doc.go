// Package store provides SQLite-backed durable storage for form drafts.
//
// Three tables back a draft:
//   - drafts: the latest autosaved snapshot, its provenance map and hash
//   - events: the append-only log of engine events applied to the draft
//   - provenance_history: every provenance tag change, for tracing
//
// # Ordering
//
// All ordering uses seq INTEGER (the session's logical clock), never wall
// time. Event reads always use ORDER BY seq ASC, id COLLATE BINARY ASC so that
// replay sees the same sequence on every run.
//
// # Idempotency
//
// Event IDs are content-addressed (ir.EventID), so writing the same event
// twice is a no-op via ON CONFLICT(id) DO NOTHING.
//
// Values are stored as RFC 8785 canonical JSON produced by ir.MarshalCanonical.
package store
