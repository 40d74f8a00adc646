// Package ir provides the value model and compiled rule types for formsync.
//
// All other internal packages import ir; ir imports nothing internal.
//
// Key constraints:
//   - NO float types: numbers are int64
//   - Field values are IRValue; a draft snapshot is an IRObject
//   - All JSON tags use snake_case
//   - Provenance ordering uses logical sequence numbers, never wall-clock time
package ir
