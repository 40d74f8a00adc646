package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxPasses bounds derivation passes per transition. A rule set in
// dependency order settles in two passes (one writing, one confirming);
// template outputs read by rules add one more.
const DefaultMaxPasses = 8

// passQuota counts derivation passes within one transition.
type passQuota struct {
	max     int
	current int
}

func newPassQuota(max int) *passQuota {
	return &passQuota{max: max}
}

// Check increments the pass counter and fails once it exceeds the limit.
func (q *passQuota) Check(event string) error {
	q.current++
	if q.current > q.max {
		return &PassQuotaError{Event: event, Passes: q.current, Limit: q.max}
	}
	return nil
}

// Current returns the number of passes started.
func (q *passQuota) Current() int {
	return q.current
}

// PassQuotaError is returned when derivation is still writing after the
// maximum number of passes. The transition is discarded.
type PassQuotaError struct {
	Event  string // Event kind being applied
	Passes int    // Passes attempted
	Limit  int    // Maximum allowed passes
}

// Error implements the error interface.
func (e *PassQuotaError) Error() string {
	return fmt.Sprintf("%s: %s did not settle: %d passes > %d limit",
		ErrCodePassQuotaExceeded, e.Event, e.Passes, e.Limit)
}

// IsPassQuotaError returns true if the error is a PassQuotaError.
// Uses errors.As to handle wrapped errors.
func IsPassQuotaError(err error) bool {
	var pe *PassQuotaError
	return errors.As(err, &pe)
}
