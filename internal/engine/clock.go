package engine

import "sync/atomic"

// Clock is a monotonic logical clock for ordering a draft's events.
//
// Every logged event is stamped with a strictly increasing seq from this
// clock, so the event log replays in the order it was applied regardless of
// wall-clock skew.
//
// Clock is safe for concurrent use, although a session's single writer is
// normally the only caller of Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after start, for reopening a draft
// whose log already holds events up to start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last sequence number issued.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
