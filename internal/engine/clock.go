package engine

import "sync/atomic"

// Clock is a logical counter that only moves forward.
//
// A session keeps two: one stamps observer events, the other stamps
// activations so the agenda can break salience ties by creation order.
// Wall-clock time never orders anything, so identical inputs produce
// identical traces.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock whose first tick is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt returns a clock that resumes after start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current reports the last value handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
