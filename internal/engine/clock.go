package engine

import "sync/atomic"

// Clock stamps events and sync attempt rows from one sequence, so a trace
// and the attempt log interleave without wall time. It starts after the
// highest seq the attempt log held when the engine was built.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a clock whose first stamp is after+1.
func NewClock(after int64) *Clock {
	c := &Clock{}
	c.last.Store(after)
	return c
}

// Next returns a stamp no other caller has received.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Last returns the most recent stamp, or the starting point before any.
func (c *Clock) Last() int64 {
	return c.last.Load()
}

// Observe moves the clock up to seq when it is behind, for seqs another
// process wrote to a shared attempt log.
func (c *Clock) Observe(seq int64) {
	for {
		cur := c.last.Load()
		if seq <= cur || c.last.CompareAndSwap(cur, seq) {
			return
		}
	}
}
