package engine

import (
	"sync/atomic"
	"time"

	"github.com/roach88/hydroexec/internal/ir"
)

// Tick is one cycle's reading of the unit clock.
type Tick struct {
	Seq int64
	// At is the instant liveness is judged against: the cycle's
	// simulation time when it has one, otherwise the wall clock.
	At     time.Time
	Replay bool
}

// Clock is the per-unit cycle clock. It stamps every cycle with a strictly
// increasing seq and resolves the instant the cycle is evaluated at.
//
// Seq orders decisions for one unit independently of wall time, so audit
// queries and replay see the same order the worker produced. A cycle with
// a simulation time is evaluated at that time; any other cycle reads the
// wall clock.
//
// Clock is safe for concurrent use. Only the unit's worker ticks it in
// practice.
type Clock struct {
	seq  atomic.Int64
	wall func() time.Time
}

// NewClock creates a clock at seq 0 reading wall. A nil wall means
// time.Now.
func NewClock(wall func() time.Time) *Clock {
	return NewClockAt(0, wall)
}

// NewClockAt creates a clock whose next seq is start+1. Replay uses it to
// resume from the first recorded seq.
func NewClockAt(start int64, wall func() time.Time) *Clock {
	c := &Clock{wall: wall}
	c.seq.Store(start)
	return c
}

// Tick advances the seq and resolves the evaluation instant for md.
func (c *Clock) Tick(md ir.Metadata) Tick {
	t := Tick{Seq: c.seq.Add(1), Replay: md.IsReplay}
	if !md.SimulationTime.IsZero() {
		t.At = md.SimulationTime
		return t
	}
	t.At = c.Now()
	return t
}

// Now reads the wall clock.
func (c *Clock) Now() time.Time {
	if c.wall == nil {
		return time.Now()
	}
	return c.wall()
}

// Current returns the seq of the last tick.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
