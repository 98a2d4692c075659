// Package liveness implements the dead-man switch: telemetry that is late,
// arrives over a degraded link, or goes backwards in time is stale and must
// not drive a decision.
package liveness

import (
	"fmt"
	"time"

	"github.com/roach88/hydroexec/internal/ir"
)

// DefaultMaxAge is the oldest a sample may be when it is evaluated.
const DefaultMaxAge = 2 * time.Second

// Result is the outcome of a liveness check. The zero value is Safe.
type Result struct {
	Stale  bool
	Reason ir.ReasonCode
	Detail string
}

// Safe reports whether the sample may drive a decision.
func (r Result) Safe() bool { return !r.Stale }

func stale(reason ir.ReasonCode, format string, args ...any) Result {
	return Result{Stale: true, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Check compares the sample timestamp against now.
// A sample without a timestamp is stale. A timestamp ahead of now is
// accepted: clock skew between the SCADA gateway and this host is not the
// liveness guard's concern.
func Check(lastGood, now time.Time, maxAge time.Duration) Result {
	if lastGood.IsZero() {
		return stale(ir.ReasonHeartbeatTimeout, "sample has no timestamp")
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if age := now.Sub(lastGood); age > maxAge {
		return stale(ir.ReasonHeartbeatTimeout, "telemetry age %s exceeds %s", age, maxAge)
	}
	return Result{}
}

// Guard is the per-unit dead-man switch. It remembers the last accepted
// sample timestamp so duplicates and reordered samples are rejected.
//
// Guard is not safe for concurrent use; each unit's executive owns one.
type Guard struct {
	maxAge time.Duration
	last   time.Time
}

// NewGuard creates a guard with the given maximum sample age.
func NewGuard(maxAge time.Duration) *Guard {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Guard{maxAge: maxAge}
}

// SetMaxAge changes the maximum sample age. Used on config reload.
func (g *Guard) SetMaxAge(maxAge time.Duration) {
	if maxAge > 0 {
		g.maxAge = maxAge
	}
}

// MaxAge returns the configured maximum sample age.
func (g *Guard) MaxAge() time.Duration { return g.maxAge }

// Observe evaluates a sample. Checks run in order: link status, ordering,
// age. Observe does not record the sample; call Accept once the cycle has
// committed to it.
func (g *Guard) Observe(t ir.Telemetry, now time.Time) Result {
	switch t.CommStatus {
	case "", ir.CommGood:
	default:
		return stale(ir.ReasonScadaLinkFailure, "comm status %s", t.CommStatus)
	}
	if !g.last.IsZero() && !t.Timestamp.IsZero() && !t.Timestamp.After(g.last) {
		return stale(ir.ReasonTimestampRegression, "sample %s not after last accepted %s",
			t.Timestamp.UTC().Format(time.RFC3339Nano), g.last.UTC().Format(time.RFC3339Nano))
	}
	return Check(t.Timestamp, now, g.maxAge)
}

// Accept records ts as the last accepted sample time. Older timestamps are
// ignored so the watermark never moves backwards.
func (g *Guard) Accept(ts time.Time) {
	if ts.After(g.last) {
		g.last = ts
	}
}

// LastAccepted returns the watermark, or the zero time before the first
// accepted sample.
func (g *Guard) LastAccepted() time.Time { return g.last }
