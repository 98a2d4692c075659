package liveness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/hydroexec/internal/ir"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		sample time.Time
		now    time.Time
		stale  bool
	}{
		{"fresh", t0, t0.Add(500 * time.Millisecond), false},
		{"exactly max age", t0, t0.Add(DefaultMaxAge), false},
		{"just past max age", t0, t0.Add(DefaultMaxAge + time.Millisecond), true},
		{"future sample", t0.Add(time.Second), t0, false},
		{"missing timestamp", time.Time{}, t0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Check(tt.sample, tt.now, DefaultMaxAge)
			assert.Equal(t, tt.stale, r.Stale)
			if tt.stale {
				assert.Equal(t, ir.ReasonHeartbeatTimeout, r.Reason)
				assert.NotEmpty(t, r.Detail)
			}
		})
	}
}

func TestCheckDefaultsMaxAge(t *testing.T) {
	assert.True(t, Check(t0, t0.Add(3*time.Second), 0).Stale)
	assert.False(t, Check(t0, t0.Add(time.Second), 0).Stale)
}

func TestGuardCommStatus(t *testing.T) {
	g := NewGuard(DefaultMaxAge)

	r := g.Observe(ir.Telemetry{Timestamp: t0, CommStatus: ir.CommBad}, t0)
	assert.True(t, r.Stale)
	assert.Equal(t, ir.ReasonScadaLinkFailure, r.Reason)

	r = g.Observe(ir.Telemetry{Timestamp: t0, CommStatus: ir.CommUnknown}, t0)
	assert.Equal(t, ir.ReasonScadaLinkFailure, r.Reason)

	r = g.Observe(ir.Telemetry{Timestamp: t0}, t0)
	assert.True(t, r.Safe(), "empty comm status is treated as GOOD")
}

func TestGuardRejectsRegression(t *testing.T) {
	g := NewGuard(DefaultMaxAge)

	first := ir.Telemetry{Timestamp: t0}
	assert.True(t, g.Observe(first, t0).Safe())
	g.Accept(first.Timestamp)

	dup := g.Observe(ir.Telemetry{Timestamp: t0}, t0.Add(time.Millisecond))
	assert.True(t, dup.Stale)
	assert.Equal(t, ir.ReasonTimestampRegression, dup.Reason)

	older := g.Observe(ir.Telemetry{Timestamp: t0.Add(-time.Second)}, t0)
	assert.Equal(t, ir.ReasonTimestampRegression, older.Reason)

	next := g.Observe(ir.Telemetry{Timestamp: t0.Add(time.Second)}, t0.Add(time.Second))
	assert.True(t, next.Safe())
}

func TestGuardObserveDoesNotAdvance(t *testing.T) {
	g := NewGuard(DefaultMaxAge)
	g.Observe(ir.Telemetry{Timestamp: t0}, t0)
	assert.True(t, g.LastAccepted().IsZero())

	g.Accept(t0)
	g.Accept(t0.Add(-time.Hour))
	assert.Equal(t, t0, g.LastAccepted(), "watermark never moves backwards")
}

func TestGuardStaleIsIdempotent(t *testing.T) {
	g := NewGuard(DefaultMaxAge)
	old := ir.Telemetry{Timestamp: t0}
	now := t0.Add(10 * time.Second)

	first := g.Observe(old, now)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, g.Observe(old, now))
	}
}

func TestGuardSetMaxAge(t *testing.T) {
	g := NewGuard(0)
	assert.Equal(t, DefaultMaxAge, g.MaxAge())

	g.SetMaxAge(5 * time.Second)
	assert.True(t, g.Observe(ir.Telemetry{Timestamp: t0}, t0.Add(4*time.Second)).Safe())

	g.SetMaxAge(-1)
	assert.Equal(t, 5*time.Second, g.MaxAge())
}
