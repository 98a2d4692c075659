// Package testutil holds deterministic clocks and run IDs for tests and the
// conformance harness.
package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start of a deterministic wall clock.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// WallClock is a settable wall clock. Its Now method can be handed to
// engine.WithNow or engine.WithWallClock so liveness checks see exactly the
// instant a test chooses.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type WallClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewWallClock creates a clock reading start. A zero start means Epoch.
func NewWallClock(start time.Time) *WallClock {
	if start.IsZero() {
		start = Epoch
	}
	return &WallClock{now: start.UTC()}
}

// Now returns the current reading.
func (c *WallClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t. Moving backwards is allowed.
func (c *WallClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

// Advance moves the clock forward by d and returns the new reading.
func (c *WallClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// FixedRunID returns the same run ID every time.
//
// It satisfies engine.RunIDGenerator. Unlike engine.FixedGenerator, which
// hands out IDs in sequence, every engine built with it records under one
// run, so golden traces stay byte-identical.
type FixedRunID string

// DefaultRunID is used when a FixedRunID is empty.
const DefaultRunID = "test-run-default"

// Generate returns the fixed run ID.
func (r FixedRunID) Generate() string {
	if r == "" {
		return DefaultRunID
	}
	return string(r)
}
