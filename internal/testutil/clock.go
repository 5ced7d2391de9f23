package testutil

import (
	"sync"
	"time"
)

// Epoch is the default instant for FixedClock.
var Epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// FixedClock is a settable wall clock for tests.
//
// It satisfies engine.Clock. Time only moves when the test calls Set or
// Advance, so cooldown arithmetic is reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a clock reading at. A zero at means Epoch.
func NewFixedClock(at time.Time) *FixedClock {
	if at.IsZero() {
		at = Epoch
	}
	return &FixedClock{now: at.UTC()}
}

// Now returns the current fixed time.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to at.
func (c *FixedClock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at.UTC()
}

// Advance moves the clock forward by d and returns the new time.
func (c *FixedClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Ago returns the time d before the clock's current reading.
func (c *FixedClock) Ago(d time.Duration) time.Time {
	return c.Now().Add(-d)
}
