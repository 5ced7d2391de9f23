package engine

import "time"

// Clock supplies wall time for cooldown arithmetic and cycle timestamps.
//
// Production uses SystemClock; tests inject a fixed clock so eligibility
// decisions are reproducible.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time {
	return f()
}
