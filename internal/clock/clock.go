package clock

import (
	"sync"
	"time"
)

// Clock is the time source used by the dispensing engine.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the time once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// Real is the production clock backed by the time package.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// After returns time.After(d).
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Manual is a deterministic clock for tests and simulation.
//
// Time only moves when After or Advance is called. After advances the clock by
// d immediately and returns an already-fired channel, so a polling loop driven
// by a Manual clock runs to completion without sleeping while observing the
// exact same sequence of timestamps as it would in real time.
//
// There are no pending timers: every After moves the one shared clock. Drive a
// Manual from one polling goroutine at a time; two loops calling After
// concurrently each see the other's waits added to their own.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// Epoch is the default start time for a Manual clock.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NewManual creates a manual clock starting at Epoch.
func NewManual() *Manual {
	return &Manual{now: Epoch}
}

// Now returns the current manual time.
func (c *Manual) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After advances the clock by d and returns a channel holding the new time.
func (c *Manual) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.Advance(d)
	return ch
}

// Advance moves the clock forward by d and returns the new time.
// Negative durations are ignored; the clock is monotonic.
func (c *Manual) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return c.now
}
