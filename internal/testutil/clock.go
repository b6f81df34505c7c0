package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant returned by a new DeterministicClock.
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a wall clock for tests that advances by a fixed step
// on every reading, so cookie creation and access times are reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewDeterministicClock creates a clock whose first Now() returns Epoch and
// every later call returns the previous value plus one second.
func NewDeterministicClock() *DeterministicClock {
	return NewSteppingClock(Epoch, time.Second)
}

// NewSteppingClock creates a clock starting at start that advances by step
// after each reading. A zero step freezes the clock.
func NewSteppingClock(start time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{next: start, step: step}
}

// Now returns the current reading and advances the clock.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(c.step)
	return now
}

// Peek returns the value the next Now() call will return.
func (c *DeterministicClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Advance moves the clock forward by d without producing a reading.
func (c *DeterministicClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = c.next.Add(d)
}

// Reset rewinds the clock to Epoch so the same scenario can run again with
// identical timestamps.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = Epoch
}
