package testutil

import (
	"sync"
	"time"
)

// FakeClock is a settable wall clock for tests. It satisfies engine.Clock
// and its Now method can be passed to store.WithClock, so a test can drive
// the control loop and the event log from one time source.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock reading the given unix second.
func NewFakeClock(unix int64) *FakeClock {
	return &FakeClock{now: time.Unix(unix, 0).UTC()}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Unix returns the current fake time in unix seconds.
func (c *FakeClock) Unix() int64 {
	return c.Now().Unix()
}

// Set moves the clock to a unix second. Moving backwards is allowed.
func (c *FakeClock) Set(unix int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.Unix(unix, 0).UTC()
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
