package store

import (
	"sync"
	"time"
)

// Clock stamps lastUpdate values. Stamps have millisecond precision and are
// strictly increasing for the life of the Clock.
//
// Safe for concurrent use.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewClock returns a Clock reading from now, or from time.Now when nil.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Now returns the next stamp.
func (c *Clock) Now() time.Time {
	return c.After(time.Time{})
}

// After returns the next stamp, also forced later than prev. Updates use it so
// an item's lastUpdate increases even if prev came from another process.
func (c *Clock) After(prev time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(time.Millisecond)
	floor := c.last
	if prev.After(floor) {
		floor = prev.UTC()
	}
	if !t.After(floor) {
		t = floor.Truncate(time.Millisecond).Add(time.Millisecond)
	}
	c.last = t
	return t
}
