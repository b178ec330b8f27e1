// Package clock supplies the canonical time reference used by every release and
// gating decision.
package clock

import (
	"fmt"
	"sync"
	"time"
)

// Clock returns the current instant in the canonical zone.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// ZoneClock reads the system clock and converts it into a fixed zone.
type ZoneClock struct {
	loc *time.Location
}

// NewZoneClock loads the named IANA zone. An empty name means UTC.
func NewZoneClock(name string) (*ZoneClock, error) {
	if name == "" {
		return &ZoneClock{loc: time.UTC}, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return &ZoneClock{loc: loc}, nil
}

// Now implements Clock.
func (c *ZoneClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location implements Clock.
func (c *ZoneClock) Location() *time.Location {
	return c.loc
}

// FixedClock is a settable clock for tests and replays.
type FixedClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewFixedClock pins the clock at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

// Now implements Clock.
func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Location implements Clock.
func (c *FixedClock) Location() *time.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now.Location()
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
