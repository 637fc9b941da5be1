package backoff

import (
	"context"
	"sync"
	"time"
)

// ManualClock is a Clock whose time only moves when Sleep or Advance is
// called. Engines under test get it as both their Clock and SleepFunc so
// that hours of backoff run instantly.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps int
	total  time.Duration
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Sleep advances the clock by d unless ctx is already done.
func (c *ManualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps++
	c.total += d
	c.mu.Unlock()
	return nil
}

// Sleeps is the number of Sleep calls so far.
func (c *ManualClock) Sleeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeps
}

// Slept is the total duration passed to Sleep.
func (c *ManualClock) Slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Options returns DefaultOptions wired to this clock.
func (c *ManualClock) Options() Options {
	opts := DefaultOptions()
	opts.Clock = c
	opts.Sleep = c.Sleep
	return opts
}
