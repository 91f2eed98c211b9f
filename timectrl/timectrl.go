package timectrl

import (
	"context"
	"fmt"
	"math"
	"time"
)

// SimClock gives read access to simulation time. Strategies that need
// the current time depend on this rather than on the concrete clock.
type SimClock interface {
	// Now returns the seconds elapsed since the start of the run.
	Now() float64
	// TickIndex returns the number of completed ticks.
	TickIndex() int
	// Step returns the tick duration in seconds.
	Step() float64
}

// Mode describes how the TickClock paces ticks.
type Mode int

const (
	// Accelerated advances as quickly as the loop can run.
	Accelerated Mode = iota
	// RealTime waits one tick duration of wall-clock time per tick.
	RealTime
)

// TickClock is a deterministic discrete clock. current_time is always
// tick*step, so long runs do not accumulate rounding drift.
type TickClock struct {
	step    float64
	maxTime float64
	mode    Mode
	epoch   time.Time

	tick      int
	listeners []func(tick int, now float64)
}

// NewTickClock constructs a clock running from zero to maxTime seconds.
func NewTickClock(step, maxTime float64, mode Mode, epoch time.Time) (*TickClock, error) {
	if !(step > 0) || math.IsInf(step, 0) {
		return nil, fmt.Errorf("time step must be positive, got %v", step)
	}
	if !(maxTime > 0) || math.IsInf(maxTime, 0) {
		return nil, fmt.Errorf("max time must be positive, got %v", maxTime)
	}
	return &TickClock{step: step, maxTime: maxTime, mode: mode, epoch: epoch}, nil
}

// Now implements SimClock.
func (c *TickClock) Now() float64 { return float64(c.tick) * c.step }

// TickIndex implements SimClock.
func (c *TickClock) TickIndex() int { return c.tick }

// Step implements SimClock.
func (c *TickClock) Step() float64 { return c.step }

// MaxTime returns the end of the run in seconds.
func (c *TickClock) MaxTime() float64 { return c.maxTime }

// TotalTicks returns the number of ticks needed to reach MaxTime.
func (c *TickClock) TotalTicks() int {
	return int(math.Ceil(c.maxTime/c.step - 1e-9))
}

// Done reports whether current_time reached max_time.
func (c *TickClock) Done() bool { return c.tick >= c.TotalTicks() }

// WallTime maps simulation seconds onto the wall-clock epoch.
func (c *TickClock) WallTime(now float64) time.Time {
	return c.epoch.Add(time.Duration(now * float64(time.Second)))
}

// AddListener registers a callback invoked after every tick.
func (c *TickClock) AddListener(fn func(tick int, now float64)) {
	c.listeners = append(c.listeners, fn)
}

// Advance moves the clock forward by one tick and notifies listeners.
// In RealTime mode it first waits one tick of wall-clock time; the wait
// is abandoned when ctx is cancelled.
func (c *TickClock) Advance(ctx context.Context) error {
	if c.mode == RealTime {
		timer := time.NewTimer(time.Duration(c.step * float64(time.Second)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	c.tick++
	now := c.Now()
	for _, fn := range c.listeners {
		fn(c.tick, now)
	}
	return nil
}

// Reset rewinds the clock to zero. Listeners are kept.
func (c *TickClock) Reset() { c.tick = 0 }
