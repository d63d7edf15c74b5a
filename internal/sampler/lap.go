package sampler

import (
	"fmt"
	"sync"
	"time"
)

// Clock supplies time readings for the lap clock. SystemClock never fails; an
// injected Clock signals a failed reading by returning the zero time, and a
// reading earlier than the previous one is rejected too. Either way the lap
// reports failure and the baseline is kept.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads time.Now, whose values carry a monotonic component.
var SystemClock Clock = ClockFunc(time.Now)

type lapClock struct {
	clock Clock

	mu      sync.Mutex
	last    time.Time
	runtime time.Duration
}

func newLapClock(clock Clock) *lapClock {
	if clock == nil {
		clock = SystemClock
	}
	return &lapClock{clock: clock, last: clock.Now()}
}

func (c *lapClock) lap() (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	if now.IsZero() {
		return 0, fmt.Errorf("clock returned zero time")
	}
	d := now.Sub(c.last)
	if d < 0 {
		return 0, fmt.Errorf("clock went backwards by %s", -d)
	}
	c.last = now
	c.runtime += d
	return d, nil
}

func (c *lapClock) total() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runtime
}
