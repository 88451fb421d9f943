package splits

import (
	"sync"
	"time"
)

// Clock is the monotonic time source of a run. Reset fixes the epoch to now
// and Elapsed returns the non-negative milliseconds since the last Reset.
type Clock interface {
	Reset()
	Elapsed() int64
}

// MonotonicClock measures with the monotonic reading carried by time.Time,
// so wall clock adjustments do not affect it.
type MonotonicClock struct {
	mu    sync.Mutex
	epoch time.Time
}

// NewMonotonicClock returns a clock whose epoch is the time of the call.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{epoch: time.Now()}
}

func (c *MonotonicClock) Reset() {
	c.mu.Lock()
	c.epoch = time.Now()
	c.mu.Unlock()
}

func (c *MonotonicClock) Elapsed() int64 {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	ms := time.Since(epoch).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}

// ManualClock is a Clock driven by Advance, for tests and replays.
type ManualClock struct {
	mu      sync.Mutex
	elapsed int64
}

func (c *ManualClock) Reset() {
	c.mu.Lock()
	c.elapsed = 0
	c.mu.Unlock()
}

func (c *ManualClock) Elapsed() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

// Advance moves the clock forward by ms.
func (c *ManualClock) Advance(ms int64) {
	c.mu.Lock()
	c.elapsed += ms
	c.mu.Unlock()
}

// Set moves the clock to ms since the last Reset. Values below the current
// reading are ignored to keep the clock monotonic.
func (c *ManualClock) Set(ms int64) {
	c.mu.Lock()
	if ms > c.elapsed {
		c.elapsed = ms
	}
	c.mu.Unlock()
}
