package helpers

import "time"

func IntSecondDefault(x int, def time.Duration) time.Duration {
	if x <= 0 {
		return def
	}
	return time.Duration(x) * time.Second
}

func IntMillisecondDefault(x int, def time.Duration) time.Duration {
	if x <= 0 {
		return def
	}
	return time.Duration(x) * time.Millisecond
}

// Clock is monotonic time source for run loop components.
// Tests substitute ManualClock to step time without sleeping.
type Clock interface {
	Now() time.Duration
}

// MonoClock reports time elapsed since its creation, monotonic.
type MonoClock struct{ start time.Time }

func NewMonoClock() *MonoClock { return &MonoClock{start: time.Now()} }

func (c *MonoClock) Now() time.Duration { return time.Since(c.start) }

type ManualClock struct{ T time.Duration }

func (c *ManualClock) Now() time.Duration      { return c.T }
func (c *ManualClock) Advance(d time.Duration) { c.T += d }
