package util

import "time"

type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// NowMillis returns the clock's current time as epoch milliseconds, the
// internal time unit for order timestamps and deadlines.
func NowMillis(c Clock) int64 { return c.Now().UnixMilli() }

// FakeClock is a manually-advanced clock for tests.
type FakeClock struct {
	T time.Time
}

func (f *FakeClock) Now() time.Time { return f.T }

func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- f.T.Add(d)
	return ch
}

func (f *FakeClock) Advance(d time.Duration) { f.T = f.T.Add(d) }
