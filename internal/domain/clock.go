package domain

import (
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

type clockHolder struct{ clockwork.Clock }

// active is the time source behind conversion durations and the timestamps
// stamped into output rasters. Converters may run concurrently, so it is
// swapped atomically.
var active atomic.Pointer[clockHolder]

func init() { SetClock(nil) }

// SetClock replaces the time source. Pass nil to restore the real clock.
func SetClock(c clockwork.Clock) {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	active.Store(&clockHolder{c})
}

// Now returns the current time from the active clock.
func Now() time.Time {
	return active.Load().Now()
}

// Since returns the time elapsed since t on the active clock.
func Since(t time.Time) time.Duration {
	return active.Load().Since(t)
}

// StartTimer marks the start of a timed step and returns a function
// reporting the time elapsed since.
func StartTimer() func() time.Duration {
	start := Now()
	return func() time.Duration { return Since(start) }
}
