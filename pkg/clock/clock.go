// Package clock provides the millisecond time source used by the stack.
//
// Times are relative to an arbitrary start and wrap around once the
// underlying int32 overflows, so they only carry meaning when compared
// through the Delta helpers.
package clock

import (
	"sync"
	"time"
)

// Time is a point in time, in milliseconds since the clock started.
type Time int32

// Zero is the time at which a clock starts.
const Zero = Time(0)

// AddMilliseconds adds ms milliseconds to t.
func AddMilliseconds(t Time, ms int32) Time {
	return t + Time(ms)
}

// AddSeconds adds s seconds to t.
func AddSeconds(t Time, s int32) Time {
	return AddMilliseconds(t, s*1000)
}

// AddMinutes adds m minutes to t.
func AddMinutes(t Time, m int32) Time {
	return AddMilliseconds(t, m*60000)
}

// AddHours adds h hours to t.
func AddHours(t Time, h int32) Time {
	return AddMilliseconds(t, h*3600000)
}

// DeltaMilliseconds returns the number of milliseconds from start to end.
func DeltaMilliseconds(start, end Time) int32 {
	return int32(end - start)
}

// DeltaSeconds returns the number of whole seconds from start to end.
func DeltaSeconds(start, end Time) int32 {
	return DeltaMilliseconds(start, end) / 1000
}

// DeltaMinutes returns the number of whole minutes from start to end.
func DeltaMinutes(start, end Time) int32 {
	return DeltaMilliseconds(start, end) / 60000
}

// DeltaHours returns the number of whole hours from start to end.
func DeltaHours(start, end Time) int32 {
	return DeltaMilliseconds(start, end) / 3600000
}

// Clock reports the current time.
type Clock interface {
	Now() Time
}

// Monotonic is a Clock backed by the runtime's monotonic clock.
type Monotonic struct {
	start time.Time
}

// NewMonotonic returns a Monotonic clock starting at Zero.
func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

// Now implements Clock.
func (c *Monotonic) Now() Time {
	return Time(int32(int64(time.Since(c.start) / time.Millisecond)))
}

// Manual is a Clock that only moves when told to. Used by tests and simulations.
type Manual struct {
	mu  sync.Mutex
	now Time
}

// NewManual returns a Manual clock set to t.
func NewManual(t Time) *Manual {
	return &Manual{now: t}
}

// Now implements Clock.
func (c *Manual) Now() Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *Manual) Set(t Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d, truncated to whole milliseconds.
func (c *Manual) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = AddMilliseconds(c.now, int32(d/time.Millisecond))
	c.mu.Unlock()
}
