package clock

import "time"

// Clock provides current time abstraction for deterministic tests.
// Params: none.
// Returns: current wall-clock time.
type Clock interface {
	Now() time.Time
}

// RealClock reads current UTC time from system clock.
// Params: none.
// Returns: current UTC timestamp.
type RealClock struct{}

// Now returns current UTC time.
// Params: none.
// Returns: current UTC timestamp.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed returns a clock pinned to one moment.
// Params: moment to report.
// Returns: clock whose Now always yields the moment in UTC.
func Fixed(moment time.Time) Clock {
	return fixedClock{moment: moment.UTC()}
}

type fixedClock struct {
	moment time.Time
}

// Now returns the pinned moment.
// Params: none.
// Returns: fixed UTC timestamp.
func (c fixedClock) Now() time.Time {
	return c.moment
}
