package time

import (
	"time"
)

// After is a function variable for swapping during tests, allowing
// variable behavior, tracking of calls, etc depending on what the test
// needs.
var After = time.After

// Now is a function variable for swapping during tests so that scan
// timestamps, retention sweeps, and event times can be made deterministic.
var Now = time.Now

// Time is a function that helps convert time values to pointers for the
// optional timestamp fields on scan statuses.
func Time(time time.Time) *time.Time {
	return &time
}

// Duration is a function that helps convert duration values to pointers.
func Duration(duration time.Duration) *time.Duration {
	return &duration
}
