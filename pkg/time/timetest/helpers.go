package timetest

import (
	"time"

	varcotime "github.com/varcolabs/varco/pkg/time"
)

var (
	// shortDuration is used in tests when we want to sleep, but not for long
	// for the sake of testing time.
	shortDuration = 250 * time.Millisecond
)

// UseShortAfter updates the After method to expedite sleep times for tests.
// Callers should call ResetAfter() when they are done with their test.
func UseShortAfter() {
	varcotime.After = func(time.Duration) <-chan time.Time { return time.After(shortDuration) }
}

// UseNoAfter updates the After method to be a noop for tests. Callers
// should call ResetAfter() when they are done with their test.
func UseNoAfter() {
	varcotime.After = func(time.Duration) <-chan time.Time { return time.After(0) }
}

// ResetAfter is just a test helper to simplify setting the After variable
// for a specific test and then running this cleanup method when done to
// return it to its normal state.
func ResetAfter() {
	varcotime.After = time.After
}

// UseFixedNow pins Now to the given instant so that timestamps embedded in
// results and events are reproducible. Callers should call ResetNow() when
// they are done with their test.
func UseFixedNow(t time.Time) {
	varcotime.Now = func() time.Time { return t }
}

// UseTickingNow pins Now to a clock that starts at the given instant and
// advances by step on every call. Useful when a test needs distinct but
// deterministic timestamps.
func UseTickingNow(start time.Time, step time.Duration) {
	current := start
	varcotime.Now = func() time.Time {
		t := current
		current = current.Add(step)
		return t
	}
}

// ResetNow restores the real clock.
func ResetNow() {
	varcotime.Now = time.Now
}
