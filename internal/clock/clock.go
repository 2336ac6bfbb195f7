// Package clock abstracts wall time and one-shot timers so timer-driven state machines can be
// driven deterministically in tests.
package clock

import "time"

// Timer is a cancellable handle returned by AfterFunc.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the call stopped the timer.
	Stop() bool
}

// Clock supplies the current time and schedules callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) Timer
}

type systemClock struct{}

// System returns a Clock backed by the time package.
func System() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
