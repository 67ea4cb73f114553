package autosave

import "time"

// Clock abstracts time so debounce behavior is testable.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending callback that can be stopped.
type Timer interface {
	// Stop prevents the callback from firing. Reports whether it was still pending.
	Stop() bool
}

// RealClock uses the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
