package domain

import "github.com/jonboulle/clockwork"

// clock stamps live readings and verdicts. Tests freeze it via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Clock returns the package time source.
func Clock() clockwork.Clock { return clock }
