// Package timeutil lets the frame loop and the sensor sources run against a
// clock that tests can drive by hand.
package timeutil

import "time"

// Clock is the subset of the time package the tracking code depends on.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	// NewTicker delivers the clock time on C() every d.
	NewTicker(d time.Duration) Ticker
}

// Ticker is a periodic time source obtained from a Clock.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// NewTicker wraps time.NewTicker.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return wallTicker{time.NewTicker(d)}
}

type wallTicker struct{ *time.Ticker }

func (t wallTicker) C() <-chan time.Time { return t.Ticker.C }
