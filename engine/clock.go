package engine

import "time"

// Clock provides the current time for auction timing decisions.
// This interface enables dependency injection for deterministic testing;
// the engine never schedules anything itself, it only compares a supplied
// reading against stored end times.
type Clock interface {
	Now() time.Time
}

// systemClock wraps time.Now for production use.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// defaultClock is the production clock used when none is injected.
var defaultClock Clock = systemClock{}
