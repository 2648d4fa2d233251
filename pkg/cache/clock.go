package cache

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// ElapsedTimeProvider supplies the current instant as the time elapsed since
// the Unix epoch. Timestamps in the access log use the same epoch, so a
// provider must stay consistent across process restarts.
type ElapsedTimeProvider interface {
	Elapsed() time.Duration
}

// ClockProvider is an ElapsedTimeProvider reading a clockwork.Clock.
type ClockProvider struct {
	clock clockwork.Clock
}

// NewClockProvider wraps clock. A nil clock means the real wall clock.
func NewClockProvider(clock clockwork.Clock) *ClockProvider {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ClockProvider{clock: clock}
}

// Elapsed returns the clock's current time as a duration since the Unix epoch.
func (p *ClockProvider) Elapsed() time.Duration {
	return time.Duration(p.clock.Now().UnixNano())
}
