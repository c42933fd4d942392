// Package clock provides the time source shared by the event loop, brokers,
// and order expiry checks. Simulation and live trading expose the same
// interface so strategy code is identical in both modes.
package clock

import "time"

// Clock exposes the current engine time.
type Clock interface {
	// CurrentTime returns the engine's notion of now, in UTC.
	CurrentTime() time.Time
}

// SimulationClock is advanced monotonically by the event loop to the
// timestamp of each scheduled bar (or its end, in end-of-bar mode). It never
// moves backwards.
type SimulationClock struct {
	current time.Time
}

// NewSimulationClock creates a simulation clock starting at the zero time.
func NewSimulationClock() *SimulationClock {
	return &SimulationClock{}
}

// CurrentTime implements Clock.
func (c *SimulationClock) CurrentTime() time.Time {
	return c.current
}

// Advance moves the clock forward to t. Moves to earlier instants are
// ignored so duplicate batch timestamps cannot rewind time.
func (c *SimulationClock) Advance(t time.Time) {
	if t.After(c.current) {
		c.current = t
	}
}

// LiveClock returns wall time. The event loop never sets it.
type LiveClock struct{}

// NewLiveClock creates a live clock.
func NewLiveClock() *LiveClock {
	return &LiveClock{}
}

// CurrentTime implements Clock.
func (c *LiveClock) CurrentTime() time.Time {
	return time.Now().UTC()
}
