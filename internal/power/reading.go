package power

import "time"

// processStart anchors the monotonic timestamps rendered to clients.
var processStart = time.Now()

// Reading is one voltage/current/power sample of a domain.
type Reading struct {
	Time    time.Time
	Voltage float64 // volts
	Current float64 // amps
	Power   float64 // watts
}

// Seconds returns the reading time in seconds on the process monotonic clock.
func (r Reading) Seconds() float64 {
	return MonotonicSeconds(r.Time)
}

// MonotonicSeconds converts t to seconds elapsed since the process started.
// Both instants carry a monotonic clock reading, so wall clock steps do not
// affect the result.
func MonotonicSeconds(t time.Time) float64 {
	return t.Sub(processStart).Seconds()
}
