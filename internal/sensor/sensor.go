// Package sensor defines the per-domain power sensor port and its drivers.
package sensor

import (
	"errors"
	"fmt"
)

var (
	// ErrRead marks a failed hardware read. Callers treat it as transient.
	ErrRead = errors.New("sensor read failed")
	// ErrReadTimeout marks a read that did not complete in time.
	ErrReadTimeout = errors.New("sensor read timed out")
	// ErrUnsupported is returned by Configure when the driver cannot apply
	// the requested settings.
	ErrUnsupported = errors.New("sensor configuration unsupported")
)

// Port is the capability a sampling task needs from one power sensor.
// Implementations are owned by exactly one task and need not be safe for
// concurrent use.
type Port interface {
	ReadVoltage() (float64, error) // volts
	ReadCurrent() (float64, error) // amps
	ReadPower() (float64, error)   // watts
	// Configure applies settings once before sampling starts.
	Configure(s Settings) error
	Close() error
}

// Settings are the optional acquisition parameters of a sensor.
type Settings struct {
	// Averaging is the number of hardware samples averaged per reading.
	// Zero leaves the device default untouched.
	Averaging int
}

// Empty reports whether no setting was requested.
func (s Settings) Empty() bool {
	return s.Averaging == 0
}

// Driver names accepted in Spec.Driver.
const (
	DriverINA260    = "ina260"
	DriverSimulated = "simulated"
)

// Spec describes how to open the sensor of one domain.
type Spec struct {
	Driver    string
	Bus       int
	Address   uint16
	Settings  Settings
	Simulated Values
}

// Values is a fixed voltage/current/power triple.
type Values struct {
	Voltage float64
	Current float64
	Power   float64
}

// Opener opens the port described by a Spec.
type Opener func(spec Spec) (Port, error)

// Open is the default Opener.
func Open(spec Spec) (Port, error) {
	switch spec.Driver {
	case DriverINA260, "":
		dev, err := OpenINA260(spec.Bus, spec.Address)
		if err != nil {
			return nil, err
		}
		return dev, nil
	case DriverSimulated:
		return NewSimulated(spec.Simulated), nil
	default:
		return nil, fmt.Errorf("unknown sensor driver %q", spec.Driver)
	}
}
