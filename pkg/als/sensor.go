// Package als is the ambient light sensor feed. It wraps whichever hardware
// driver is available, and publishes the latest illuminance, the sensor's
// presence and its accuracy as observable values.
package als

import (
	"errors"
	"fmt"
)

var ErrNoSensor = errors.New("als: no light sensor")

type Presence int

const (
	PresenceUnknown Presence = iota
	PresencePresent
	PresenceAbsent
)

func (p Presence) String() string {
	switch p {
	case PresencePresent:
		return "PRESENT"
	case PresenceAbsent:
		return "ABSENT"
	}
	return "UNKNOWN"
}

type Accuracy int

const (
	AccuracyUnknown Accuracy = iota
	AccuracyNoContact
	AccuracyUnreliable
	AccuracyLow
	AccuracyMedium
	AccuracyHigh
)

func (a Accuracy) String() string {
	switch a {
	case AccuracyNoContact:
		return "NO_CONTACT"
	case AccuracyUnreliable:
		return "UNRELIABLE"
	case AccuracyLow:
		return "LOW"
	case AccuracyMedium:
		return "MEDIUM"
	case AccuracyHigh:
		return "HIGH"
	}
	return "UNKNOWN"
}

// A Listener is called on whatever goroutine the driver delivers from.
type Listener interface {
	OnReading(lux float64)
	OnAccuracyChanged(a Accuracy)
}

// A Sensor delivers readings to registered listeners until they unregister.
// Once Unregister returns, the listener is not called again.
type Sensor interface {
	Name() string
	Resolution() float64
	Register(l Listener) error
	Unregister(l Listener)
}

type Driver interface {
	// DefaultLightSensor returns ErrNoSensor if the device has no light sensor.
	DefaultLightSensor() (Sensor, error)
}

type Stats struct {
	Count         int64
	Min, Max      int64
	Mean          float64
	P50, P90, P99 int64
}

func (s Stats) String() string {
	if s.Count == 0 {
		return "no readings"
	}
	return fmt.Sprintf("%d readings, lux min=%d p50=%d p90=%d p99=%d max=%d mean=%.1f",
		s.Count, s.Min, s.P50, s.P90, s.P99, s.Max, s.Mean)
}
