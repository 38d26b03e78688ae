// Package engine describes the contract with the sensor-fusion library that turns
// raw BME680 samples into air-quality indicators.
//
// The library is a black box. It decides when it wants the next sample, what
// heater profile that sample needs and which outputs it will compute. Its
// internal calibration can be exported as an opaque State and re-imported on
// the next start.
package engine

import (
	"time"

	"codeberg.org/mutker/bsec-exporter/internal/sensor"
)

// Engine is the fusion library as seen by the sampling loop.
type Engine interface {
	// Version identifies the library build; it tags persisted state.
	Version() string

	// SetConfiguration loads a serialized configuration blob without its
	// four-byte length prefix.
	SetConfiguration(blob []byte) error

	// UpdateSubscription selects which outputs are computed and how often.
	UpdateSubscription(subs []Subscription) error

	// Control tells the caller what to do at now: whether to take a sample,
	// with which settings, and when to call again.
	Control(now time.Time) (Schedule, error)

	// Process feeds one sample plus the heat-source temperature offset.
	Process(sample sensor.RawSample, heatOffset float64) ([]Output, error)

	// State exports the current calibration state.
	State() (State, error)

	// SetState restores a previously exported state.
	SetState(state State) error

	Close() error
}

// Schedule is the engine's next-call hint.
type Schedule struct {
	// Trigger is true when a measurement is due now.
	Trigger bool
	// Next is when the engine wants to be called again.
	Next time.Time
	// Measurement carries the sensor settings for the triggered sample.
	Measurement sensor.MeasurementRequest
}

// Output is one computed indicator.
type Output struct {
	Kind      OutputKind
	Value     float64
	Accuracy  Accuracy
	Timestamp time.Time
}

// State is the engine's opaque calibration blob. Version is the library
// version that produced it.
type State struct {
	Blob    []byte
	Version string
}

// Accuracy is the engine's own confidence tier for an output.
type Accuracy uint8

const (
	AccuracyUnreliable Accuracy = iota
	AccuracyLow
	AccuracyMedium
	AccuracyHigh
)

func (a Accuracy) String() string {
	switch a {
	case AccuracyUnreliable:
		return "unreliable"
	case AccuracyLow:
		return "low"
	case AccuracyMedium:
		return "medium"
	case AccuracyHigh:
		return "high"
	default:
		return "unknown"
	}
}
