// Package sensor talks to the BME680 gas sensor over Linux I2C.
package sensor

import (
	"context"
	"time"
)

// Sensor produces one raw sample per call.
type Sensor interface {
	// Read performs a forced-mode measurement with the given settings.
	// ambient is the current ambient temperature estimate in °C, used to
	// compute the gas heater resistance.
	Read(ctx context.Context, ambient float64, req MeasurementRequest) (RawSample, error)
	Close() error
}

// RawSample is one compensated measurement.
type RawSample struct {
	Temperature   float64 // °C
	Humidity      float64 // %RH
	Pressure      float64 // hPa
	GasResistance float64 // Ω
	// GasValid is false when the heater did not stabilize or gas was not measured.
	GasValid  bool
	Timestamp time.Time
}

// MeasurementRequest carries the settings the fusion engine asks for.
// Oversampling values use the sensor's register encoding (0 = skip, 1 = x1 ... 5 = x16).
type MeasurementRequest struct {
	HeaterTemperature       uint16 // °C
	HeaterDuration          time.Duration
	RunGas                  bool
	TemperatureOversampling uint8
	PressureOversampling    uint8
	HumidityOversampling    uint8
}

// Address selects the I2C address strap of the sensor.
type Address uint8

const (
	AddressPrimary   Address = 0x76
	AddressSecondary Address = 0x77
)

func (a Address) String() string {
	switch a {
	case AddressPrimary:
		return "primary"
	case AddressSecondary:
		return "secondary"
	default:
		return "invalid"
	}
}
