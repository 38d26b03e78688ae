package engine

import (
	"sort"
	"strings"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
)

// OutputKind identifies a virtual sensor output of the engine.
type OutputKind int

const (
	Iaq OutputKind = iota + 1
	StaticIaq
	Co2Equivalent
	BreathVocEquivalent
	RawTemperature
	RawPressure
	RawHumidity
	RawGas
	StabilizationStatus
	RunInStatus
	SensorHeatCompensatedTemperature
	SensorHeatCompensatedHumidity
	DebugCompensatedGas
	GasPercentage
)

var outputNames = map[OutputKind]string{
	Iaq:                              "iaq",
	StaticIaq:                        "static_iaq",
	Co2Equivalent:                    "co2_equivalent",
	BreathVocEquivalent:              "breath_voc_equivalent",
	RawTemperature:                   "raw_temperature",
	RawPressure:                      "raw_pressure",
	RawHumidity:                      "raw_humidity",
	RawGas:                           "raw_gas",
	StabilizationStatus:              "stabilization_status",
	RunInStatus:                      "run_in_status",
	SensorHeatCompensatedTemperature: "sensor_heat_compensated_temperature",
	SensorHeatCompensatedHumidity:    "sensor_heat_compensated_humidity",
	DebugCompensatedGas:              "debug_compensated_gas",
	GasPercentage:                    "gas_percentage",
}

// String returns the configuration key of the output.
func (k OutputKind) String() string {
	if name, ok := outputNames[k]; ok {
		return name
	}

	return "unknown"
}

// AllOutputs lists every known output in declaration order.
func AllOutputs() []OutputKind {
	kinds := make([]OutputKind, 0, len(outputNames))
	for k := range outputNames {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return kinds
}

// ParseOutputKind resolves a configuration key.
func ParseOutputKind(name string) (OutputKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range outputNames {
		if n == name {
			return k, nil
		}
	}

	return 0, errors.New().WithData(ErrUnknownOutput, name)
}

// SampleRate is the rate tier requested for an output.
type SampleRate int

const (
	RateDisabled SampleRate = iota
	RateULP
	RateLP
	RateContinuous
)

// Interval is the nominal sampling period of the tier, zero when disabled.
func (r SampleRate) Interval() float64 {
	switch r {
	case RateULP:
		return 300
	case RateLP:
		return 3
	case RateContinuous:
		return 1
	default:
		return 0
	}
}

func (r SampleRate) String() string {
	switch r {
	case RateDisabled:
		return "disabled"
	case RateULP:
		return "ulp"
	case RateLP:
		return "lp"
	case RateContinuous:
		return "continuous"
	default:
		return "unknown"
	}
}

// ParseSampleRate resolves a configured tier name.
func ParseSampleRate(name string) (SampleRate, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "disabled":
		return RateDisabled, nil
	case "ulp":
		return RateULP, nil
	case "lp":
		return RateLP, nil
	case "continuous", "cont":
		return RateContinuous, nil
	default:
		return RateDisabled, errors.New().WithData(ErrUnknownSampleRate, name)
	}
}

// Subscription pairs an output with its requested rate.
type Subscription struct {
	Output OutputKind
	Rate   SampleRate
}

// DefaultSubscriptions is what the exporter subscribes to when none are configured.
func DefaultSubscriptions() []Subscription {
	kinds := []OutputKind{
		Co2Equivalent,
		BreathVocEquivalent,
		RawTemperature,
		RawPressure,
		RawHumidity,
		RawGas,
		StabilizationStatus,
		RunInStatus,
		SensorHeatCompensatedTemperature,
		SensorHeatCompensatedHumidity,
		GasPercentage,
	}

	subs := make([]Subscription, len(kinds))
	for i, k := range kinds {
		subs[i] = Subscription{Output: k, Rate: RateLP}
	}

	return subs
}

// Active returns the outputs of all non-disabled subscriptions, sorted.
func Active(subs []Subscription) []OutputKind {
	kinds := make([]OutputKind, 0, len(subs))
	for _, s := range subs {
		if s.Rate != RateDisabled {
			kinds = append(kinds, s.Output)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	return kinds
}
