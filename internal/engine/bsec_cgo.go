//go:build bsec && cgo

package engine

/*
#cgo CFLAGS: -I${SRCDIR}/../../third_party/bsec
#cgo LDFLAGS: -L${SRCDIR}/../../third_party/bsec -lalgobsec -lm
#include <stdint.h>
#include "bsec_interface.h"
#include "bsec_datatypes.h"
*/
import "C"

import (
	"fmt"
	"time"
	"unsafe"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
	"codeberg.org/mutker/bsec-exporter/internal/logger"
	"codeberg.org/mutker/bsec-exporter/internal/sensor"
)

var outputIDs = map[OutputKind]C.uint8_t{
	Iaq:                              C.BSEC_OUTPUT_IAQ,
	StaticIaq:                        C.BSEC_OUTPUT_STATIC_IAQ,
	Co2Equivalent:                    C.BSEC_OUTPUT_CO2_EQUIVALENT,
	BreathVocEquivalent:              C.BSEC_OUTPUT_BREATH_VOC_EQUIVALENT,
	RawTemperature:                   C.BSEC_OUTPUT_RAW_TEMPERATURE,
	RawPressure:                      C.BSEC_OUTPUT_RAW_PRESSURE,
	RawHumidity:                      C.BSEC_OUTPUT_RAW_HUMIDITY,
	RawGas:                           C.BSEC_OUTPUT_RAW_GAS,
	StabilizationStatus:              C.BSEC_OUTPUT_STABILIZATION_STATUS,
	RunInStatus:                      C.BSEC_OUTPUT_RUN_IN_STATUS,
	SensorHeatCompensatedTemperature: C.BSEC_OUTPUT_SENSOR_HEAT_COMPENSATED_TEMPERATURE,
	SensorHeatCompensatedHumidity:    C.BSEC_OUTPUT_SENSOR_HEAT_COMPENSATED_HUMIDITY,
	DebugCompensatedGas:              C.BSEC_OUTPUT_COMPENSATED_GAS,
	GasPercentage:                    C.BSEC_OUTPUT_GAS_PERCENTAGE,
}

type bsec struct {
	// library timestamps are nanoseconds since epoch
	epoch   time.Time
	version string
	work    [C.BSEC_MAX_WORKBUFFER_SIZE]C.uint8_t
	closed  bool
}

// Open initializes the linked library. Only one engine may be open at a time.
func Open() (Engine, error) {
	errFactory := errors.New()

	if err := acquire(); err != nil {
		return nil, err
	}

	if ret := C.bsec_init(); ret != C.BSEC_OK {
		release()
		return nil, errFactory.Wrap(ErrInit, &StatusError{Op: "bsec_init", Status: int(ret)})
	}

	var v C.bsec_version_t
	if ret := C.bsec_get_version(&v); ret != C.BSEC_OK {
		release()
		return nil, errFactory.Wrap(ErrInit, &StatusError{Op: "bsec_get_version", Status: int(ret)})
	}

	return &bsec{
		epoch: time.Now(),
		version: fmt.Sprintf("%d.%d.%d.%d",
			uint8(v.major), uint8(v.minor), uint8(v.major_bugfix), uint8(v.minor_bugfix)),
	}, nil
}

func (b *bsec) Version() string {
	return b.version
}

func (b *bsec) toNanos(t time.Time) C.int64_t {
	return C.int64_t(t.Sub(b.epoch).Nanoseconds())
}

func (b *bsec) fromNanos(ns C.int64_t) time.Time {
	return b.epoch.Add(time.Duration(int64(ns)))
}

func (b *bsec) SetConfiguration(blob []byte) error {
	if len(blob) == 0 {
		return errors.New().New(ErrInvalidConfigBlob)
	}

	ret := C.bsec_set_configuration(
		(*C.uint8_t)(unsafe.Pointer(&blob[0])), C.uint32_t(len(blob)),
		&b.work[0], C.uint32_t(len(b.work)))

	return check(ErrConfigure, "bsec_set_configuration", ret)
}

func (b *bsec) UpdateSubscription(subs []Subscription) error {
	errFactory := errors.New()

	if len(Active(subs)) == 0 {
		return errFactory.New(ErrNoSubscription)
	}

	requested := make([]C.bsec_sensor_configuration_t, 0, len(subs))
	for _, s := range subs {
		id, ok := outputIDs[s.Output]
		if !ok {
			return errFactory.WithData(ErrUnknownOutput, s.Output)
		}
		requested = append(requested, C.bsec_sensor_configuration_t{
			sample_rate: sampleRate(s.Rate),
			sensor_id:   id,
		})
	}

	var required [C.BSEC_MAX_PHYSICAL_SENSOR]C.bsec_sensor_configuration_t
	n := C.uint8_t(len(required))
	ret := C.bsec_update_subscription(&requested[0], C.uint8_t(len(requested)), &required[0], &n)

	return check(ErrSubscribe, "bsec_update_subscription", ret)
}

func sampleRate(r SampleRate) C.float {
	switch r {
	case RateULP:
		return C.BSEC_SAMPLE_RATE_ULP
	case RateLP:
		return C.BSEC_SAMPLE_RATE_LP
	case RateContinuous:
		return C.BSEC_SAMPLE_RATE_CONT
	default:
		return C.BSEC_SAMPLE_RATE_DISABLED
	}
}

func (b *bsec) Control(now time.Time) (Schedule, error) {
	var settings C.bsec_bme_settings_t
	ret := C.bsec_sensor_control(b.toNanos(now), &settings)
	if err := check(ErrControl, "bsec_sensor_control", ret); err != nil {
		return Schedule{}, err
	}

	return Schedule{
		Trigger: settings.trigger_measurement != 0,
		Next:    b.fromNanos(settings.next_call),
		Measurement: sensor.MeasurementRequest{
			HeaterTemperature:       uint16(settings.heater_temperature),
			HeaterDuration:          time.Duration(settings.heating_duration) * time.Millisecond,
			RunGas:                  settings.run_gas != 0,
			TemperatureOversampling: uint8(settings.temperature_oversampling),
			PressureOversampling:    uint8(settings.pressure_oversampling),
			HumidityOversampling:    uint8(settings.humidity_oversampling),
		},
	}, nil
}

func (b *bsec) Process(sample sensor.RawSample, heatOffset float64) ([]Output, error) {
	ts := b.toNanos(sample.Timestamp)
	inputs := []C.bsec_input_t{
		{time_stamp: ts, signal: C.float(sample.Temperature), sensor_id: C.BSEC_INPUT_TEMPERATURE},
		{time_stamp: ts, signal: C.float(sample.Humidity), sensor_id: C.BSEC_INPUT_HUMIDITY},
		// the library expects Pa
		{time_stamp: ts, signal: C.float(sample.Pressure * 100), sensor_id: C.BSEC_INPUT_PRESSURE},
		{time_stamp: ts, signal: C.float(heatOffset), sensor_id: C.BSEC_INPUT_HEATSOURCE},
	}
	if sample.GasValid {
		inputs = append(inputs, C.bsec_input_t{
			time_stamp: ts, signal: C.float(sample.GasResistance), sensor_id: C.BSEC_INPUT_GASRESISTOR,
		})
	}

	var outputs [C.BSEC_NUMBER_OUTPUTS]C.bsec_output_t
	n := C.uint8_t(len(outputs))
	ret := C.bsec_do_steps(&inputs[0], C.uint8_t(len(inputs)), &outputs[0], &n)
	if err := check(ErrProcess, "bsec_do_steps", ret); err != nil {
		return nil, err
	}

	result := make([]Output, 0, int(n))
	for _, out := range outputs[:n] {
		kind, ok := kindOf(out.sensor_id)
		if !ok {
			continue
		}
		result = append(result, Output{
			Kind:      kind,
			Value:     float64(out.signal),
			Accuracy:  Accuracy(out.accuracy),
			Timestamp: b.fromNanos(out.time_stamp),
		})
	}

	return result, nil
}

func kindOf(id C.uint8_t) (OutputKind, bool) {
	for kind, known := range outputIDs {
		if known == id {
			return kind, true
		}
	}

	return 0, false
}

func (b *bsec) State() (State, error) {
	var buf [C.BSEC_MAX_STATE_BLOB_SIZE]C.uint8_t
	var n C.uint32_t
	ret := C.bsec_get_state(0, &buf[0], C.uint32_t(len(buf)),
		&b.work[0], C.uint32_t(len(b.work)), &n)
	if err := check(ErrGetState, "bsec_get_state", ret); err != nil {
		return State{}, err
	}

	return State{
		Blob:    C.GoBytes(unsafe.Pointer(&buf[0]), C.int(n)),
		Version: b.version,
	}, nil
}

func (b *bsec) SetState(state State) error {
	if len(state.Blob) == 0 {
		return errors.New().New(ErrSetState)
	}
	if len(state.Blob) > C.BSEC_MAX_STATE_BLOB_SIZE {
		return errors.New().WithData(ErrStateTooLong, len(state.Blob))
	}

	ret := C.bsec_set_state((*C.uint8_t)(unsafe.Pointer(&state.Blob[0])), C.uint32_t(len(state.Blob)),
		&b.work[0], C.uint32_t(len(b.work)))

	return check(ErrSetState, "bsec_set_state", ret)
}

func (b *bsec) Close() error {
	if !b.closed {
		b.closed = true
		release()
	}

	return nil
}

// check converts a library return code. Warnings are not returned as errors.
func check(code errors.ErrorCode, op string, ret C.bsec_library_return_t) error {
	if ret < C.BSEC_OK {
		return errors.New().Wrap(code, &StatusError{Op: op, Status: int(ret)})
	}
	if ret > C.BSEC_OK {
		logger.Debug().Str("op", op).Int("status", int(ret)).Msg("Fusion library warning")
	}

	return nil
}
