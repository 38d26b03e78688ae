package sensor

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
	"codeberg.org/mutker/bsec-exporter/internal/logger"
)

const (
	regChipID    = 0xD0
	regReset     = 0xE0
	regStatus    = 0x1D
	regCtrlGas0  = 0x70
	regCtrlGas1  = 0x71
	regCtrlHum   = 0x72
	regCtrlMeas  = 0x74
	regResHeat0  = 0x5A
	regGasWait0  = 0x64
	chipID       = 0x61
	softReset    = 0xB6
	fieldLength  = 15
	modeForced   = 0x01
	runGas       = 0x10
	heatOff      = 0x08
	newDataMask  = 0x80
	gasValidMask = 0x20
	heatStabMask = 0x10

	maxOversampling = 5
	resetDelay      = 10 * time.Millisecond
	pollInterval    = 5 * time.Millisecond
	pollAttempts    = 10
)

var measCycles = [6]uint32{0, 1, 2, 4, 8, 16}

// BME680 is a forced-mode driver for the Bosch BME680.
type BME680 struct {
	mu     sync.Mutex
	bus    bus
	cal    calibration
	closed bool
	log    logger.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// Open connects to the sensor described by cfg and loads its calibration.
func Open(cfg Config) (*BME680, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b, err := openBus(cfg.Device, cfg.Address)
	if err != nil {
		return nil, err
	}

	dev, err := newBME680(b)
	if err != nil {
		b.Close()
		return nil, err
	}

	dev.log.Info().
		Str("device", cfg.Device).
		Str("address", cfg.Address.String()).
		Msg("BME680 initialized")

	return dev, nil
}

func newBME680(b bus) (*BME680, error) {
	d := &BME680{
		bus:   b,
		log:   logger.Component("sensor"),
		sleep: sleepContext,
		now:   time.Now,
	}

	if err := d.init(); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *BME680) init() error {
	errFactory := errors.New()

	id := make([]byte, 1)
	if err := d.bus.ReadReg(regChipID, id); err != nil {
		return errFactory.Wrap(ErrOpenFailed, err)
	}
	if id[0] != chipID {
		return errFactory.WithData(ErrDeviceNotFound, id[0])
	}

	if err := d.bus.WriteReg(regReset, softReset); err != nil {
		return errFactory.Wrap(ErrOpenFailed, err)
	}
	if err := d.sleep(context.Background(), resetDelay); err != nil {
		return errFactory.Wrap(ErrOpenFailed, err)
	}

	coeff := make([]byte, lenCoeff1+lenCoeff2)
	if err := d.bus.ReadReg(regCoeff1, coeff[:lenCoeff1]); err != nil {
		return errFactory.Wrap(ErrCalibration, err)
	}
	if err := d.bus.ReadReg(regCoeff2, coeff[lenCoeff1:]); err != nil {
		return errFactory.Wrap(ErrCalibration, err)
	}

	extra := make([]byte, 5)
	if err := d.bus.ReadReg(regResHeatVal, extra); err != nil {
		return errFactory.Wrap(ErrCalibration, err)
	}

	d.cal = parseCalibration(coeff, extra[regResHeatVal], extra[regResHeatRng], extra[regRangeSwErr])

	return nil
}

// Read triggers one forced-mode measurement and waits for the result.
func (d *BME680) Read(ctx context.Context, ambient float64, req MeasurementRequest) (RawSample, error) {
	errFactory := errors.New()

	if err := validateRequest(req); err != nil {
		return RawSample{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return RawSample{}, errFactory.New(ErrClosed)
	}

	if err := d.configure(ambient, req); err != nil {
		return RawSample{}, errFactory.Wrap(ErrReadFailed, err)
	}

	if err := d.sleep(ctx, measurementDuration(req)); err != nil {
		return RawSample{}, errFactory.Wrap(ErrReadFailed, err)
	}

	buf := make([]byte, fieldLength)
	for attempt := 0; ; attempt++ {
		if err := d.bus.ReadReg(regStatus, buf); err != nil {
			return RawSample{}, errFactory.Wrap(ErrReadFailed, err)
		}
		if buf[0]&newDataMask != 0 {
			break
		}
		if attempt >= pollAttempts {
			return RawSample{}, errFactory.New(ErrNoNewData)
		}
		if err := d.sleep(ctx, pollInterval); err != nil {
			return RawSample{}, errFactory.Wrap(ErrReadFailed, err)
		}
	}

	sample := d.compensate(buf, req.RunGas)
	sample.Timestamp = d.now()

	return sample, nil
}

func (d *BME680) configure(ambient float64, req MeasurementRequest) error {
	writes := []struct{ reg, val byte }{
		{regCtrlHum, req.HumidityOversampling & 0x07},
	}

	if req.RunGas {
		writes = append(writes,
			struct{ reg, val byte }{regResHeat0, d.cal.heaterResistance(req.HeaterTemperature, ambient)},
			struct{ reg, val byte }{regGasWait0, heaterDurationCode(uint32(req.HeaterDuration.Milliseconds()))},
			struct{ reg, val byte }{regCtrlGas1, runGas},
			struct{ reg, val byte }{regCtrlGas0, 0},
		)
	} else {
		writes = append(writes,
			struct{ reg, val byte }{regCtrlGas1, 0},
			struct{ reg, val byte }{regCtrlGas0, heatOff},
		)
	}

	writes = append(writes, struct{ reg, val byte }{
		regCtrlMeas,
		req.TemperatureOversampling<<5 | req.PressureOversampling<<2 | modeForced,
	})

	for _, w := range writes {
		if err := d.bus.WriteReg(w.reg, w.val); err != nil {
			return err
		}
	}

	return nil
}

func (d *BME680) compensate(buf []byte, gasRequested bool) RawSample {
	pressADC := uint32(buf[2])<<12 | uint32(buf[3])<<4 | uint32(buf[4])>>4
	tempADC := uint32(buf[5])<<12 | uint32(buf[6])<<4 | uint32(buf[7])>>4
	humADC := uint16(buf[8])<<8 | uint16(buf[9])
	gasADC := uint16(buf[13])<<2 | uint16(buf[14])>>6
	gasRange := buf[14] & 0x0F

	temp, tFine := d.cal.temperature(tempADC)

	s := RawSample{
		Temperature: temp,
		Pressure:    d.cal.pressure(pressADC, tFine) / 100.0,
		Humidity:    d.cal.humidity(humADC, tFine),
	}

	if gasRequested {
		s.GasValid = buf[14]&gasValidMask != 0 && buf[14]&heatStabMask != 0
		s.GasResistance = d.cal.gasResistance(gasADC, gasRange)
	}

	return s
}

func (d *BME680) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	return d.bus.Close()
}

func validateRequest(req MeasurementRequest) error {
	if req.TemperatureOversampling > maxOversampling ||
		req.PressureOversampling > maxOversampling ||
		req.HumidityOversampling > maxOversampling {
		return errors.New().WithData(ErrInvalidRequest, req)
	}
	if req.RunGas && req.HeaterDuration <= 0 {
		return errors.New().WithMessage(ErrInvalidRequest, "gas measurement requested without heater duration")
	}

	return nil
}

// measurementDuration estimates the TPHG conversion time, heater phase included.
func measurementDuration(req MeasurementRequest) time.Duration {
	cycles := measCycles[req.TemperatureOversampling] +
		measCycles[req.PressureOversampling] +
		measCycles[req.HumidityOversampling]

	us := cycles*1963 + 477*4 + 477*5 + 500
	d := time.Duration(us) * time.Microsecond

	if req.RunGas {
		d += req.HeaterDuration
	}

	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
