package sensor

import "codeberg.org/mutker/bsec-exporter/internal/errors"

const (
	ErrInvalidConfig  = errors.ErrorCode("sensor_invalid_config")
	ErrOpenFailed     = errors.ErrorCode("sensor_open_failed")
	ErrDeviceNotFound = errors.ErrorCode("sensor_device_not_found")
	ErrCalibration    = errors.ErrorCode("sensor_calibration_failed")
	ErrReadFailed     = errors.ErrorCode("sensor_read_failed")
	ErrNoNewData      = errors.ErrorCode("sensor_no_new_data")
	ErrInvalidRequest = errors.ErrorCode("sensor_invalid_request")
	ErrUnsupported    = errors.ErrorCode("sensor_unsupported_platform")
	ErrClosed         = errors.ErrorCode("sensor_closed")
)
