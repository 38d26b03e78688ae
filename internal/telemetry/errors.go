package telemetry

import "codeberg.org/mutker/bsec-exporter/internal/errors"

const (
	ErrRegister = errors.ErrorCode("telemetry_register_failed")
)
