package scheduler

import "codeberg.org/mutker/bsec-exporter/internal/errors"

const (
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrEngineFatal   = errors.ErrorCode("scheduler_engine_fatal")
	ErrFinalSave     = errors.ErrFinalSave
)
