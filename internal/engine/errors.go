package engine

import (
	"fmt"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
)

const (
	ErrUnknownOutput     = errors.ErrorCode("engine_unknown_output")
	ErrUnknownSampleRate = errors.ErrorCode("engine_unknown_sample_rate")
	ErrNoSubscription    = errors.ErrorCode("engine_no_active_subscription")
	ErrInvalidConfigBlob = errors.ErrorCode("engine_invalid_config_blob")
	ErrAlreadyInUse      = errors.ErrorCode("engine_already_in_use")
	ErrUnavailable       = errors.ErrorCode("engine_unavailable")

	ErrInit         = errors.ErrorCode("engine_init_failed")
	ErrConfigure    = errors.ErrorCode("engine_configure_failed")
	ErrSubscribe    = errors.ErrorCode("engine_subscribe_failed")
	ErrControl      = errors.ErrorCode("engine_control_failed")
	ErrProcess      = errors.ErrorCode("engine_process_failed")
	ErrGetState     = errors.ErrorCode("engine_get_state_failed")
	ErrSetState     = errors.ErrorCode("engine_set_state_failed")
	ErrStateTooLong = errors.ErrorCode("engine_state_too_long")
)

// StatusError carries the library's native return code. Negative codes are
// errors, positive codes are warnings.
type StatusError struct {
	Op     string
	Status int
}

func (e *StatusError) Error() string {
	kind := "error"
	if e.Status > 0 {
		kind = "warning"
	}

	return fmt.Sprintf("%s: library %s %d", e.Op, kind, e.Status)
}

// IsWarning reports whether the status is informational only.
func (e *StatusError) IsWarning() bool {
	return e.Status > 0
}

// StatusOf extracts the native return code from err, if any.
func StatusOf(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status, true
	}

	return 0, false
}
