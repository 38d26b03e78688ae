package state

import "codeberg.org/mutker/bsec-exporter/internal/errors"

const (
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrNotFound      = errors.ErrorCode("state_not_found")
	ErrCorrupt       = errors.ErrorCode("state_corrupt")
	ErrRead          = errors.ErrorCode("state_read_failed")
	ErrWrite         = errors.ErrorCode("state_write_failed")
	ErrEncode        = errors.ErrorCode("state_encode_failed")
)

// IsColdStart reports whether err means there is no usable prior state.
func IsColdStart(err error) bool {
	return errors.HasCode(err, ErrNotFound) || errors.HasCode(err, ErrCorrupt)
}
