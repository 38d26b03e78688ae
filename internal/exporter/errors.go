package exporter

import "codeberg.org/mutker/bsec-exporter/internal/errors"

const (
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrListen        = errors.ErrorCode("exporter_listen_failed")
	ErrServe         = errors.ErrServeHTTP
	ErrShutdown      = errors.ErrShutdownFailed
)
