//go:build !linux

package sensor

import "codeberg.org/mutker/bsec-exporter/internal/errors"

func openBus(string, Address) (bus, error) {
	return nil, errors.New().New(ErrUnsupported)
}
