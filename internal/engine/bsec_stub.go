//go:build !bsec || !cgo

package engine

import "codeberg.org/mutker/bsec-exporter/internal/errors"

// Open returns the library-backed engine. This build was compiled without the
// bsec tag, so the proprietary library is not linked in.
func Open() (Engine, error) {
	return nil, errors.New().WithMessage(ErrUnavailable,
		"fusion library not linked in; rebuild with -tags bsec and libalgobsec.a")
}
