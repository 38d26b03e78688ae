package engine

import (
	"sync/atomic"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
)

// The library keeps its state in C globals, so only one handle may exist.
var inUse atomic.Bool

func acquire() error {
	if !inUse.CompareAndSwap(false, true) {
		return errors.New().New(ErrAlreadyInUse)
	}

	return nil
}

func release() {
	inUse.Store(false)
}
