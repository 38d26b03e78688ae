// Package state persists the fusion engine's opaque calibration state.
package state

import "time"

// Persister saves and restores the engine state blob. Implementations are
// called from the sampling loop only.
type Persister interface {
	Save(snap Snapshot) error
	// Load returns ErrNotFound or ErrCorrupt when no usable state exists;
	// both mean the engine must cold start.
	Load() (Snapshot, error)
}

// Snapshot is one persisted engine state. Blob is never inspected.
type Snapshot struct {
	Blob          []byte
	EngineVersion string
	SavedAt       time.Time
}
