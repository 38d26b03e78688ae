// Package telemetry exposes the exporter's own health as Prometheus metrics.
package telemetry

import "time"

// Recorder receives lifecycle signals from the sampling loop.
type Recorder interface {
	CycleCompleted(published time.Time)
	SensorFailure(consecutive int)
	SensorRecovered()
	EngineError(class string)
	StateSaved(err error)
	ColdStart(cold bool)
}

// Noop discards every signal.
type Noop struct{}

func (Noop) CycleCompleted(time.Time) {}
func (Noop) SensorFailure(int)        {}
func (Noop) SensorRecovered()         {}
func (Noop) EngineError(string)       {}
func (Noop) StateSaved(error)         {}
func (Noop) ColdStart(bool)           {}
