// Package journal keeps an optional SQLite log of exporter lifecycle events.
// It never stores output values; those belong to the metrics collector.
package journal

import (
	"context"
	"time"
)

// Journal records lifecycle events.
type Journal interface {
	Record(ctx context.Context, ev Event) error
	Close() error
}

// Repository is the storage side of the journal.
type Repository interface {
	Record(ev Event) error
	Close() error
}

type EventKind string

const (
	EventStartup       EventKind = "startup"
	EventColdStart     EventKind = "cold_start"
	EventStateRestored EventKind = "state_restored"
	EventStateSaved    EventKind = "state_saved"
	EventSaveFailed    EventKind = "state_save_failed"
	EventSensorFailing EventKind = "sensor_failure_streak_start"
	EventSensorRecover EventKind = "sensor_failure_streak_end"
	EventEngineError   EventKind = "engine_error"
	EventShutdown      EventKind = "shutdown"
)

// Event is one journal row.
type Event struct {
	Time      time.Time
	Kind      EventKind
	RunID     string
	ErrorCode string
	Detail    string
}
