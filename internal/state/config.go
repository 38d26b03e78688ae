package state

import (
	"time"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
)

const (
	defaultDirPerm  = 0o750
	defaultFilePerm = 0o600
	defaultPath     = "/var/lib/bsec-exporter/bsec-state.bin"

	defaultSaveInterval    = 60 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

type Config struct {
	Path            string
	SaveInterval    time.Duration
	SaveEveryCycles uint64
	ShutdownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Path:            defaultPath,
		SaveInterval:    defaultSaveInterval,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Path == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "state file path is empty")
	}
	if c.SaveInterval < 0 {
		return errFactory.WithData(ErrInvalidConfig, c.SaveInterval)
	}
	// Without either trigger the state would only be written at shutdown
	if c.SaveInterval == 0 && c.SaveEveryCycles == 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "save_interval and save_every_cycles are both disabled")
	}
	if c.ShutdownTimeout <= 0 {
		return errFactory.WithData(ErrInvalidConfig, c.ShutdownTimeout)
	}

	return nil
}

// Policy decides when the periodic save is due. It is owned by the
// sampling loop and not safe for concurrent use.
type Policy struct {
	Interval    time.Duration
	EveryCycles uint64

	lastAt    time.Time
	lastCycle uint64
}

// NewPolicy starts counting from start at cycle zero.
func NewPolicy(cfg Config, start time.Time) *Policy {
	return &Policy{
		Interval:    cfg.SaveInterval,
		EveryCycles: cfg.SaveEveryCycles,
		lastAt:      start,
	}
}

// Due reports whether a save should happen after the given cycle.
func (p *Policy) Due(now time.Time, cycle uint64) bool {
	if p.Interval > 0 && now.Sub(p.lastAt) >= p.Interval {
		return true
	}

	return p.EveryCycles > 0 && cycle-p.lastCycle >= p.EveryCycles
}

// Mark records a save attempt.
func (p *Policy) Mark(now time.Time, cycle uint64) {
	p.lastAt = now
	p.lastCycle = cycle
}
