package scheduler

import (
	"time"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
	"codeberg.org/mutker/bsec-exporter/internal/state"
)

const (
	defaultInitialAmbient   = 20.0
	defaultReadTimeout      = 5 * time.Second
	defaultBackoffInitial   = time.Second
	defaultBackoffMax       = 60 * time.Second
	defaultFailureThreshold = 5
	defaultLogInterval      = 30 * time.Second
)

type Config struct {
	// InitialAmbient seeds the ambient temperature estimate in °C.
	InitialAmbient float64
	// HeatOffset is the heat-source temperature offset handed to the engine.
	HeatOffset float64
	// ReadTimeout bounds one sensor read plus engine call.
	ReadTimeout time.Duration

	BackoffInitial   time.Duration
	BackoffMax       time.Duration
	FailureThreshold int
	LogInterval      time.Duration

	State state.Config
}

func DefaultConfig() Config {
	return Config{
		InitialAmbient:   defaultInitialAmbient,
		ReadTimeout:      defaultReadTimeout,
		BackoffInitial:   defaultBackoffInitial,
		BackoffMax:       defaultBackoffMax,
		FailureThreshold: defaultFailureThreshold,
		LogInterval:      defaultLogInterval,
		State:            state.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.ReadTimeout <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "read_timeout must be positive")
	}
	if c.BackoffInitial <= 0 || c.BackoffMax < c.BackoffInitial {
		return errFactory.WithData(ErrInvalidConfig, struct {
			BackoffInitial time.Duration
			BackoffMax     time.Duration
		}{c.BackoffInitial, c.BackoffMax})
	}
	if c.FailureThreshold < 1 {
		return errFactory.WithData(ErrInvalidConfig, c.FailureThreshold)
	}
	if c.LogInterval < 0 {
		return errFactory.WithData(ErrInvalidConfig, c.LogInterval)
	}

	return c.State.Validate()
}

// backoff returns the delay after the n-th consecutive failure.
func (c Config) backoff(n int) time.Duration {
	d := c.BackoffInitial
	for i := 1; i < n; i++ {
		d *= 2
		if d >= c.BackoffMax {
			return c.BackoffMax
		}
	}
	if d > c.BackoffMax {
		return c.BackoffMax
	}
	return d
}
