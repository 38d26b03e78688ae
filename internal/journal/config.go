package journal

import (
	"time"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm      = 0o750
	defaultDBPath       = "/var/lib/bsec-exporter/journal.db"
	defaultBatchSize    = 16
	defaultBatchTimeout = 30 * time.Second
)

type Config struct {
	DBPath       string
	Enabled      bool
	BatchSize    int
	BatchTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		DBPath:       defaultDBPath,
		Enabled:      false, // Disabled by default
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate the rest if the journal is enabled
	if !c.Enabled {
		return nil
	}
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 1 {
		return errFactory.WithData(ErrInvalidConfig, c.BatchSize)
	}
	if c.BatchTimeout < 0 {
		return errFactory.WithData(ErrInvalidConfig, c.BatchTimeout)
	}

	return nil
}
