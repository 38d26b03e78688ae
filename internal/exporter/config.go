package exporter

import (
	"strings"
	"time"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
)

const (
	defaultListenAddr  = "localhost:3953"
	defaultPath        = "/metrics"
	defaultGracePeriod = 10 * time.Second
)

type Config struct {
	ListenAddrs []string
	Path        string
	GracePeriod time.Duration
}

func DefaultConfig() Config {
	return Config{
		ListenAddrs: []string{defaultListenAddr},
		Path:        defaultPath,
		GracePeriod: defaultGracePeriod,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if len(c.ListenAddrs) == 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "no listen address configured")
	}
	for _, a := range c.ListenAddrs {
		if strings.TrimSpace(a) == "" {
			return errFactory.WithMessage(ErrInvalidConfig, "empty listen address")
		}
	}
	if !strings.HasPrefix(c.Path, "/") || c.Path == "/" || c.Path == healthPath {
		return errFactory.WithData(ErrInvalidConfig, c.Path)
	}
	if c.GracePeriod <= 0 {
		return errFactory.WithData(ErrInvalidConfig, c.GracePeriod)
	}

	return nil
}
