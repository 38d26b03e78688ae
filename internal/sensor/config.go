package sensor

import (
	"strings"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
)

type Config struct {
	Device  string
	Address Address
}

func DefaultConfig() Config {
	return Config{
		Device:  "/dev/i2c-1",
		Address: AddressPrimary,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.Device == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "sensor device path is empty")
	}
	if c.Address != AddressPrimary && c.Address != AddressSecondary {
		return errFactory.WithData(ErrInvalidConfig, c.Address)
	}
	return nil
}

// ParseAddress resolves the configured address selector.
func ParseAddress(s string) (Address, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "primary":
		return AddressPrimary, nil
	case "secondary":
		return AddressSecondary, nil
	default:
		return 0, errors.New().WithData(ErrInvalidConfig, s)
	}
}
