//go:build linux

package sensor

import (
	"io"
	"os"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
	"golang.org/x/sys/unix"
)

// i2cSlave is the I2C_SLAVE ioctl request from linux/i2c-dev.h.
const i2cSlave = 0x0703

type i2cBus struct {
	f *os.File
}

func openBus(device string, addr Address) (bus, error) {
	errFactory := errors.New()

	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return nil, errFactory.Wrap(ErrOpenFailed, err)
	}

	if err := unix.IoctlSetInt(int(f.Fd()), i2cSlave, int(addr)); err != nil {
		f.Close()
		return nil, errFactory.WithData(ErrOpenFailed, struct {
			Phase   string
			Address Address
			Error   string
		}{
			Phase:   "set_slave_address",
			Address: addr,
			Error:   err.Error(),
		})
	}

	return &i2cBus{f: f}, nil
}

func (b *i2cBus) ReadReg(reg byte, buf []byte) error {
	if _, err := b.f.Write([]byte{reg}); err != nil {
		return err
	}
	_, err := io.ReadFull(b.f, buf)
	return err
}

func (b *i2cBus) WriteReg(reg, val byte) error {
	_, err := b.f.Write([]byte{reg, val})
	return err
}

func (b *i2cBus) Close() error {
	return b.f.Close()
}
