package sensor

// bus abstracts register access so the driver can be tested without hardware.
type bus interface {
	ReadReg(reg byte, buf []byte) error
	WriteReg(reg, val byte) error
	Close() error
}
