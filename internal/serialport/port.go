package serialport

import (
	"time"

	"codeberg.org/mutker/encoderctl/internal/errors"
	"go.bug.st/serial"
)

// Port defines the serial port operations the supervisor needs. The
// indirection exists so tests can drive the read loop with a scripted
// port instead of real hardware.
type Port interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error
	SetReadTimeout(t time.Duration) error
}

// PortFactory opens a serial port connection.
type PortFactory func(path string, mode *serial.Mode) (Port, error)

// DefaultPortFactory opens real serial ports via go.bug.st/serial.
func DefaultPortFactory(path string, mode *serial.Mode) (Port, error) {
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrPortOpenFailed, err)
	}
	return port, nil
}
