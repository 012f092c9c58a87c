package cmdint

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the byte stream a Conn talks over. A Read that times out returns
// (0, nil); go.bug.st/serial ports behave that way once SetReadTimeout has
// been called.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Dialer opens the device at path.
type Dialer func(path string, baud int) (Port, error)

// OpenSerial opens a serial device as 8N1 at the given baud rate.
func OpenSerial(path string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	return port, nil
}

// IsPortError reports whether err comes from the serial layer, e.g. a missing
// or busy device. Port scans treat these as "no interpreter here".
func IsPortError(err error) bool {
	var portErrPtr *serial.PortError
	if errors.As(err, &portErrPtr) {
		return true
	}
	var portErr serial.PortError
	return errors.As(err, &portErr)
}
