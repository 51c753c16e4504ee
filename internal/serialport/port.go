// Package serialport opens and discovers the USB serial link to the
// ADICUP3029 that carries the CN0569 board.
package serialport

import (
	"errors"
	"io"
	"time"
)

var (
	// ErrWriteFailed is returned when a write is only partially accepted.
	ErrWriteFailed = errors.New("failed to write to serial port")
	// ErrDeviceNotFound is returned when no attached port matches the board.
	ErrDeviceNotFound = errors.New("evaluation board not found on any serial port")
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter extends SerialPorter with timeout capabilities.
// Ports that implement it return (0, nil) from Read when the timeout
// expires without data.
type TimeoutSerialPorter interface {
	SerialPorter
	// SetReadTimeout sets the read timeout for the serial port.
	SetReadTimeout(timeout time.Duration) error
}

// Opener opens a serial port at path with the given options.
type Opener func(path string, opts PortOptions) (SerialPorter, error)

// WriteAll writes p to w, failing with ErrWriteFailed on a short write.
func WriteAll(w io.Writer, p []byte) error {
	n, err := w.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return ErrWriteFailed
	}
	return nil
}
