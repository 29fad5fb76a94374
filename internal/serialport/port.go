// Package serialport abstracts the serial connection to the acquisition
// device so the data source can be tested without hardware.
package serialport

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Porter is the minimal surface the data source needs from a serial port.
type Porter interface {
	io.ReadWriteCloser
	// SetReadTimeout bounds how long Read blocks. A Read that times out
	// returns 0 bytes and a nil error.
	SetReadTimeout(timeout time.Duration) error
}

// Opener opens the named port with the given options. Open is the real
// implementation; tests substitute a MockOpener.
type Opener func(path string, opts PortOptions) (Porter, error)

// Open opens a real serial port via go.bug.st/serial.
func Open(path string, opts PortOptions) (Porter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", path, err)
	}
	return port, nil
}

// ListPorts returns the names of the serial ports present on the system.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}
