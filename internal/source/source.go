// Package source provides the byte producers the acquisition loop reads
// from: a serial port, a TCP listener accepting one client at a time, and a
// synthetic waveform generator.
package source

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/signal.recorder/internal/serialport"
	"github.com/banshee-data/signal.recorder/internal/timeutil"
)

var (
	// ErrNotConnected is returned when an operation needs an open port.
	ErrNotConnected = errors.New("source: not connected")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("source: closed")
)

// DefaultReadTimeout bounds blocking reads so the loop can observe a stop
// request promptly.
const DefaultReadTimeout = 100 * time.Millisecond

// Source produces raw bytes. ReadData may return an empty slice with a nil
// error when nothing is available; a non-nil error is fatal to the loop.
// Close releases the underlying resources and may be called more than once.
type Source interface {
	Setup() error
	ReadData() ([]byte, error)
	Close() error
	Describe() string
}

// Kind selects a Source implementation.
type Kind string

const (
	KindSerial Kind = "serial"
	KindSocket Kind = "socket"
	KindFake   Kind = "fake"
)

// ParseKind maps a case-insensitive name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindSerial, KindSocket, KindFake:
		return k, nil
	}
	return "", fmt.Errorf("unknown source kind %q", s)
}

// Config selects and parameterises a source. Only the section matching Kind
// is used.
type Config struct {
	Kind   Kind         `json:"kind" yaml:"kind"`
	Serial SerialConfig `json:"serial" yaml:"serial"`
	Socket SocketConfig `json:"socket" yaml:"socket"`
	Fake   FakeConfig   `json:"fake" yaml:"fake"`
}

// Deps holds the collaborators a source may need. Zero values select the
// real implementations.
type Deps struct {
	Opener serialport.Opener
	Clock  timeutil.Clock
	Status func(msg string)
}

// New builds the source described by cfg. Nothing is opened until Setup.
func New(cfg Config, deps Deps) (Source, error) {
	switch cfg.Kind {
	case KindSerial:
		return NewSerial(cfg.Serial, deps.Opener), nil
	case KindSocket:
		return NewSocket(cfg.Socket, deps.Status), nil
	case KindFake:
		return NewFake(cfg.Fake, deps.Clock), nil
	}
	return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
}

// ListSerialPorts returns the serial ports present on the system.
func ListSerialPorts() ([]string, error) {
	return serialport.ListPorts()
}
