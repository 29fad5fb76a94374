package source

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/signal.recorder/internal/monitoring"
	"github.com/banshee-data/signal.recorder/internal/serialport"
)

var serialLogf = monitoring.Component("serial")

const serialReadSize = 1024

// SerialConfig describes the serial connection.
type SerialConfig struct {
	Port        string                 `json:"port" yaml:"port"`
	Options     serialport.PortOptions `json:"options" yaml:"options"`
	ReadTimeout time.Duration          `json:"read_timeout" yaml:"read_timeout"`
}

// Serial reads from a serial port. Messages queued with Send are written
// before each read.
type Serial struct {
	cfg    SerialConfig
	opener serialport.Opener

	mu      sync.Mutex
	port    serialport.Porter
	pending [][]byte
	closed  bool

	buf []byte
}

// NewSerial creates a serial source. A nil opener uses serialport.Open.
func NewSerial(cfg SerialConfig, opener serialport.Opener) *Serial {
	if opener == nil {
		opener = serialport.Open
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	return &Serial{
		cfg:    cfg,
		opener: opener,
		buf:    make([]byte, serialReadSize),
	}
}

// Setup opens the port.
func (s *Serial) Setup() error {
	opts, err := s.cfg.Options.Normalize()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.port != nil {
		return nil
	}

	port, err := s.opener(s.cfg.Port, opts)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", s.cfg.Port, err)
	}
	if err := port.SetReadTimeout(s.cfg.ReadTimeout); err != nil {
		port.Close()
		return fmt.Errorf("set read timeout on %s: %w", s.cfg.Port, err)
	}
	s.port = port
	serialLogf("opened %s at %s", s.cfg.Port, opts)
	return nil
}

// Send queues msg to be written to the port on the next read.
func (s *Serial) Send(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.port == nil {
		return ErrNotConnected
	}
	s.pending = append(s.pending, append([]byte(nil), msg...))
	return nil
}

// ReadData writes every pending message, then reads whatever the port has
// within the read timeout.
func (s *Serial) ReadData() ([]byte, error) {
	s.mu.Lock()
	port := s.port
	pending := s.pending
	s.pending = nil
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return nil, ErrClosed
	}
	if port == nil {
		return nil, ErrNotConnected
	}

	for _, msg := range pending {
		if _, err := port.Write(msg); err != nil {
			return nil, fmt.Errorf("write to %s: %w", s.cfg.Port, err)
		}
	}

	n, err := port.Read(s.buf)
	if n > 0 {
		return append([]byte(nil), s.buf[:n]...), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read from %s: %w", s.cfg.Port, err)
	}
	return nil, nil
}

// Close closes the port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.pending = nil
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// Describe returns a human-readable summary.
func (s *Serial) Describe() string {
	return fmt.Sprintf("serial %s %s", s.cfg.Port, s.cfg.Options)
}
