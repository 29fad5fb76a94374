package source

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/signal.recorder/internal/monitoring"
)

var socketLogf = monitoring.Component("socket")

const socketReadSize = 1024

// SocketConfig describes the TCP listener.
type SocketConfig struct {
	Host        string        `json:"host" yaml:"host"`
	Port        int           `json:"port" yaml:"port"`
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`
}

// Address returns host:port.
func (c SocketConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Socket listens for a single TCP client. Each ReadData first tries to
// accept a client if none is connected, then reads from it. When the client
// hangs up the socket returns to accepting, so a new client can connect
// without restarting acquisition.
type Socket struct {
	cfg    SocketConfig
	status func(string)

	mu       sync.Mutex
	listener *net.TCPListener
	conn     net.Conn
	closed   bool

	buf []byte
}

// NewSocket creates a socket source. status receives connect and disconnect
// messages and may be nil.
func NewSocket(cfg SocketConfig, status func(string)) *Socket {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if status == nil {
		status = func(string) {}
	}
	return &Socket{
		cfg:    cfg,
		status: status,
		buf:    make([]byte, socketReadSize),
	}
}

// Setup binds the listening socket. It does not wait for a client.
func (s *Socket) Setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Address(), err)
	}
	s.listener = ln.(*net.TCPListener)
	socketLogf("listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound listener address, or nil before Setup.
func (s *Socket) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Connected reports whether a client is currently attached.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// ReadData accepts a pending client if needed and reads from it. Both steps
// are bounded by the read timeout.
func (s *Socket) ReadData() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.listener == nil {
		return nil, ErrNotConnected
	}

	if s.conn == nil {
		if err := s.acceptLocked(); err != nil {
			return nil, err
		}
		if s.conn == nil {
			return nil, nil
		}
	}

	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
		s.dropClientLocked(fmt.Sprintf("client lost: %v", err))
		return nil, nil
	}
	n, err := s.conn.Read(s.buf)
	if n > 0 {
		return append([]byte(nil), s.buf[:n]...), nil
	}
	switch {
	case err == nil, isTimeout(err):
		return nil, nil
	case errors.Is(err, io.EOF):
		s.dropClientLocked("client disconnected")
		return nil, nil
	default:
		s.dropClientLocked(fmt.Sprintf("client read error: %v", err))
		return nil, fmt.Errorf("socket read: %w", err)
	}
}

func (s *Socket) acceptLocked() error {
	if err := s.listener.SetDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
		return fmt.Errorf("socket accept: %w", err)
	}
	conn, err := s.listener.Accept()
	if err != nil {
		if isTimeout(err) {
			return nil
		}
		return fmt.Errorf("socket accept: %w", err)
	}
	s.conn = conn
	msg := fmt.Sprintf("client connected from %s", conn.RemoteAddr())
	socketLogf("%s", msg)
	s.status(msg)
	return nil
}

func (s *Socket) dropClientLocked(msg string) {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	socketLogf("%s", msg)
	s.status(msg)
}

// Close closes the client connection and the listener.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.conn != nil {
		errs = append(errs, s.conn.Close())
		s.conn = nil
	}
	if s.listener != nil {
		errs = append(errs, s.listener.Close())
		s.listener = nil
	}
	return errors.Join(errs...)
}

// Describe returns a human-readable summary.
func (s *Socket) Describe() string {
	return "socket " + s.cfg.Address()
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
