package serialport

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// ErrPortClosed is returned by TestablePort after Close.
var ErrPortClosed = errors.New("serial port closed")

// TestablePort implements Porter with configurable behaviour for testing.
// Reads on an empty buffer wait up to the configured read timeout and then
// return (0, nil), mirroring a real port.
type TestablePort struct {
	mu sync.Mutex

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer

	readErr  error
	writeErr error
	closed   bool

	readTimeout time.Duration
	readCalls   int
	writeCalls  int
}

// NewTestablePort creates an empty TestablePort.
func NewTestablePort() *TestablePort {
	return &TestablePort{readTimeout: 10 * time.Millisecond}
}

// Read returns buffered data, waiting at most the read timeout for some to
// arrive.
func (p *TestablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.readCalls++
	if p.closed {
		return 0, ErrPortClosed
	}
	if p.readErr != nil {
		err := p.readErr
		p.readErr = nil
		return 0, err
	}

	if p.readBuf.Len() == 0 {
		// Poll in small steps so AddReadData and Close are seen promptly.
		deadline := time.Now().Add(p.readTimeout)
		for p.readBuf.Len() == 0 && !p.closed && time.Now().Before(deadline) {
			p.mu.Unlock()
			time.Sleep(time.Millisecond)
			p.mu.Lock()
		}
		if p.closed {
			return 0, ErrPortClosed
		}
		if p.readBuf.Len() == 0 {
			return 0, nil
		}
	}
	return p.readBuf.Read(b)
}

// Write records data written to the port.
func (p *TestablePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.writeCalls++
	if p.closed {
		return 0, ErrPortClosed
	}
	if p.writeErr != nil {
		err := p.writeErr
		p.writeErr = nil
		return 0, err
	}
	return p.writeBuf.Write(b)
}

// Close marks the port closed; a waiting reader returns ErrPortClosed.
func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// SetReadTimeout implements Porter.
func (p *TestablePort) SetReadTimeout(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readTimeout = timeout
	return nil
}

// AddReadData queues bytes for subsequent Read calls.
func (p *TestablePort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readBuf.Write(data)
}

// FailNextRead makes the next Read return err.
func (p *TestablePort) FailNextRead(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

// FailNextWrite makes the next Write return err.
func (p *TestablePort) FailNextWrite(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// Written returns a copy of everything written to the port.
func (p *TestablePort) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bytes.Clone(p.writeBuf.Bytes())
}

// Closed reports whether Close has been called.
func (p *TestablePort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// ReadTimeout returns the timeout most recently set.
func (p *TestablePort) ReadTimeout() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readTimeout
}

// MockOpener records Open calls and hands out a fixed port or error.
type MockOpener struct {
	mu    sync.Mutex
	Port  Porter
	Err   error
	Calls []OpenCall
}

// OpenCall records the arguments of one Open call.
type OpenCall struct {
	Path string
	Opts PortOptions
}

// NewMockOpener returns a MockOpener that yields port.
func NewMockOpener(port Porter) *MockOpener {
	return &MockOpener{Port: port}
}

// Open satisfies the Opener signature.
func (m *MockOpener) Open(path string, opts PortOptions) (Porter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, OpenCall{Path: path, Opts: opts})
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Port, nil
}

// LastCall returns the most recent Open call, or nil if none.
func (m *MockOpener) LastCall() *OpenCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	c := m.Calls[len(m.Calls)-1]
	return &c
}
