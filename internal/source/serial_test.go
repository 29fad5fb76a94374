package source

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/signal.recorder/internal/serialport"
)

func newTestSerial(t *testing.T) (*Serial, *serialport.TestablePort, *serialport.MockOpener) {
	t.Helper()
	port := serialport.NewTestablePort()
	opener := serialport.NewMockOpener(port)
	s := NewSerial(SerialConfig{
		Port:    "/dev/ttyUSB0",
		Options: serialport.PortOptions{BaudRate: 9600, Parity: "even"},
	}, opener.Open)
	return s, port, opener
}

func TestSerialSetupNormalizesOptions(t *testing.T) {
	s, port, opener := newTestSerial(t)
	require.NoError(t, s.Setup())
	defer s.Close()

	call := opener.LastCall()
	require.NotNil(t, call)
	assert.Equal(t, "/dev/ttyUSB0", call.Path)
	assert.Equal(t, serialport.PortOptions{BaudRate: 9600, DataBits: 8, StopBits: 1, Parity: "E"}, call.Opts)
	assert.Equal(t, DefaultReadTimeout, port.ReadTimeout())
}

func TestSerialSetupFailure(t *testing.T) {
	opener := serialport.NewMockOpener(nil)
	opener.Err = errors.New("no such device")
	s := NewSerial(SerialConfig{Port: "/dev/missing"}, opener.Open)

	err := s.Setup()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such device")

	_, err = s.ReadData()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSerialSetupRejectsBadOptions(t *testing.T) {
	s := NewSerial(SerialConfig{Options: serialport.PortOptions{Parity: "mark"}}, serialport.NewMockOpener(nil).Open)
	assert.Error(t, s.Setup())
}

func TestSerialReadData(t *testing.T) {
	s, port, _ := newTestSerial(t)
	require.NoError(t, s.Setup())
	defer s.Close()

	port.AddReadData([]byte{1, 2, 3})
	data, err := s.ReadData()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	// Timeout yields no data and no error.
	require.NoError(t, port.SetReadTimeout(time.Millisecond))
	data, err = s.ReadData()
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestSerialSendDrainsQueueBeforeRead(t *testing.T) {
	s, port, _ := newTestSerial(t)
	assert.ErrorIs(t, s.Send([]byte("early")), ErrNotConnected)

	require.NoError(t, s.Setup())
	defer s.Close()

	require.NoError(t, s.Send([]byte("AT\n")))
	require.NoError(t, s.Send([]byte("GO\n")))
	assert.Empty(t, port.Written())

	port.AddReadData([]byte{9})
	_, err := s.ReadData()
	require.NoError(t, err)
	assert.Equal(t, "AT\nGO\n", string(port.Written()))

	port.AddReadData([]byte{9})
	_, err = s.ReadData()
	require.NoError(t, err)
	assert.Equal(t, "AT\nGO\n", string(port.Written()), "queue is emptied after writing")
}

func TestSerialReadErrorIsFatal(t *testing.T) {
	s, port, _ := newTestSerial(t)
	require.NoError(t, s.Setup())
	defer s.Close()

	port.FailNextRead(errors.New("device unplugged"))
	_, err := s.ReadData()
	assert.ErrorContains(t, err, "device unplugged")
}

func TestSerialCloseIsIdempotent(t *testing.T) {
	s, port, _ := newTestSerial(t)
	require.NoError(t, s.Setup())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, port.Closed())

	_, err := s.ReadData()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Send([]byte("x")), ErrClosed)
	assert.ErrorIs(t, s.Setup(), ErrClosed)
}
