package acquisition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/signal.recorder/internal/buffer"
	"github.com/banshee-data/signal.recorder/internal/serialport"
	"github.com/banshee-data/signal.recorder/internal/source"
)

func TestManagerFakeSineEndToEnd(t *testing.T) {
	buffers := buffer.NewFanOut(0, 0, 0, nil)
	m := NewManager(buffers, nil, source.Deps{})
	defer m.Stop()

	_, err := m.Start(source.Config{
		Kind: source.KindFake,
		Fake: source.FakeConfig{Waveform: "sine", Min: -10, Max: 10, Frequency: 100, Channels: 2},
	})
	require.NoError(t, err)

	// The first packet is produced before the first sleep.
	var frames []float32
	require.Eventually(t, func() bool {
		for _, f := range buffers.Display.Drain() {
			frames = append(frames, f[:]...)
		}
		return len(frames) > 0
	}, 50*time.Millisecond, time.Millisecond)

	for i := 0; i < len(frames); i += 8 {
		assert.GreaterOrEqual(t, frames[i], float32(-10))
		assert.LessOrEqual(t, frames[i], float32(10))
		assert.GreaterOrEqual(t, frames[i+1], float32(-10))
		assert.LessOrEqual(t, frames[i+1], float32(10))
		for ch := 2; ch < 8; ch++ {
			assert.Zero(t, frames[i+ch])
		}
	}
}

func TestManagerHandoffStopsPrevious(t *testing.T) {
	buffers := buffer.NewFanOut(0, 0, 0, nil)
	m := NewManager(buffers, nil, source.Deps{})

	first := &scriptedSource{}
	l1 := m.StartSource(first)
	require.Eventually(t, func() bool { return l1.State() == Running }, time.Second, time.Millisecond)

	second := &scriptedSource{}
	l2 := m.StartSource(second)

	// The previous loop is fully stopped before StartSource returns.
	assert.Equal(t, Stopped, l1.State())
	assert.Equal(t, 1, first.closeCount())
	assert.Same(t, l2, m.Current())

	m.Stop()
	assert.Equal(t, Stopped, l2.State())
	assert.Equal(t, 1, second.closeCount())
	assert.Nil(t, m.Current())
	assert.Equal(t, NotStarted, m.State())
	assert.Equal(t, Stats{}, m.Stats())

	// Stopping with nothing running is a no-op.
	m.Stop()
}

func TestManagerSend(t *testing.T) {
	buffers := buffer.NewFanOut(0, 0, 0, nil)
	port := serialport.NewTestablePort()
	opener := serialport.NewMockOpener(port)
	m := NewManager(buffers, nil, source.Deps{Opener: opener.Open})
	defer m.Stop()

	assert.ErrorIs(t, m.Send([]byte("x")), source.ErrNotConnected)

	l, err := m.Start(source.Config{Kind: source.KindSerial, Serial: source.SerialConfig{Port: "/dev/ttyACM0"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return l.State() == Running }, time.Second, time.Millisecond)

	require.NoError(t, m.Send([]byte("PING\n")))
	require.Eventually(t, func() bool { return string(port.Written()) == "PING\n" }, time.Second, time.Millisecond)

	m.StartSource(&scriptedSource{})
	assert.ErrorIs(t, m.Send([]byte("x")), source.ErrNotConnected)
	assert.True(t, port.Closed())
}

func TestManagerRejectsUnknownKind(t *testing.T) {
	m := NewManager(buffer.NewFanOut(0, 0, 0, nil), nil, source.Deps{})
	_, err := m.Start(source.Config{Kind: "carrier-pigeon"})
	assert.Error(t, err)
	assert.Nil(t, m.Current())
}
