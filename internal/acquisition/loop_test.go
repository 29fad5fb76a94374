package acquisition

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/signal.recorder/internal/buffer"
	"github.com/banshee-data/signal.recorder/internal/events"
	"github.com/banshee-data/signal.recorder/internal/frame"
	"github.com/banshee-data/signal.recorder/internal/protocol"
	"github.com/banshee-data/signal.recorder/internal/source"
)

// scriptedSource replays chunks, then returns empty reads or finalErr.
type scriptedSource struct {
	mu       sync.Mutex
	chunks   [][]byte
	setupErr error
	finalErr error
	closes   int
}

func (s *scriptedSource) Setup() error { return s.setupErr }

func (s *scriptedSource) ReadData() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.chunks) == 0 {
		if s.finalErr != nil {
			return nil, s.finalErr
		}
		time.Sleep(time.Millisecond)
		return nil, nil
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *scriptedSource) Describe() string { return "scripted" }

func (s *scriptedSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type recordedNotifier struct {
	mu          sync.Mutex
	frames      []frame.Frame
	diagnostics []string
	statuses    []string
	files       []string
}

func (n *recordedNotifier) Frame(f frame.Frame) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.frames = append(n.frames, f)
}

func (n *recordedNotifier) Diagnostic(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.diagnostics = append(n.diagnostics, text)
}

func (n *recordedNotifier) Status(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, text)
}

func (n *recordedNotifier) RecordingFile(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.files = append(n.files, name)
}

type notes struct {
	frames      []frame.Frame
	diagnostics []string
	statuses    []string
}

func (n *recordedNotifier) snapshot() notes {
	n.mu.Lock()
	defer n.mu.Unlock()
	return notes{
		frames:      append([]frame.Frame(nil), n.frames...),
		diagnostics: append([]string(nil), n.diagnostics...),
		statuses:    append([]string(nil), n.statuses...),
	}
}

func packet(vals ...int32) []byte {
	var raw [frame.NumChannels]int32
	copy(raw[:], vals)
	return protocol.Encode(raw)
}

func TestLoopPublishesInOrder(t *testing.T) {
	stream := append([]byte("hi"), packet(1)...)
	stream = append(stream, packet(2)...)
	stream = append(stream, packet(3)...)
	// Split mid-packet to exercise the accumulation buffer.
	src := &scriptedSource{chunks: [][]byte{stream[:20], stream[20:61], stream[61:]}}
	buffers := buffer.NewFanOut(10, 10, 10, nil)
	buffers.Recording.SetActive(true)
	notify := &recordedNotifier{}

	l := NewLoop(src, buffers, notify)
	assert.Equal(t, NotStarted, l.State())
	l.Start()

	require.Eventually(t, func() bool { return buffers.Display.Len() == 3 }, time.Second, time.Millisecond)
	l.Stop()
	require.NoError(t, l.Wait())
	assert.Equal(t, Stopped, l.State())
	assert.Equal(t, 1, src.closeCount())

	want := []frame.Frame{
		{protocol.ToPhysical(1)},
		{protocol.ToPhysical(2)},
		{protocol.ToPhysical(3)},
	}
	assert.Equal(t, want, buffers.Display.Drain())
	assert.Equal(t, want, buffers.Quality.Snapshot())
	rec := buffers.Recording.Drain()
	require.Len(t, rec, 3)
	assert.Equal(t, want[2], rec[2].Frame)

	got := notify.snapshot()
	assert.Equal(t, want, got.frames)
	assert.Equal(t, []string{"hi"}, got.diagnostics)
	assert.Equal(t, []string{"setup successful"}, got.statuses)

	stats := l.Stats()
	assert.Equal(t, uint64(len(stream)), stats.BytesRead)
	assert.Equal(t, uint64(3), stats.Packets)
	assert.Equal(t, uint64(2), stats.DiagnosticBytes)
	assert.Zero(t, stats.ChecksumErrors)
}

func TestLoopCountsChecksumErrors(t *testing.T) {
	bad := packet(5)
	bad[10] ^= 0xFF
	src := &scriptedSource{chunks: [][]byte{append(bad, packet(6)...)}}
	buffers := buffer.NewFanOut(10, 10, 10, nil)

	l := NewLoop(src, buffers, nil)
	l.Start()
	require.Eventually(t, func() bool { return l.Stats().Packets == 1 }, time.Second, time.Millisecond)
	l.Stop()
	l.Wait()

	assert.Equal(t, uint64(1), l.Stats().ChecksumErrors)
	assert.Equal(t, []frame.Frame{{protocol.ToPhysical(6)}}, buffers.Display.Drain())
}

func TestLoopSetupFailure(t *testing.T) {
	src := &scriptedSource{setupErr: errors.New("port busy")}
	notify := &recordedNotifier{}
	l := NewLoop(src, buffer.NewFanOut(10, 10, 10, nil), notify)

	l.Start()
	err := l.Wait()
	assert.ErrorContains(t, err, "port busy")
	assert.Equal(t, Stopped, l.State())
	assert.Equal(t, 1, src.closeCount())

	got := notify.snapshot()
	require.Len(t, got.statuses, 1)
	assert.Contains(t, got.statuses[0], "setup failed")
}

func TestLoopExitsOnFatalRead(t *testing.T) {
	src := &scriptedSource{chunks: [][]byte{packet(1)}, finalErr: errors.New("broken pipe")}
	buffers := buffer.NewFanOut(10, 10, 10, nil)
	l := NewLoop(src, buffers, nil)

	l.Start()
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not exit on fatal read error")
	}
	assert.ErrorContains(t, l.Err(), "broken pipe")
	assert.Equal(t, 1, buffers.Display.Len())
	assert.Equal(t, 1, src.closeCount())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "state(42)", State(42).String())
}

var _ source.Source = (*scriptedSource)(nil)
var _ events.Notifier = (*recordedNotifier)(nil)
