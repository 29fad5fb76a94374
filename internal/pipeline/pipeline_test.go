package pipeline

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/signal.recorder/internal/acquisition"
	"github.com/banshee-data/signal.recorder/internal/config"
	"github.com/banshee-data/signal.recorder/internal/events"
	"github.com/banshee-data/signal.recorder/internal/fsutil"
	"github.com/banshee-data/signal.recorder/internal/quality"
	"github.com/banshee-data/signal.recorder/internal/recording"
	"github.com/banshee-data/signal.recorder/internal/security"
	"github.com/banshee-data/signal.recorder/internal/serialport"
	"github.com/banshee-data/signal.recorder/internal/source"
)

func ptr[T any](v T) *T { return &v }

func fakeSine(channels int) source.Config {
	return source.Config{
		Kind: source.KindFake,
		Fake: source.FakeConfig{Waveform: "sine", Min: -10, Max: 10, Frequency: 1000, Channels: channels},
	}
}

func newPipeline(t *testing.T, opts Options) *Pipeline {
	t.Helper()
	p, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Options{Config: &config.Config{DisplayBufferSize: ptr(-1)}})
	assert.Error(t, err)
}

func TestFetchBufferFromFakeSource(t *testing.T) {
	p := newPipeline(t, Options{})

	require.NoError(t, p.StartAcquisition(fakeSine(2)))

	var got int
	require.Eventually(t, func() bool {
		for _, f := range p.FetchBuffer() {
			assert.InDelta(t, 0, f[0], 10)
			assert.InDelta(t, 0, f[1], 10)
			assert.Zero(t, f[7])
			got++
		}
		return got > 0
	}, time.Second, time.Millisecond)

	assert.Equal(t, acquisition.Running, p.AcquisitionState())
	assert.NotZero(t, p.Stats().Packets)

	p.StopAcquisition()
	assert.Equal(t, acquisition.NotStarted, p.AcquisitionState())
}

func TestFetchQualityDefaultsToGood(t *testing.T) {
	p := newPipeline(t, Options{})
	assert.Equal(t, quality.AllGood(), p.FetchQuality())

	require.NoError(t, p.StartAcquisition(fakeSine(8)))
	require.Eventually(t, func() bool {
		return p.Stats().Packets >= 20
	}, 2*time.Second, time.Millisecond)

	// A +-10 sine is far inside the device thresholds.
	assert.Equal(t, quality.AllGood(), p.FetchQuality())
}

func TestSubscribeReceivesStatusAndFrames(t *testing.T) {
	p := newPipeline(t, Options{})
	id, ch, err := p.Subscribe(1024)
	require.NoError(t, err)
	defer p.Unsubscribe(id)

	require.NoError(t, p.StartAcquisition(fakeSine(1)))

	var sawStatus, sawFrame bool
	deadline := time.After(2 * time.Second)
	for !(sawStatus && sawFrame) {
		select {
		case ev := <-ch:
			switch ev.Kind {
			case events.KindStatus:
				sawStatus = sawStatus || ev.Text == "setup successful"
			case events.KindFrame:
				sawFrame = true
			}
		case <-deadline:
			t.Fatalf("status=%v frame=%v before deadline", sawStatus, sawFrame)
		}
	}
}

func TestSetupFailureReportedAsStatus(t *testing.T) {
	opener := serialport.NewMockOpener(nil)
	opener.Err = assert.AnError
	p := newPipeline(t, Options{Opener: opener.Open})
	id, ch, err := p.Subscribe(16)
	require.NoError(t, err)
	defer p.Unsubscribe(id)

	require.NoError(t, p.StartAcquisition(source.Config{Kind: source.KindSerial, Serial: source.SerialConfig{Port: "/dev/null0"}}))

	select {
	case ev := <-ch:
		assert.Equal(t, events.KindStatus, ev.Kind)
		assert.True(t, strings.HasPrefix(ev.Text, "setup failed"), ev.Text)
	case <-time.After(time.Second):
		t.Fatal("no status event")
	}
}

func TestSendMessage(t *testing.T) {
	port := serialport.NewTestablePort()
	opener := serialport.NewMockOpener(port)
	p := newPipeline(t, Options{Opener: opener.Open})

	assert.ErrorIs(t, p.SendMessage([]byte("x")), source.ErrNotConnected)

	require.NoError(t, p.StartAcquisition(source.Config{Kind: source.KindSerial, Serial: source.SerialConfig{Port: "/dev/ttyUSB0"}}))
	require.Eventually(t, func() bool { return p.AcquisitionState() == acquisition.Running }, time.Second, time.Millisecond)

	require.NoError(t, p.SendMessage([]byte("START\n")))
	require.Eventually(t, func() bool { return string(port.Written()) == "START\n" }, time.Second, time.Millisecond)
}

func TestRecordingWithCatalog(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	cfg := &config.Config{
		CatalogPath:        ptr(filepath.Join(t.TempDir(), "catalog.db")),
		RecordingDirectory: ptr("runs"),
		RecordingIdleSleep: ptr("1ms"),
	}
	p := newPipeline(t, Options{Config: cfg, FS: fs})

	_, err := p.Sessions()
	require.NoError(t, err)

	name, err := p.StartConfiguredRecording()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, recording.FilePrefix))

	require.NoError(t, p.StartAcquisition(fakeSine(3)))
	require.Eventually(t, func() bool {
		return p.RecordingStatus().FramesWritten >= 5
	}, 2*time.Second, time.Millisecond)

	status := p.RecordingStatus()
	assert.True(t, status.Active)
	assert.Equal(t, name, status.Filename)

	p.StopAcquisition()
	require.NoError(t, p.StopRecording())
	assert.False(t, p.RecordingStatus().Active)

	path := filepath.Join("runs", name)
	data, err := fs.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, strings.Join(recording.CSVHeader(), ","), lines[0])
	assert.GreaterOrEqual(t, len(lines), 6)

	info, err := p.FileStats(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), info.Size)
	assert.Equal(t, recording.FormatCSV, info.Format)

	_, err = p.FileStats(filepath.Join("runs", "..", "catalog.db"))
	assert.ErrorIs(t, err, security.ErrOutsideDirectory)

	sessions, err := p.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, status.SessionID, sessions[0].ID)
	assert.Equal(t, uint64(len(lines)-1), sessions[0].Frames)

	segments, err := p.Segments(status.SessionID)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, path, segments[0].Path)
}

func TestCatalogDisabled(t *testing.T) {
	p := newPipeline(t, Options{})
	_, err := p.Sessions()
	assert.ErrorIs(t, err, ErrCatalogDisabled)
	_, err = p.Segments("x")
	assert.ErrorIs(t, err, ErrCatalogDisabled)
}

func TestCloseFlushesRecording(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	p, err := New(Options{FS: fs})
	require.NoError(t, err)

	name, err := p.StartRecording("json", "out", time.Hour)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	data, err := fs.ReadFile(filepath.Join("out", name))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}
