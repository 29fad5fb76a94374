// Package pipeline wires the acquisition loop, fan-out buffers, quality
// monitor and recording controller together behind the small set of
// operations a front end calls.
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/signal.recorder/internal/acquisition"
	"github.com/banshee-data/signal.recorder/internal/buffer"
	"github.com/banshee-data/signal.recorder/internal/catalog"
	"github.com/banshee-data/signal.recorder/internal/config"
	"github.com/banshee-data/signal.recorder/internal/events"
	"github.com/banshee-data/signal.recorder/internal/frame"
	"github.com/banshee-data/signal.recorder/internal/fsutil"
	"github.com/banshee-data/signal.recorder/internal/monitoring"
	"github.com/banshee-data/signal.recorder/internal/quality"
	"github.com/banshee-data/signal.recorder/internal/recording"
	"github.com/banshee-data/signal.recorder/internal/security"
	"github.com/banshee-data/signal.recorder/internal/serialport"
	"github.com/banshee-data/signal.recorder/internal/source"
	"github.com/banshee-data/signal.recorder/internal/timeutil"
)

var logf = monitoring.Component("pipeline")

// ErrCatalogDisabled is returned by the catalog queries when no catalog
// path is configured.
var ErrCatalogDisabled = errors.New("pipeline: recording catalog disabled")

// Options carries the configuration and the optional collaborators. Zero
// values select the real implementations.
type Options struct {
	Config *config.Config
	Clock  timeutil.Clock
	FS     fsutil.FileSystem
	Opener serialport.Opener
}

// Pipeline owns every long-lived component of the recorder.
type Pipeline struct {
	cfg     *config.Config
	fs      fsutil.FileSystem
	hub     *events.Hub
	buffers *buffer.FanOut
	quality *quality.Monitor
	acq     *acquisition.Manager
	rec     *recording.Controller
	catalog *catalog.Catalog
}

// New builds a pipeline. Nothing runs until StartAcquisition.
func New(opts Options) (*Pipeline, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Empty()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	fs := opts.FS
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}

	p := &Pipeline{cfg: cfg, fs: fs, hub: events.NewHub()}
	p.buffers = buffer.NewFanOut(
		cfg.GetDisplayBufferSize(),
		cfg.GetQualityBufferSize(),
		cfg.GetRecordingBufferSize(),
		clock,
	)
	p.quality = quality.NewMonitor(p.buffers.Quality, cfg.GetQualityThresholds())
	p.acq = acquisition.NewManager(p.buffers, p.hub, source.Deps{Opener: opts.Opener, Clock: clock})

	recOpts := recording.Options{
		FS:        fs,
		Clock:     clock,
		Notify:    p.hub,
		IdleSleep: cfg.GetRecordingIdleSleep(),
	}
	if path := cfg.GetCatalogPath(); path != "" {
		cat, err := catalog.Open(path)
		if err != nil {
			p.hub.Close()
			return nil, err
		}
		p.catalog = cat
		recOpts.Catalog = cat
	}
	p.rec = recording.NewController(p.buffers.Recording, recOpts)
	return p, nil
}

// Config returns the configuration the pipeline was built with.
func (p *Pipeline) Config() *config.Config { return p.cfg }

// StartAcquisition replaces any running source with the one described by
// cfg. Setup happens asynchronously; its outcome arrives as a status event.
func (p *Pipeline) StartAcquisition(cfg source.Config) error {
	_, err := p.acq.Start(cfg)
	return err
}

// StartConfiguredAcquisition starts the source from the configuration file.
func (p *Pipeline) StartConfiguredAcquisition() error {
	return p.StartAcquisition(p.cfg.GetSource())
}

// StopAcquisition stops the running source and waits for its loop to exit.
func (p *Pipeline) StopAcquisition() {
	p.acq.Stop()
}

// AcquisitionState reports the state of the current loop.
func (p *Pipeline) AcquisitionState() acquisition.State {
	return p.acq.State()
}

// Stats returns the decoder counters of the current loop.
func (p *Pipeline) Stats() acquisition.Stats {
	return p.acq.Stats()
}

// FetchBuffer returns and clears the frames collected for display.
func (p *Pipeline) FetchBuffer() []frame.Frame {
	return p.buffers.Display.Drain()
}

// FetchQuality recomputes the per-channel quality flags.
func (p *Pipeline) FetchQuality() quality.Flags {
	return p.quality.Check()
}

// StartRecording starts a session and returns the first file name.
func (p *Pipeline) StartRecording(format, dir string, maxSegment time.Duration) (string, error) {
	return p.rec.Start(format, dir, maxSegment)
}

// StartConfiguredRecording starts a session using the configured format,
// directory and segment duration.
func (p *Pipeline) StartConfiguredRecording() (string, error) {
	return p.StartRecording(p.cfg.GetRecordingFormat(), p.cfg.GetRecordingDirectory(), p.cfg.GetSegmentDuration())
}

// StopRecording ends the current session.
func (p *Pipeline) StopRecording() error {
	return p.rec.Stop()
}

// RecordingStatus describes the current session.
func (p *Pipeline) RecordingStatus() recording.Status {
	return p.rec.Status()
}

// SendMessage queues msg on the active serial source.
func (p *Pipeline) SendMessage(msg []byte) error {
	return p.acq.Send(msg)
}

// Subscribe registers for notifications.
func (p *Pipeline) Subscribe(buffer int) (string, <-chan events.Event, error) {
	return p.hub.Subscribe(buffer)
}

// Unsubscribe removes a subscriber and closes its channel.
func (p *Pipeline) Unsubscribe(id string) {
	p.hub.Unsubscribe(id)
}

// ListSerialPorts returns the serial ports present on the system.
func (p *Pipeline) ListSerialPorts() ([]string, error) {
	return source.ListSerialPorts()
}

// FileStats returns size and modification time of a recorded file. The
// path must lie in the configured recording directory or the directory of
// the active session.
func (p *Pipeline) FileStats(path string) (recording.FileInfo, error) {
	if err := security.WithinAnyDirectory(path, p.cfg.GetRecordingDirectory(), p.rec.Status().Directory); err != nil {
		return recording.FileInfo{}, err
	}
	return recording.SegmentInfo(p.fs, path)
}

// Sessions lists recorded sessions, newest first.
func (p *Pipeline) Sessions() ([]catalog.Session, error) {
	if p.catalog == nil {
		return nil, ErrCatalogDisabled
	}
	return p.catalog.ListSessions()
}

// Segments lists the files of one session in recording order.
func (p *Pipeline) Segments(sessionID string) ([]recording.Segment, error) {
	if p.catalog == nil {
		return nil, ErrCatalogDisabled
	}
	return p.catalog.ListSegments(sessionID)
}

// Close stops recording and acquisition, then releases the hub and catalog.
// Recording stops first so buffered frames are flushed.
func (p *Pipeline) Close() error {
	if p.rec.Active() {
		if err := p.rec.Stop(); err != nil {
			logf("stop recording: %v", err)
		}
	}
	p.acq.Stop()
	p.hub.Close()
	if p.catalog != nil {
		return p.catalog.Close()
	}
	return nil
}
