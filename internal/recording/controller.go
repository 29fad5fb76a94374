// Package recording persists the recording buffer to disk as a sequence of
// time-rotated segment files.
package recording

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/signal.recorder/internal/buffer"
	"github.com/banshee-data/signal.recorder/internal/events"
	"github.com/banshee-data/signal.recorder/internal/frame"
	"github.com/banshee-data/signal.recorder/internal/fsutil"
	"github.com/banshee-data/signal.recorder/internal/monitoring"
	"github.com/banshee-data/signal.recorder/internal/timeutil"
)

var logf = monitoring.Component("recording")

var (
	// ErrAlreadyRecording is returned by Start while a session is active.
	ErrAlreadyRecording = errors.New("recording already active")
	// ErrNotRecording is returned by Stop when no session is active.
	ErrNotRecording = errors.New("recording not active")
)

// DefaultIdleSleep is how long the controller waits when the buffer is
// empty.
const DefaultIdleSleep = 10 * time.Millisecond

// FilePrefix starts every segment file name.
const FilePrefix = "serial_recording_"

// Catalog is told about every segment the controller opens and closes.
type Catalog interface {
	SegmentOpened(seg Segment) error
	SegmentClosed(seg Segment) error
}

// Segment describes one output file of a session.
type Segment struct {
	SessionID string
	Path      string
	Format    Format
	Started   time.Time
	Ended     time.Time // zero while open
	Frames    uint64
	Bytes     int64
}

// Options holds the controller collaborators. Zero values select the real
// filesystem, the wall clock and no notifications. Clock drives segment
// timestamps and rotation deadlines; the idle wait between empty drains is
// always real time.
type Options struct {
	FS        fsutil.FileSystem
	Clock     timeutil.Clock
	Notify    events.Notifier
	Catalog   Catalog
	IdleSleep time.Duration
}

// Status is a snapshot of the controller state.
type Status struct {
	Active         bool          `json:"active"`
	SessionID      string        `json:"session_id,omitempty"`
	Filename       string        `json:"filename,omitempty"`
	Path           string        `json:"path,omitempty"`
	Format         Format        `json:"format,omitempty"`
	Directory      string        `json:"directory,omitempty"`
	MaxSegment     time.Duration `json:"max_segment"`
	SessionStarted time.Time     `json:"session_started"`
	SegmentStarted time.Time     `json:"segment_started"`
	Segments       int           `json:"segments"`
	FramesWritten  uint64        `json:"frames_written"`
	WriteErrors    uint64        `json:"write_errors"`
}

// Controller drains the recording buffer into segment files. Only the
// controller goroutine touches the active writer.
type Controller struct {
	buf  *buffer.Recording
	opts Options

	mu      sync.Mutex
	session *session
}

type session struct {
	id         string
	format     Format
	dir        string
	maxSegment time.Duration
	started    time.Time

	stop atomic.Bool
	done chan struct{}

	// Owned by the controller goroutine once it starts.
	writer     Writer
	rotateFrom time.Time

	mu          sync.Mutex
	segment     Segment
	segments    int
	frames      uint64
	writeErrors uint64
}

// NewController creates a controller draining buf.
func NewController(buf *buffer.Recording, opts Options) *Controller {
	if opts.FS == nil {
		opts.FS = fsutil.OSFileSystem{}
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Notify == nil {
		opts.Notify = events.Discard{}
	}
	if opts.IdleSleep <= 0 {
		opts.IdleSleep = DefaultIdleSleep
	}
	return &Controller{buf: buf, opts: opts}
}

// Start opens the first segment in dir and begins recording. It returns the
// segment file name. maxSegment <= 0 disables rotation.
func (c *Controller) Start(format, dir string, maxSegment time.Duration) (string, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return "", ErrAlreadyRecording
	}

	if err := c.opts.FS.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create recording directory %s: %w", dir, err)
	}

	s := &session{
		id:         uuid.NewString(),
		format:     f,
		dir:        dir,
		maxSegment: maxSegment,
		started:    c.opts.Clock.Now(),
		done:       make(chan struct{}),
	}
	if err := c.openSegment(s); err != nil {
		return "", err
	}

	c.session = s
	c.buf.SetActive(true)
	go c.run(s)

	name := filepath.Base(s.segment.Path)
	logf("session %s started: %s (%s, rotate every %v)", s.id, name, f, maxSegment)
	return name, nil
}

// Stop ends the session. Frames already buffered are written before the
// current segment is finalized.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s == nil {
		return ErrNotRecording
	}
	c.buf.SetActive(false)
	s.stop.Store(true)
	<-s.done
	c.session = nil

	logf("session %s stopped after %d segment(s), %d frame(s)", s.id, s.segments, s.frames)
	return nil
}

// Active reports whether a session is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Status returns a snapshot of the current session.
func (c *Controller) Status() Status {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return Status{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Active:         true,
		SessionID:      s.id,
		Filename:       filepath.Base(s.segment.Path),
		Path:           s.segment.Path,
		Format:         s.format,
		Directory:      s.dir,
		MaxSegment:     s.maxSegment,
		SessionStarted: s.started,
		SegmentStarted: s.segment.Started,
		Segments:       s.segments,
		FramesWritten:  s.frames,
		WriteErrors:    s.writeErrors,
	}
}

func (c *Controller) run(s *session) {
	defer close(s.done)

	for {
		if s.stop.Load() {
			// The buffer gate is already closed; flush what is left.
			if batch := c.buf.Drain(); len(batch) > 0 {
				c.write(s, batch)
			}
			c.closeSegment(s)
			return
		}

		if s.maxSegment > 0 && c.opts.Clock.Since(s.rotateFrom) >= s.maxSegment {
			c.rotate(s)
			continue
		}

		batch := c.buf.Drain()
		if len(batch) == 0 {
			time.Sleep(c.opts.IdleSleep)
			continue
		}
		c.write(s, batch)
	}
}

func (c *Controller) write(s *session, batch []frame.Timestamped) {
	if err := s.writer.WriteBatch(batch); err != nil {
		logf("write error on %s, dropping %d frame(s): %v", s.segment.Path, len(batch), err)
		s.mu.Lock()
		s.writeErrors++
		s.mu.Unlock()
		return
	}
	s.mu.Lock()
	s.frames += uint64(len(batch))
	s.segment.Frames += uint64(len(batch))
	s.mu.Unlock()
}

// rotate opens the next segment before closing the current one so a failed
// open leaves recording on the current file.
func (c *Controller) rotate(s *session) {
	prevWriter := s.writer
	s.mu.Lock()
	prev := s.segment
	s.mu.Unlock()

	if err := c.openSegment(s); err != nil {
		logf("segment rotation failed, continuing in %s: %v", prev.Path, err)
		s.rotateFrom = c.opts.Clock.Now()
		return
	}
	c.finishSegment(s, prev, prevWriter)

	name := filepath.Base(s.currentPath())
	logf("rotated to %s", name)
	c.opts.Notify.RecordingFile(name)
}

func (c *Controller) closeSegment(s *session) {
	s.mu.Lock()
	seg := s.segment
	s.mu.Unlock()
	c.finishSegment(s, seg, s.writer)
}

func (c *Controller) finishSegment(s *session, seg Segment, w Writer) {
	if err := w.Finalize(); err != nil {
		logf("finalize %s: %v", seg.Path, err)
	}
	seg.Ended = c.opts.Clock.Now()
	if info, err := c.opts.FS.Stat(seg.Path); err == nil {
		seg.Bytes = info.Size()
	}
	if c.opts.Catalog != nil {
		if err := c.opts.Catalog.SegmentClosed(seg); err != nil {
			logf("catalog close %s: %v", seg.Path, err)
		}
	}
}

// openSegment creates a new segment file and makes it current.
func (c *Controller) openSegment(s *session) error {
	now := c.opts.Clock.Now()
	path := c.segmentPath(s.dir, s.format, now)

	out, err := c.opts.FS.Create(path)
	if err != nil {
		return fmt.Errorf("create recording file: %w", err)
	}
	w, err := NewWriter(s.format, out)
	if err != nil {
		out.Close()
		return err
	}

	seg := Segment{SessionID: s.id, Path: path, Format: s.format, Started: now}
	s.writer = w
	s.rotateFrom = now
	s.mu.Lock()
	s.segment = seg
	s.segments++
	s.mu.Unlock()

	if c.opts.Catalog != nil {
		if err := c.opts.Catalog.SegmentOpened(seg); err != nil {
			logf("catalog open %s: %v", path, err)
		}
	}
	return nil
}

// segmentPath names a segment after the millisecond timestamp, adding a
// numeric suffix if that name is already taken.
func (c *Controller) segmentPath(dir string, f Format, now time.Time) string {
	base := fmt.Sprintf("%s%d", FilePrefix, now.UnixMilli())
	path := filepath.Join(dir, base+f.Extension())
	for i := 1; c.opts.FS.Exists(path); i++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, f.Extension()))
	}
	return path
}

func (s *session) currentPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.segment.Path
}
