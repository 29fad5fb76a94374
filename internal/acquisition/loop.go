// Package acquisition runs the read-decode-publish loop over a data source
// and makes sure only one loop runs at a time.
package acquisition

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/signal.recorder/internal/buffer"
	"github.com/banshee-data/signal.recorder/internal/events"
	"github.com/banshee-data/signal.recorder/internal/monitoring"
	"github.com/banshee-data/signal.recorder/internal/protocol"
	"github.com/banshee-data/signal.recorder/internal/source"
)

var logf = monitoring.Component("acquisition")

// State is the lifecycle stage of a Loop.
type State int32

const (
	NotStarted State = iota
	SettingUp
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case SettingUp:
		return "setting-up"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Stats counts what a loop has processed.
type Stats struct {
	BytesRead       uint64 `json:"bytes_read"`
	Packets         uint64 `json:"packets"`
	ChecksumErrors  uint64 `json:"checksum_errors"`
	DiagnosticBytes uint64 `json:"diagnostic_bytes"`
}

// Loop owns one source for one acquisition session. Frames are pushed into
// every buffer in decode order and announced through the notifier.
type Loop struct {
	src     source.Source
	buffers *buffer.FanOut
	notify  events.Notifier
	decoder *protocol.Decoder

	state   atomic.Int32
	stop    atomic.Bool
	started atomic.Bool
	done    chan struct{}

	errMu sync.Mutex
	err   error

	bytesRead       atomic.Uint64
	packets         atomic.Uint64
	checksumErrors  atomic.Uint64
	diagnosticBytes atomic.Uint64
}

// NewLoop creates a loop over src. A nil notifier discards notifications.
func NewLoop(src source.Source, buffers *buffer.FanOut, notify events.Notifier) *Loop {
	if notify == nil {
		notify = events.Discard{}
	}
	return &Loop{
		src:     src,
		buffers: buffers,
		notify:  notify,
		decoder: protocol.NewDecoder(),
		done:    make(chan struct{}),
	}
}

// Start runs the loop on its own goroutine. Calling Start twice has no
// effect.
func (l *Loop) Start() {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	go l.run()
}

// Stop asks the loop to exit after its current read.
func (l *Loop) Stop() {
	l.stop.Store(true)
}

// Wait blocks until the loop has exited and returns the error that ended it,
// if any. Wait must only be called after Start.
func (l *Loop) Wait() error {
	<-l.done
	return l.Err()
}

// Done is closed when the loop has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

// State returns the current lifecycle stage.
func (l *Loop) State() State { return State(l.state.Load()) }

// Err returns the setup or read error that ended the loop.
func (l *Loop) Err() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	return l.err
}

// Source returns the source the loop reads from.
func (l *Loop) Source() source.Source { return l.src }

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		BytesRead:       l.bytesRead.Load(),
		Packets:         l.packets.Load(),
		ChecksumErrors:  l.checksumErrors.Load(),
		DiagnosticBytes: l.diagnosticBytes.Load(),
	}
}

func (l *Loop) setErr(err error) {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	l.err = err
}

func (l *Loop) run() {
	defer close(l.done)
	defer l.state.Store(int32(Stopped))
	defer func() {
		if err := l.src.Close(); err != nil {
			logf("close %s: %v", l.src.Describe(), err)
		}
	}()

	l.state.Store(int32(SettingUp))
	if err := l.src.Setup(); err != nil {
		l.setErr(err)
		logf("setup failed for %s: %v", l.src.Describe(), err)
		l.notify.Status(fmt.Sprintf("setup failed: %v", err))
		return
	}
	logf("setup successful for %s", l.src.Describe())
	l.notify.Status("setup successful")

	l.state.Store(int32(Running))
	for !l.stop.Load() {
		data, err := l.src.ReadData()
		if err != nil {
			l.setErr(err)
			logf("read from %s failed, stopping: %v", l.src.Describe(), err)
			l.notify.Status(fmt.Sprintf("read failed: %v", err))
			break
		}
		if len(data) == 0 {
			continue
		}
		l.process(data)
	}
	l.state.Store(int32(Stopping))
}

func (l *Loop) process(data []byte) {
	l.bytesRead.Add(uint64(len(data)))
	batch := l.decoder.Feed(data)

	for _, f := range batch.Frames {
		l.buffers.Push(f)
		l.notify.Frame(f)
	}
	l.packets.Add(uint64(len(batch.Frames)))
	l.checksumErrors.Add(uint64(batch.ChecksumErrors))
	l.diagnosticBytes.Add(uint64(batch.DiagnosticBytes))

	if batch.Text != "" {
		l.notify.Diagnostic(batch.Text)
	}
}
