package acquisition

import (
	"sync"

	"github.com/banshee-data/signal.recorder/internal/buffer"
	"github.com/banshee-data/signal.recorder/internal/events"
	"github.com/banshee-data/signal.recorder/internal/source"
)

// Sender is implemented by sources that accept outbound messages.
type Sender interface {
	Send(msg []byte) error
}

// Manager keeps at most one Loop running. Starting a new loop stops and
// joins the previous one first.
type Manager struct {
	buffers *buffer.FanOut
	notify  events.Notifier
	deps    source.Deps

	mu      sync.Mutex
	current *Loop
}

// NewManager creates a manager publishing into buffers. Source status
// messages go to notify unless deps.Status is set.
func NewManager(buffers *buffer.FanOut, notify events.Notifier, deps source.Deps) *Manager {
	if notify == nil {
		notify = events.Discard{}
	}
	if deps.Status == nil {
		deps.Status = notify.Status
	}
	return &Manager{buffers: buffers, notify: notify, deps: deps}
}

// Start builds the source described by cfg and runs it, replacing any
// running loop. It returns once the previous loop has exited and the new
// one has been launched; setup of the new source happens on the loop
// goroutine.
func (m *Manager) Start(cfg source.Config) (*Loop, error) {
	src, err := source.New(cfg, m.deps)
	if err != nil {
		return nil, err
	}
	return m.StartSource(src), nil
}

// StartSource runs src, replacing any running loop.
func (m *Manager) StartSource(src source.Source) *Loop {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	l := NewLoop(src, m.buffers, m.notify)
	m.current = l
	l.Start()
	logf("started %s", src.Describe())
	return l
}

// Stop stops the running loop, if any, and waits for it to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	if m.current == nil {
		return
	}
	m.current.Stop()
	m.current.Wait()
	logf("stopped %s", m.current.src.Describe())
	m.current = nil
}

// Current returns the active loop, or nil.
func (m *Manager) Current() *Loop {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// State returns the active loop state, or NotStarted when there is none.
func (m *Manager) State() State {
	if l := m.Current(); l != nil {
		return l.State()
	}
	return NotStarted
}

// Stats returns the counters of the active loop.
func (m *Manager) Stats() Stats {
	if l := m.Current(); l != nil {
		return l.Stats()
	}
	return Stats{}
}

// Send queues msg on the active source. It returns source.ErrNotConnected
// when no running source accepts outbound messages.
func (m *Manager) Send(msg []byte) error {
	l := m.Current()
	if l == nil {
		return source.ErrNotConnected
	}
	sender, ok := l.src.(Sender)
	if !ok {
		return source.ErrNotConnected
	}
	return sender.Send(msg)
}
