// Package events fans notifications out to any number of subscribers
// without letting a slow subscriber stall the acquisition loop.
package events

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/signal.recorder/internal/frame"
)

// ErrHubClosed is returned when subscribing to a closed hub.
var ErrHubClosed = errors.New("events: hub closed")

// Kind identifies the notification type.
type Kind string

const (
	KindFrame         Kind = "frame"
	KindDiagnostic    Kind = "diagnostic"
	KindStatus        Kind = "status"
	KindRecordingFile Kind = "recording-file"
)

// Event is a single notification. Frame is set for KindFrame; Text carries
// the diagnostic line, status message or recording file name otherwise.
type Event struct {
	Kind  Kind
	Time  time.Time
	Frame frame.Frame
	Text  string
}

// DefaultSubscriberBuffer is used when Subscribe is called with a
// non-positive buffer size.
const DefaultSubscriberBuffer = 256

type subscriber struct {
	ch      chan Event
	dropped uint64
}

// Hub delivers published events to every subscriber. Delivery never blocks:
// an event that does not fit in a subscriber's buffer is dropped and counted.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]*subscriber
	closed      bool
	now         func() time.Time
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]*subscriber),
		now:         time.Now,
	}
}

// Subscribe registers a new subscriber and returns its id and receive
// channel. The channel is closed on Unsubscribe or Close.
func (h *Hub) Subscribe(buffer int) (string, <-chan Event, error) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", nil, ErrHubClosed
	}

	id := uuid.NewString()
	sub := &subscriber{ch: make(chan Event, buffer)}
	h.subscribers[id] = sub
	return id, sub.ch, nil
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[id]; ok {
		close(sub.ch)
		delete(h.subscribers, id)
	}
}

// Publish delivers ev to every subscriber. A zero Time is filled in.
func (h *Hub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = h.now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for _, sub := range h.subscribers {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped++
		}
	}
}

// Frame publishes a new-frame notification.
func (h *Hub) Frame(f frame.Frame) {
	h.Publish(Event{Kind: KindFrame, Frame: f})
}

// Diagnostic publishes a line of non-protocol text.
func (h *Hub) Diagnostic(text string) {
	h.Publish(Event{Kind: KindDiagnostic, Text: text})
}

// Status publishes a connection or lifecycle message.
func (h *Hub) Status(text string) {
	h.Publish(Event{Kind: KindStatus, Text: text})
}

// RecordingFile publishes the name of a newly opened recording segment.
func (h *Hub) RecordingFile(name string) {
	h.Publish(Event{Kind: KindRecordingFile, Text: name})
}

// Dropped returns how many events were dropped for subscriber id.
func (h *Hub) Dropped(id string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[id]; ok {
		return sub.dropped
	}
	return 0
}

// Subscribers returns the number of active subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscribers {
		close(sub.ch)
		delete(h.subscribers, id)
	}
}

// Notifier is the publishing side of the hub used by the acquisition loop
// and recorder.
type Notifier interface {
	Frame(f frame.Frame)
	Diagnostic(text string)
	Status(text string)
	RecordingFile(name string)
}

// Discard is a Notifier that drops everything.
type Discard struct{}

func (Discard) Frame(frame.Frame)    {}
func (Discard) Diagnostic(string)    {}
func (Discard) Status(string)        {}
func (Discard) RecordingFile(string) {}
