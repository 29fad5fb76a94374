package buffer

import (
	"sync"

	"github.com/banshee-data/signal.recorder/internal/frame"
	"github.com/banshee-data/signal.recorder/internal/timeutil"
)

// Recording buffers frames for the recorder. Frames are stamped with the
// capture time on insertion and are only accepted while the buffer is
// active; pushes while inactive are dropped.
type Recording struct {
	mu     sync.Mutex
	ring   *Ring[frame.Timestamped]
	clock  timeutil.Clock
	active bool
}

// NewRecording creates a recording buffer with the given capacity. A nil
// clock uses the wall clock.
func NewRecording(capacity int, clock timeutil.Clock) *Recording {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Recording{
		ring:  NewRing[frame.Timestamped](capacity),
		clock: clock,
	}
}

// Push stamps f with the current time and stores it. It reports whether the
// frame was accepted.
func (b *Recording) Push(f frame.Frame) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active {
		return false
	}
	b.ring.Push(frame.Timestamped{Time: b.clock.Now(), Frame: f})
	return true
}

// Drain removes and returns every buffered frame, oldest first.
func (b *Recording) Drain() []frame.Timestamped {
	return b.ring.Drain()
}

// SetActive opens or closes the insertion gate. Opening the gate discards
// anything left over from a previous session.
func (b *Recording) SetActive(active bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if active && !b.active {
		b.ring.Clear()
	}
	b.active = active
}

// Active reports whether frames are currently accepted.
func (b *Recording) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Len returns the number of buffered frames.
func (b *Recording) Len() int { return b.ring.Len() }

// Cap returns the buffer capacity.
func (b *Recording) Cap() int { return b.ring.Cap() }
