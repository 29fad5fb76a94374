package buffer

import (
	"github.com/banshee-data/signal.recorder/internal/frame"
	"github.com/banshee-data/signal.recorder/internal/timeutil"
)

// Default capacities.
const (
	DefaultDisplaySize   = 2000
	DefaultQualitySize   = 2000
	DefaultRecordingSize = 10000
)

// FanOut groups the three buffers every decoded frame is delivered to.
type FanOut struct {
	Display   *Ring[frame.Frame]
	Quality   *Ring[frame.Frame]
	Recording *Recording
}

// NewFanOut creates the buffer trio. Non-positive sizes fall back to the
// defaults.
func NewFanOut(displaySize, qualitySize, recordingSize int, clock timeutil.Clock) *FanOut {
	if displaySize <= 0 {
		displaySize = DefaultDisplaySize
	}
	if qualitySize <= 0 {
		qualitySize = DefaultQualitySize
	}
	if recordingSize <= 0 {
		recordingSize = DefaultRecordingSize
	}
	return &FanOut{
		Display:   NewRing[frame.Frame](displaySize),
		Quality:   NewRing[frame.Frame](qualitySize),
		Recording: NewRecording(recordingSize, clock),
	}
}

// Push delivers f to the display, quality and recording buffers in that
// order.
func (f *FanOut) Push(fr frame.Frame) {
	f.Display.Push(fr)
	f.Quality.Push(fr)
	f.Recording.Push(fr)
}
