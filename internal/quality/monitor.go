// Package quality derives per-channel health flags from the recent sample
// window.
package quality

import (
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/signal.recorder/internal/buffer"
	"github.com/banshee-data/signal.recorder/internal/frame"
)

// Default thresholds, tuned to the device scale factor.
const (
	DefaultMinSamples = 10
	DefaultMaxStdDev  = 2.235e4
	DefaultMaxMean    = 1.341e5
)

// Flags holds one health flag per channel; true means good.
type Flags [frame.NumChannels]bool

// AllGood returns flags with every channel marked good.
func AllGood() Flags {
	var f Flags
	for i := range f {
		f[i] = true
	}
	return f
}

// Thresholds configures the monitor.
type Thresholds struct {
	MinSamples int
	MaxStdDev  float64
	MaxMean    float64
}

// DefaultThresholds returns the device defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSamples: DefaultMinSamples,
		MaxStdDev:  DefaultMaxStdDev,
		MaxMean:    DefaultMaxMean,
	}
}

// Monitor computes quality flags on demand from a sliding window. The window
// is only read, never drained.
type Monitor struct {
	window     *buffer.Ring[frame.Frame]
	thresholds Thresholds

	mu    sync.Mutex
	flags Flags
}

// NewMonitor creates a monitor reading from window.
func NewMonitor(window *buffer.Ring[frame.Frame], th Thresholds) *Monitor {
	if th.MinSamples <= 0 {
		th.MinSamples = DefaultMinSamples
	}
	return &Monitor{
		window:     window,
		thresholds: th,
		flags:      AllGood(),
	}
}

// Check recomputes and returns the flags. With fewer than MinSamples frames
// in the window the previous flags are returned unchanged.
func (m *Monitor) Check() Flags {
	samples := m.window.Snapshot()

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(samples) < m.thresholds.MinSamples {
		return m.flags
	}

	column := make([]float64, len(samples))
	for ch := 0; ch < frame.NumChannels; ch++ {
		for i, s := range samples {
			column[i] = float64(s[ch])
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		m.flags[ch] = std <= m.thresholds.MaxStdDev && mean <= m.thresholds.MaxMean
	}
	return m.flags
}

// Last returns the most recently computed flags without recomputing.
func (m *Monitor) Last() Flags {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags
}
