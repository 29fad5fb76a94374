package source

import (
	"math"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/banshee-data/signal.recorder/internal/frame"
	"github.com/banshee-data/signal.recorder/internal/protocol"
	"github.com/banshee-data/signal.recorder/internal/timeutil"
)

// Waveform selects the synthetic signal shape.
type Waveform string

const (
	WaveSine     Waveform = "sine"
	WaveSquare   Waveform = "square"
	WaveTriangle Waveform = "triangle"
	WaveSawtooth Waveform = "sawtooth"
	WaveRandom   Waveform = "random"
)

// ParseWaveform maps a case-insensitive name to a Waveform. Unknown names
// produce random samples.
func ParseWaveform(s string) Waveform {
	switch w := Waveform(strings.ToLower(strings.TrimSpace(s))); w {
	case WaveSine, WaveSquare, WaveTriangle, WaveSawtooth:
		return w
	}
	return WaveRandom
}

// DefaultFakeFrequency is used when FakeConfig.Frequency is not positive.
const DefaultFakeFrequency = 100.0

const (
	fakeTimeStep     = 0.001
	fakeChannelPhase = 0.2
)

// FakeConfig parameterises the generator.
type FakeConfig struct {
	Waveform  string  `json:"waveform" yaml:"waveform"`
	Min       float64 `json:"min" yaml:"min"`
	Max       float64 `json:"max" yaml:"max"`
	Frequency float64 `json:"frequency" yaml:"frequency"`
	Channels  int     `json:"channels" yaml:"channels"`
}

// Fake synthesises one packet per ReadData. Values are pre-scaled with
// protocol.ToRaw so decoding reproduces the requested range.
type Fake struct {
	waveform Waveform
	min, max float64
	channels int
	interval time.Duration
	clock    timeutil.Clock
	rng      *rand.Rand

	t      float64
	closed atomic.Bool
}

// NewFake creates a generator. A nil clock uses the wall clock.
func NewFake(cfg FakeConfig, clock timeutil.Clock) *Fake {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	freq := cfg.Frequency
	if freq <= 0 {
		freq = DefaultFakeFrequency
	}
	channels := min(max(cfg.Channels, 1), frame.NumChannels)

	return &Fake{
		waveform: ParseWaveform(cfg.Waveform),
		min:      cfg.Min,
		max:      cfg.Max,
		channels: channels,
		interval: time.Duration(math.Round(1000/freq)) * time.Millisecond,
		clock:    clock,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Setup is a no-op.
func (f *Fake) Setup() error {
	if f.closed.Load() {
		return ErrClosed
	}
	return nil
}

// ReadData returns one packet and then sleeps for one sample period.
func (f *Fake) ReadData() ([]byte, error) {
	if f.closed.Load() {
		return nil, ErrClosed
	}

	var raw [frame.NumChannels]int32
	for i := 0; i < f.channels; i++ {
		raw[i] = protocol.ToRaw(f.sample(f.t + float64(i)*fakeChannelPhase))
	}
	packet := protocol.Encode(raw)

	f.t += fakeTimeStep
	f.clock.Sleep(f.interval)
	return packet, nil
}

func (f *Fake) sample(phase float64) float64 {
	amplitude := f.max - f.min
	frac := math.Mod(phase, 1)

	switch f.waveform {
	case WaveSine:
		return math.Sin(phase*2*math.Pi)*amplitude/2 + amplitude/2 + f.min
	case WaveSquare:
		if frac < 0.5 {
			return f.min
		}
		return amplitude + f.min
	case WaveTriangle:
		tri := frac * 2
		if frac >= 0.5 {
			tri = 2 - frac*2
		}
		return tri*amplitude + f.min
	case WaveSawtooth:
		return frac*amplitude + f.min
	default:
		return f.min + f.rng.Float64()*amplitude
	}
}

// Close stops the generator.
func (f *Fake) Close() error {
	f.closed.Store(true)
	return nil
}

// Describe returns a human-readable summary.
func (f *Fake) Describe() string {
	return "fake " + string(f.waveform)
}

// Interval returns the sleep between packets.
func (f *Fake) Interval() time.Duration { return f.interval }
