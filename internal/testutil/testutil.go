// Package testutil provides shared test fixtures for frames and the small
// assertion helpers used by the plain-testing packages.
package testutil

import (
	"testing"
	"time"

	"github.com/banshee-data/signal.recorder/internal/frame"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Frame builds a frame from the leading channel values; the rest are zero.
func Frame(vals ...float32) frame.Frame {
	var f frame.Frame
	copy(f[:], vals)
	return f
}

// Stamped builds a timestamped frame captured at ms since the epoch.
func Stamped(ms int64, vals ...float32) frame.Timestamped {
	return frame.Timestamped{Time: time.UnixMilli(ms), Frame: Frame(vals...)}
}

// Ramp returns n frames where frame i carries i on every channel.
func Ramp(n int) []frame.Frame {
	frames := make([]frame.Frame, n)
	for i := range frames {
		for ch := range frames[i] {
			frames[i][ch] = float32(i)
		}
	}
	return frames
}
