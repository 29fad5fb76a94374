// Package frame defines the channel frame, the unit of data that flows from
// the framing codec to every consumer.
package frame

import "time"

// NumChannels is the number of device channels carried by every frame.
const NumChannels = 8

// Frame is one synchronised sample across all device channels, in physical
// units. Frames are values; copying one never aliases another.
type Frame [NumChannels]float32

// Timestamped pairs a frame with the moment it was accepted into the
// recording buffer.
type Timestamped struct {
	Time  time.Time
	Frame Frame
}

// TimestampMillis returns the capture time as milliseconds since the Unix
// epoch, the resolution used by every recording format.
func (t Timestamped) TimestampMillis() int64 {
	return t.Time.UnixMilli()
}

// Float64s widens the frame values to float64.
func (f Frame) Float64s() []float64 {
	out := make([]float64, NumChannels)
	for i, v := range f {
		out[i] = float64(v)
	}
	return out
}
