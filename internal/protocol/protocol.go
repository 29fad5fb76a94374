// Package protocol implements the binary framing used by the acquisition
// device: fixed-header packets carrying eight little-endian channel values
// protected by a two-byte checksum, interleaved with free-form diagnostic
// text.
package protocol

import (
	"encoding/binary"
	"math"

	"github.com/banshee-data/signal.recorder/internal/frame"
)

/*
Packet layout (38 bytes total):

	offset  size  field
	0       4     header            0xAA 0xFF 0xF1 0x20
	4       32    channel values    8 x int32, little-endian, raw ADC counts
	36      1     checksum A        sum(bytes[0:36]) mod 256
	37      1     checksum B        sum of running sums of bytes[0:36], mod 256

Anything in the stream that does not start with the header is diagnostic
text printed by the device firmware (GBK encoded).
*/
const (
	HeaderLength   = 4
	ValueLength    = 4
	PayloadLength  = HeaderLength + frame.NumChannels*ValueLength // 36
	ChecksumLength = 2
	PacketLength   = PayloadLength + ChecksumLength // 38
)

// Header marks the start of every data packet.
var Header = [HeaderLength]byte{0xAA, 0xFF, 0xF1, 0x20}

// Device scale: physical_value = raw * ScaleNumerator / ScaleDenominator.
const (
	ScaleNumerator   = 0.5364
	ScaleDenominator = 12.0
)

// Checksum computes the two checksum bytes over payload (header and channel
// values, never the checksum bytes themselves).
//
// The first byte is the plain byte sum. The second accumulates the running
// sum after every byte; both accumulators wrap at 256 on every step, which
// uint8 arithmetic does for us.
func Checksum(payload []byte) (byte, byte) {
	var sum, prefix, acc uint8
	for _, b := range payload {
		sum += b
		prefix += b
		acc += prefix
	}
	return sum, acc
}

// ToPhysical converts a raw device count to physical units using float32
// arithmetic, matching the device firmware.
func ToPhysical(raw int32) float32 {
	return float32(raw) * float32(ScaleNumerator) / float32(ScaleDenominator)
}

// ToRaw is the inverse of ToPhysical. The result is truncated toward zero and
// clamped to the int32 range.
func ToRaw(value float64) int32 {
	raw := value / (ScaleNumerator / ScaleDenominator)
	switch {
	case math.IsNaN(raw):
		return 0
	case raw >= math.MaxInt32:
		return math.MaxInt32
	case raw <= math.MinInt32:
		return math.MinInt32
	}
	return int32(raw)
}

// Encode builds a complete packet, checksum included, from raw channel
// counts.
func Encode(raw [frame.NumChannels]int32) []byte {
	packet := make([]byte, PacketLength)
	copy(packet, Header[:])
	for i, v := range raw {
		off := HeaderLength + i*ValueLength
		binary.LittleEndian.PutUint32(packet[off:off+ValueLength], uint32(v))
	}
	packet[PayloadLength], packet[PayloadLength+1] = Checksum(packet[:PayloadLength])
	return packet
}

// decodePacket validates a PacketLength slice starting with the header and
// returns the decoded frame. ok is false when the checksum does not match.
func decodePacket(packet []byte) (f frame.Frame, ok bool) {
	if len(packet) < PacketLength {
		return f, false
	}
	a, b := Checksum(packet[:PayloadLength])
	if packet[PayloadLength] != a || packet[PayloadLength+1] != b {
		return f, false
	}
	for i := range f {
		off := HeaderLength + i*ValueLength
		raw := int32(binary.LittleEndian.Uint32(packet[off : off+ValueLength]))
		f[i] = ToPhysical(raw)
	}
	return f, true
}
