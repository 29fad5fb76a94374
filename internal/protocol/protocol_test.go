package protocol

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/signal.recorder/internal/frame"
)

func TestChecksum(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
		wantA byte
		wantB byte
	}{
		{"empty", nil, 0, 0},
		{"small", []byte{1, 2, 3}, 6, 10},
		// running sum wraps to 44 after the second byte: acc = 200 + 44
		{"wraps", []byte{200, 100}, 44, 244},
		{"header only", Header[:], byte((0xAA + 0xFF + 0xF1 + 0x20) % 256), byte((0xAA + (0xAA + 0xFF) + (0xAA + 0xFF + 0xF1) + (0xAA + 0xFF + 0xF1 + 0x20)) % 256)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := Checksum(tt.input)
			assert.Equal(t, tt.wantA, a, "checksum A")
			assert.Equal(t, tt.wantB, b, "checksum B")
		})
	}
}

func TestChecksumMatchesWideArithmetic(t *testing.T) {
	t.Parallel()

	payload := make([]byte, PayloadLength)
	for i := range payload {
		payload[i] = byte(i*37 + 11)
	}

	var sum, prefix, acc int
	for _, b := range payload {
		sum += int(b)
		prefix = (prefix + int(b)) % 256
		acc = (acc + prefix) % 256
	}

	a, b := Checksum(payload)
	assert.Equal(t, byte(sum%256), a)
	assert.Equal(t, byte(acc), b)
}

func TestEncodeLayout(t *testing.T) {
	t.Parallel()

	packet := Encode([frame.NumChannels]int32{1, -1, 0, 0, 0, 0, 0, 0x01020304})
	require.Len(t, packet, PacketLength)
	assert.Equal(t, Header[:], packet[:HeaderLength])
	assert.Equal(t, []byte{1, 0, 0, 0}, packet[4:8])
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF}, packet[8:12])
	assert.Equal(t, []byte{4, 3, 2, 1}, packet[32:36])

	a, b := Checksum(packet[:PayloadLength])
	assert.Equal(t, a, packet[36])
	assert.Equal(t, b, packet[37])
}

func TestToRaw(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int32(0), ToRaw(0))
	// 10 / 0.0447 = 223.71... truncated toward zero
	assert.Equal(t, int32(223), ToRaw(10))
	assert.Equal(t, int32(-223), ToRaw(-10))
	assert.Equal(t, int32(2147483647), ToRaw(1e12))
	assert.Equal(t, int32(-2147483648), ToRaw(-1e12))
}

func TestScanRoundTrip(t *testing.T) {
	t.Parallel()

	inputs := [][frame.NumChannels]float64{
		{0, 0, 0, 0, 0, 0, 0, 0},
		{-10, 10, 0, 0, 0, 0, 0, 0},
		{1.5, -2.25, 100, -100, 5000, -5000, 0.04, 123456},
		{-96000, 96000, 3, 4, 5, 6, 7, 8},
	}

	for _, in := range inputs {
		var raw [frame.NumChannels]int32
		var want frame.Frame
		for i, v := range in {
			raw[i] = ToRaw(v)
			want[i] = ToPhysical(raw[i])
		}

		res := Scan(Encode(raw))
		require.Len(t, res.Frames, 1)
		assert.Empty(t, res.Diagnostic)
		assert.Equal(t, PacketLength, res.Consumed)
		if diff := cmp.Diff(want, res.Frames[0]); diff != "" {
			t.Errorf("frame mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestScanCorruptPayloadSkipsWholePacket(t *testing.T) {
	t.Parallel()

	// Channel 3 carries the header bytes (LE 0x20F1FFAA) so a one-byte
	// advance after the checksum failure would find a bogus header.
	raw := [frame.NumChannels]int32{100, 200, 300, 0x20F1FFAA, 0, 0, 0, 0}

	for idx := HeaderLength; idx < PayloadLength; idx++ {
		packet := Encode(raw)
		packet[idx] ^= 0x5A

		res := Scan(packet)
		assert.Empty(t, res.Frames, "corrupt byte %d", idx)
		assert.Empty(t, res.Diagnostic, "corrupt byte %d", idx)
		assert.Equal(t, PacketLength, res.Consumed, "corrupt byte %d", idx)
		assert.Equal(t, 1, res.ChecksumErrors, "corrupt byte %d", idx)
	}
}

func TestScanCorruptPacketFollowedByGoodPacket(t *testing.T) {
	t.Parallel()

	bad := Encode([frame.NumChannels]int32{1, 2, 3, 4, 5, 6, 7, 8})
	bad[20]++
	good := Encode([frame.NumChannels]int32{8, 7, 6, 5, 4, 3, 2, 1})

	res := Scan(append(bad, good...))
	require.Len(t, res.Frames, 1)
	assert.Equal(t, ToPhysical(8), res.Frames[0][0])
	assert.Equal(t, 2*PacketLength, res.Consumed)
}

func TestScanDiagnosticOrdering(t *testing.T) {
	t.Parallel()

	p1 := Encode([frame.NumChannels]int32{1})
	p2 := Encode([frame.NumChannels]int32{2})

	var stream []byte
	stream = append(stream, "boot ok\n"...)
	stream = append(stream, p1...)
	stream = append(stream, "temp=21"...)
	stream = append(stream, p2...)
	stream = append(stream, "\nready"...)

	res := Scan(stream)
	require.Len(t, res.Frames, 2)
	assert.Equal(t, ToPhysical(1), res.Frames[0][0])
	assert.Equal(t, ToPhysical(2), res.Frames[1][0])
	// The last three bytes are shorter than a header and stay pending.
	assert.Equal(t, "boot ok\ntemp=21\nre", string(res.Diagnostic))
	assert.Equal(t, len(stream)-3, res.Consumed)
}

func TestScanIncompletePacketWaits(t *testing.T) {
	t.Parallel()

	packet := Encode([frame.NumChannels]int32{42})
	stream := append([]byte("xy"), packet[:PacketLength-1]...)

	res := Scan(stream)
	assert.Empty(t, res.Frames)
	assert.Equal(t, "xy", string(res.Diagnostic))
	assert.Equal(t, 2, res.Consumed)
}

func TestDecoderAcrossChunks(t *testing.T) {
	t.Parallel()

	var stream []byte
	for i := int32(0); i < 5; i++ {
		stream = append(stream, Encode([frame.NumChannels]int32{i, i * 2})...)
		stream = append(stream, "log "...)
	}

	d := NewDecoder()
	var frames []frame.Frame
	var text bytes.Buffer
	for start := 0; start < len(stream); start += 7 {
		end := start + 7
		if end > len(stream) {
			end = len(stream)
		}
		b := d.Feed(stream[start:end])
		frames = append(frames, b.Frames...)
		text.WriteString(b.Text)
	}

	require.Len(t, frames, 5)
	for i, f := range frames {
		assert.Equal(t, ToPhysical(int32(i)), f[0])
		assert.Equal(t, ToPhysical(int32(i*2)), f[1])
	}
	assert.Equal(t, "log log log log l", text.String())
	assert.Equal(t, 3, d.Pending())

	d.Reset()
	assert.Zero(t, d.Pending())
}

func TestDecodeDiagnosticGBK(t *testing.T) {
	t.Parallel()

	// "中文" in GBK
	assert.Equal(t, "中文", DecodeDiagnostic([]byte{0xD6, 0xD0, 0xCE, 0xC4}))
	assert.Equal(t, "plain ascii", DecodeDiagnostic([]byte("plain ascii")))
}
