package protocol

import (
	"bytes"

	"github.com/banshee-data/signal.recorder/internal/frame"
)

// ScanResult is the outcome of one pass over an accumulation buffer.
type ScanResult struct {
	// Frames holds every validated frame in stream order.
	Frames []frame.Frame
	// Diagnostic holds the non-packet bytes in stream order.
	Diagnostic []byte
	// Consumed is the number of leading bytes the caller may discard.
	Consumed int
	// ChecksumErrors counts header-aligned packets dropped for a bad checksum.
	ChecksumErrors int
}

// Scan walks buf from the left looking for packets.
//
// A header followed by a full packet is checksummed; a good packet yields a
// frame and a bad one is skipped whole, so a corrupt packet's tail is never
// re-read as a new header. A header without a full packet behind it stops
// the scan so the caller can wait for more bytes. Any other byte is
// diagnostic text. Fewer than HeaderLength trailing bytes are left
// unconsumed.
func Scan(buf []byte) ScanResult {
	var res ScanResult
	i := 0
	for i+HeaderLength <= len(buf) {
		if !bytes.Equal(buf[i:i+HeaderLength], Header[:]) {
			res.Diagnostic = append(res.Diagnostic, buf[i])
			i++
			continue
		}
		if len(buf)-i < PacketLength {
			break
		}
		if f, ok := decodePacket(buf[i : i+PacketLength]); ok {
			res.Frames = append(res.Frames, f)
		} else {
			res.ChecksumErrors++
		}
		i += PacketLength
	}
	res.Consumed = i
	return res
}

// Batch is what a Decoder produces for one chunk of input.
type Batch struct {
	Frames          []frame.Frame
	Text            string // decoded diagnostic text, empty when none
	DiagnosticBytes int
	ChecksumErrors  int
}

// Decoder accumulates a byte stream across reads and extracts frames from it.
// It is not safe for concurrent use; the acquisition loop owns one.
type Decoder struct {
	buf []byte
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 0, 4*PacketLength)}
}

// Feed appends data to the pending bytes and scans them. Consumed bytes are
// dropped; the unconsumed tail is kept for the next call.
func (d *Decoder) Feed(data []byte) Batch {
	d.buf = append(d.buf, data...)
	res := Scan(d.buf)

	// Shift the leftover to the front so the backing array does not grow
	// without bound across a long session.
	n := copy(d.buf, d.buf[res.Consumed:])
	d.buf = d.buf[:n]

	b := Batch{
		Frames:          res.Frames,
		DiagnosticBytes: len(res.Diagnostic),
		ChecksumErrors:  res.ChecksumErrors,
	}
	if len(res.Diagnostic) > 0 {
		b.Text = DecodeDiagnostic(res.Diagnostic)
	}
	return b
}

// Pending returns the number of bytes held back for the next Feed.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Reset discards any pending bytes.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
}
