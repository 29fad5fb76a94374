package recording

import (
	"bytes"
	"encoding/binary"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/segmentio/parquet-go"

	"github.com/banshee-data/signal.recorder/internal/frame"
	"github.com/banshee-data/signal.recorder/internal/version"
)

// Writer persists batches of timestamped frames to one segment file.
// WriteBatch either writes the whole batch or reports an error; a failed
// batch leaves the writer usable for the next one. Finalize completes the
// document and closes the file.
type Writer interface {
	WriteBatch(batch []frame.Timestamped) error
	Finalize() error
}

// NewWriter wraps out in a writer for format and writes any preamble.
func NewWriter(format Format, out io.WriteCloser) (Writer, error) {
	switch format {
	case FormatCSV:
		return newCSVWriter(out)
	case FormatJSON:
		return newJSONWriter(out)
	case FormatBinary:
		return &binaryWriter{out: out}, nil
	case FormatParquet:
		return newParquetWriter(out), nil
	}
	return nil, fmt.Errorf("%w %q", ErrInvalidFormat, format)
}

// CSVHeader is the first row of every CSV segment.
func CSVHeader() []string {
	header := make([]string, 0, frame.NumChannels+1)
	header = append(header, "timestamp")
	for i := 0; i < frame.NumChannels; i++ {
		header = append(header, fmt.Sprintf("channel_%d", i))
	}
	return header
}

func formatValue(v float32) string {
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}

// csvWriter encodes each batch in memory and writes it with a single call,
// so a failed write never leaves a partial row behind.
type csvWriter struct {
	out io.WriteCloser
	buf bytes.Buffer
	enc *csv.Writer
	row []string
}

func newCSVWriter(out io.WriteCloser) (*csvWriter, error) {
	w := &csvWriter{out: out, row: make([]string, frame.NumChannels+1)}
	w.enc = csv.NewWriter(&w.buf)
	w.enc.Write(CSVHeader())
	if err := w.commit(); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return w, nil
}

func (w *csvWriter) WriteBatch(batch []frame.Timestamped) error {
	for _, tf := range batch {
		w.row[0] = strconv.FormatInt(tf.TimestampMillis(), 10)
		for i, v := range tf.Frame {
			w.row[i+1] = formatValue(v)
		}
		w.enc.Write(w.row)
	}
	return w.commit()
}

func (w *csvWriter) commit() error {
	w.enc.Flush()
	defer w.buf.Reset()
	if err := w.enc.Error(); err != nil {
		return err
	}
	_, err := w.out.Write(w.buf.Bytes())
	return err
}

func (w *csvWriter) Finalize() error { return w.out.Close() }

type jsonEntry struct {
	Timestamp int64                       `json:"timestamp"`
	Values    [frame.NumChannels]float32 `json:"values"`
}

// jsonWriter streams a single top-level array. The opening bracket is
// written on creation and the closing bracket on Finalize.
type jsonWriter struct {
	out   io.WriteCloser
	buf   bytes.Buffer
	first bool
}

func newJSONWriter(out io.WriteCloser) (*jsonWriter, error) {
	if _, err := out.Write([]byte("[")); err != nil {
		return nil, fmt.Errorf("write json preamble: %w", err)
	}
	return &jsonWriter{out: out, first: true}, nil
}

func (w *jsonWriter) WriteBatch(batch []frame.Timestamped) error {
	if len(batch) == 0 {
		return nil
	}
	defer w.buf.Reset()

	first := w.first
	for _, tf := range batch {
		entry, err := json.Marshal(jsonEntry{Timestamp: tf.TimestampMillis(), Values: tf.Frame})
		if err != nil {
			return err
		}
		if !first {
			w.buf.WriteByte(',')
		}
		first = false
		w.buf.Write(entry)
	}
	if _, err := w.out.Write(w.buf.Bytes()); err != nil {
		return err
	}
	w.first = false
	return nil
}

func (w *jsonWriter) Finalize() error {
	_, err := w.out.Write([]byte("]"))
	if cerr := w.out.Close(); err == nil {
		err = cerr
	}
	return err
}

// BinaryRecordSize is the encoded size of one frame in the binary format.
const BinaryRecordSize = 8 + 4 + frame.NumChannels*8

// binaryWriter emits, per frame: uint64 timestamp (ms), uint32 value count
// and that many float64 values, all little-endian.
type binaryWriter struct {
	out io.WriteCloser
	buf []byte
}

func (w *binaryWriter) WriteBatch(batch []frame.Timestamped) error {
	w.buf = w.buf[:0]
	for _, tf := range batch {
		w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(tf.TimestampMillis()))
		w.buf = binary.LittleEndian.AppendUint32(w.buf, frame.NumChannels)
		for _, v := range tf.Frame {
			w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(float64(v)))
		}
	}
	_, err := w.out.Write(w.buf)
	return err
}

func (w *binaryWriter) Finalize() error { return w.out.Close() }

// ParquetRow is the parquet schema: one row per frame.
type ParquetRow struct {
	TimestampMs int64   `parquet:"timestamp_ms"`
	Channel0    float32 `parquet:"channel_0"`
	Channel1    float32 `parquet:"channel_1"`
	Channel2    float32 `parquet:"channel_2"`
	Channel3    float32 `parquet:"channel_3"`
	Channel4    float32 `parquet:"channel_4"`
	Channel5    float32 `parquet:"channel_5"`
	Channel6    float32 `parquet:"channel_6"`
	Channel7    float32 `parquet:"channel_7"`
}

func toParquetRow(tf frame.Timestamped) ParquetRow {
	f := tf.Frame
	return ParquetRow{
		TimestampMs: tf.TimestampMillis(),
		Channel0:    f[0],
		Channel1:    f[1],
		Channel2:    f[2],
		Channel3:    f[3],
		Channel4:    f[4],
		Channel5:    f[5],
		Channel6:    f[6],
		Channel7:    f[7],
	}
}

// parquetWriter buffers rows in row groups; the footer is written on
// Finalize.
type parquetWriter struct {
	out  io.WriteCloser
	pw   *parquet.GenericWriter[ParquetRow]
	rows []ParquetRow
}

func newParquetWriter(out io.WriteCloser) *parquetWriter {
	return &parquetWriter{
		out: out,
		pw: parquet.NewGenericWriter[ParquetRow](out,
			parquet.KeyValueMetadata("writer", "signal-recorder "+version.Version),
			parquet.KeyValueMetadata("scale", "raw*0.5364/12"),
		),
	}
}

func (w *parquetWriter) WriteBatch(batch []frame.Timestamped) error {
	w.rows = w.rows[:0]
	for _, tf := range batch {
		w.rows = append(w.rows, toParquetRow(tf))
	}
	_, err := w.pw.Write(w.rows)
	return err
}

func (w *parquetWriter) Finalize() error {
	err := w.pw.Close()
	if cerr := w.out.Close(); err == nil {
		err = cerr
	}
	return err
}
