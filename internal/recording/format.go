package recording

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidFormat is returned for an unrecognised output format.
var ErrInvalidFormat = errors.New("invalid recording format")

// Format is an output file format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatBinary  Format = "binary"
	FormatParquet Format = "parquet"
)

// ParseFormat maps a case-insensitive name to a Format. "bin" is accepted
// for binary.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "binary", "bin":
		return FormatBinary, nil
	case "parquet":
		return FormatParquet, nil
	}
	return "", fmt.Errorf("%w %q: expected csv, json, binary or parquet", ErrInvalidFormat, s)
}

// Extension returns the file extension, including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatCSV:
		return ".csv"
	case FormatJSON:
		return ".json"
	case FormatBinary:
		return ".bin"
	case FormatParquet:
		return ".parquet"
	}
	return ""
}
