package protocol

import (
	"golang.org/x/text/encoding/simplifiedchinese"
)

// DecodeDiagnostic converts diagnostic bytes printed by the device firmware
// (GBK, a superset of ASCII) to UTF-8. Undecodable sequences become U+FFFD.
func DecodeDiagnostic(b []byte) string {
	out, err := simplifiedchinese.GBK.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
