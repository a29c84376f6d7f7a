// Package tag decodes the fixed-width feedback tag emitted by the
// reputation registry.
//
// Tags are bytes32 values carrying short packed-ASCII labels
// ("fast", "helpful", ...) padded with trailing zero bytes.
package tag

import (
	"encoding/hex"
	"strings"
)

// zeroTag is the all-zero bytes32 value, meaning "no tag".
const zeroTag = "0x0000000000000000000000000000000000000000000000000000000000000000"

// Decode converts a hex-encoded bytes32 tag into its label.
//
// Returns ("", false) for the all-zero value or an empty label.
// If the payload is not valid hex, the raw input is returned unchanged
// with ok=true: downstream consumers treat any non-empty tag as
// meaningful, so a garbled tag is preserved rather than dropped.
func Decode(raw string) (string, bool) {
	if raw == "" || raw == zeroTag {
		return "", false
	}

	h := strings.TrimPrefix(raw, "0x")

	// Strip trailing zero bytes before decoding.
	h = strings.TrimRight(h, "0")
	if h == "" {
		return "", false
	}
	// TrimRight can leave an odd nibble count when the last byte's low
	// nibble was zero (e.g. "0x74657374" + "30" -> "...743"); re-pad.
	if len(h)%2 != 0 {
		h += "0"
	}

	decoded, err := hex.DecodeString(h)
	if err != nil {
		return raw, true
	}

	var b strings.Builder
	for _, c := range decoded {
		if c == 0 {
			break
		}
		b.WriteByte(c)
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String(), true
}
