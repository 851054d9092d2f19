package bus

import (
	"github.com/fd1az/market-data-engine/internal/bignum"
)

// Cloner is implemented by payloads that know how to deep-copy
// themselves; venue states cross the bus this way.
type Cloner interface {
	CloneAny() any
}

// encodePayload performs the structural copy at the send boundary.
// Generic value trees are walked and big integers rewritten into their
// decimal-string envelope; Cloner payloads are deep-copied.
func encodePayload(data any) any {
	if c, ok := data.(Cloner); ok {
		return c.CloneAny()
	}
	return bignum.EncodeValue(data)
}

// decodePayload restores big integers on the receive side. Decoding is
// integer-preserving: any envelope that fails to parse stays an envelope
// rather than degrading to a float.
func decodePayload(data any) any {
	if _, ok := data.(Cloner); ok {
		return data
	}
	return bignum.DecodeValue(data)
}
