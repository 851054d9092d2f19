// Package bignum carries arbitrary-precision integers across JSON
// boundaries. big.Int values are wrapped in a typed envelope with a decimal
// string payload so structural copies never lose precision.
package bignum

import (
	"encoding/json"
	"fmt"
	"math/big"
)

const envelopeType = "bigint"

// envelope is the wire shape of a big integer.
type envelope struct {
	Type  string `json:"__type__"`
	Value string `json:"value"`
}

// Encode wraps a big.Int into its wire envelope.
func Encode(v *big.Int) json.RawMessage {
	env := envelope{Type: envelopeType, Value: v.String()}
	raw, _ := json.Marshal(env)
	return raw
}

// Decode parses a wire envelope back into a big.Int.
func Decode(raw json.RawMessage) (*big.Int, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if env.Type != envelopeType {
		return nil, fmt.Errorf("bignum: unexpected envelope type %q", env.Type)
	}
	v, ok := new(big.Int).SetString(env.Value, 10)
	if !ok {
		return nil, fmt.Errorf("bignum: invalid decimal %q", env.Value)
	}
	return v, nil
}

// EncodeValue recursively converts a value tree for JSON marshalling,
// replacing every *big.Int with its envelope. Maps, slices, and scalars
// pass through.
func EncodeValue(v any) any {
	switch t := v.(type) {
	case *big.Int:
		return map[string]any{"__type__": envelopeType, "value": t.String()}
	case big.Int:
		return map[string]any{"__type__": envelopeType, "value": t.String()}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = EncodeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = EncodeValue(e)
		}
		return out
	default:
		return v
	}
}

// DecodeValue is the inverse of EncodeValue: envelopes become *big.Int,
// everything else is walked structurally.
func DecodeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if typ, ok := t["__type__"].(string); ok && typ == envelopeType {
			if s, ok := t["value"].(string); ok {
				if n, ok := new(big.Int).SetString(s, 10); ok {
					return n
				}
			}
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = DecodeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = DecodeValue(e)
		}
		return out
	default:
		return v
	}
}
