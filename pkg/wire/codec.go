package wire

import (
	"github.com/fxamacker/cbor/v2"
)

// Frames and binary envelopes use core deterministic CBOR. Peers are
// untrusted, so decoding rejects duplicate keys, indefinite lengths and
// deep nesting.
var (
	encMode = must(cbor.CoreDetEncOptions().EncMode())
	decMode = must(cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		IndefLength:     cbor.IndefLengthForbidden,
		MaxNestedLevels: 16,
	}.DecMode())
)

func must[T any](mode T, err error) T {
	if err != nil {
		panic("wire: invalid CBOR options: " + err.Error())
	}
	return mode
}

// Marshal encodes v with the wire CBOR profile.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data with the wire CBOR profile.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
