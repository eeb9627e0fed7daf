package wire

import (
	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/message"
)

// ContentTypeBinary is the media type of the binary encoding.
const ContentTypeBinary = "application/soap+cbor"

// BinaryEncoder encodes envelopes as CBOR with integer keys.
type BinaryEncoder struct {
	version message.Version
}

// Kind returns KindBinary.
func (e *BinaryEncoder) Kind() Kind { return KindBinary }

// MessageVersion returns the encoder's message version.
func (e *BinaryEncoder) MessageVersion() message.Version { return e.version }

// ContentType returns ContentTypeBinary.
func (e *BinaryEncoder) ContentType() string { return ContentTypeBinary }

// Encode writes the envelope as CBOR.
func (e *BinaryEncoder) Encode(m *message.Message) ([]byte, error) {
	env, err := ToEnvelope(m)
	if err != nil {
		return nil, err
	}
	return Marshal(env)
}

// Decode parses a CBOR envelope.
func (e *BinaryEncoder) Decode(data []byte, contentType string) (*message.Message, error) {
	if err := checkContentType(contentType, ContentTypeBinary); err != nil {
		return nil, err
	}
	var env Envelope
	if err := Unmarshal(data, &env); err != nil {
		return nil, fault.Wrapf(fault.KindProtocol, "wire.Decode", err, "malformed binary envelope")
	}
	return env.ToMessage(e.version)
}
