package wire

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/message"
)

// ContentTypeMTOM is the media type of the MTOM encoding.
const ContentTypeMTOM = `multipart/related; type="application/msgpack"`

// MTOMEncoder writes the envelope headers as msgpack and appends the body
// as a separate raw binary value, so large bodies are not re-encoded.
type MTOMEncoder struct {
	version message.Version
}

// Kind returns KindMTOM.
func (e *MTOMEncoder) Kind() Kind { return KindMTOM }

// MessageVersion returns the encoder's message version.
func (e *MTOMEncoder) MessageVersion() message.Version { return e.version }

// ContentType returns ContentTypeMTOM.
func (e *MTOMEncoder) ContentType() string { return ContentTypeMTOM }

// Encode writes the envelope followed by the body attachment.
func (e *MTOMEncoder) Encode(m *message.Message) ([]byte, error) {
	env, err := ToEnvelope(m)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(env); err != nil {
		return nil, err
	}
	if err := enc.EncodeBytes(env.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses the envelope and its body attachment.
func (e *MTOMEncoder) Decode(data []byte, contentType string) (*message.Message, error) {
	if err := checkContentType(contentType, ContentTypeMTOM); err != nil {
		return nil, err
	}
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fault.Wrapf(fault.KindProtocol, "wire.Decode", err, "malformed mtom envelope")
	}
	body, err := dec.DecodeBytes()
	if err != nil {
		return nil, fault.Wrapf(fault.KindProtocol, "wire.Decode", err, "missing mtom attachment")
	}
	env.Body = body
	return env.ToMessage(e.version)
}
