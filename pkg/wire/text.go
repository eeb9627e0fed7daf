package wire

import (
	"encoding/json"

	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/message"
)

// Content types of the text encoding.
const (
	ContentTypeText11 = "text/json; charset=utf-8"
	ContentTypeText12 = "application/soap+json; charset=utf-8"
)

// TextEncoder encodes envelopes as JSON documents.
type TextEncoder struct {
	version message.Version
}

// Kind returns KindText.
func (e *TextEncoder) Kind() Kind { return KindText }

// MessageVersion returns the encoder's message version.
func (e *TextEncoder) MessageVersion() message.Version { return e.version }

// ContentType returns the media type for the encoder's version.
func (e *TextEncoder) ContentType() string {
	if e.version.Envelope == message.EnvelopeSoap11 {
		return ContentTypeText11
	}
	return ContentTypeText12
}

// Encode writes the envelope as JSON.
func (e *TextEncoder) Encode(m *message.Message) ([]byte, error) {
	env, err := ToEnvelope(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode parses a JSON envelope.
func (e *TextEncoder) Decode(data []byte, contentType string) (*message.Message, error) {
	if err := checkContentType(contentType, e.ContentType()); err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fault.Wrapf(fault.KindProtocol, "wire.Decode", err, "malformed text envelope")
	}
	return env.ToMessage(e.version)
}
