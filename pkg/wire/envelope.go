package wire

import (
	"fmt"

	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/message"
)

// Envelope is the encoding-neutral shape of a message on the wire.
type Envelope struct {
	Version   string          `json:"v" cbor:"1,keyasint" msgpack:"v"`
	Action    string          `json:"action,omitempty" cbor:"2,keyasint,omitempty" msgpack:"action,omitempty"`
	MessageID string          `json:"messageId,omitempty" cbor:"3,keyasint,omitempty" msgpack:"id,omitempty"`
	RelatesTo string          `json:"relatesTo,omitempty" cbor:"4,keyasint,omitempty" msgpack:"rel,omitempty"`
	To        string          `json:"to,omitempty" cbor:"5,keyasint,omitempty" msgpack:"to,omitempty"`
	Headers   message.Headers `json:"headers,omitempty" cbor:"6,keyasint,omitempty" msgpack:"headers,omitempty"`
	Body      []byte          `json:"body,omitempty" cbor:"7,keyasint,omitempty" msgpack:"-"`
	Fault     *FaultDetail    `json:"fault,omitempty" cbor:"8,keyasint,omitempty" msgpack:"fault,omitempty"`
}

// FaultDetail is the wire form of a remote fault.
type FaultDetail struct {
	Code   string `json:"code" cbor:"1,keyasint" msgpack:"code"`
	Reason string `json:"reason,omitempty" cbor:"2,keyasint,omitempty" msgpack:"reason,omitempty"`
	Action string `json:"action,omitempty" cbor:"3,keyasint,omitempty" msgpack:"action,omitempty"`
}

// ToEnvelope consumes the message body and builds its envelope. Action is
// omitted for versions without addressing unless the message is a request
// (the request action is still needed for dispatch).
func ToEnvelope(m *message.Message) (*Envelope, error) {
	body, err := m.ReadBody()
	if err != nil {
		return nil, err
	}
	env := &Envelope{
		Version:   m.Version().String(),
		Action:    m.Action(),
		MessageID: m.ID(),
		RelatesTo: m.RelatesTo(),
		To:        m.To(),
		Headers:   m.Headers(),
		Body:      body,
	}
	if f := m.Fault(); f != nil {
		env.Fault = &FaultDetail{Code: f.Code, Reason: f.Reason, Action: f.Action}
	}
	return env, nil
}

// ToMessage builds a message from env. The envelope version must match
// expected; otherwise a protocol error is returned.
func (env *Envelope) ToMessage(expected message.Version) (*message.Message, error) {
	if env.Version != expected.String() {
		return nil, fault.New(fault.KindProtocol, "wire.Decode",
			"message version %q does not match %q", env.Version, expected)
	}
	var m *message.Message
	if env.Fault != nil {
		m = message.NewFault(expected, &fault.RemoteFault{
			Code:   env.Fault.Code,
			Reason: env.Fault.Reason,
			Action: env.Fault.Action,
		})
		_ = m.SetAction(env.Action)
	} else {
		m = message.New(expected, env.Action, message.BytesBody(env.Body))
	}
	// Fresh message, setters cannot fail.
	_ = m.SetID(env.MessageID)
	_ = m.SetRelatesTo(env.RelatesTo)
	_ = m.SetTo(env.To)
	for _, h := range env.Headers {
		_ = m.SetHeader(h)
	}
	return m, nil
}

func (env *Envelope) String() string {
	return fmt.Sprintf("Envelope{v=%s action=%q id=%s rel=%s body=%dB}",
		env.Version, env.Action, env.MessageID, env.RelatesTo, len(env.Body))
}
