package message

import (
	"bytes"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/svcmodel/svcmodel-go/pkg/fault"
)

// Message errors.
var (
	// ErrBodyConsumed is returned when the body is read a second time.
	ErrBodyConsumed = errors.New("message: body already consumed")

	// ErrSealed is returned when a submitted message is modified.
	ErrSealed = errors.New("message: message is sealed")
)

// Message is a one-shot container exchanged over a channel.
//
// The body is produced lazily by a BodyWriter and can be read exactly once.
// Once a message is submitted to a channel it is sealed and its headers can
// no longer be changed.
type Message struct {
	mu sync.Mutex

	version   Version
	action    string
	id        string
	relatesTo string
	to        string
	headers   Headers
	props     map[string]any

	body     BodyWriter
	consumed bool
	sealed   bool

	fault *fault.RemoteFault
}

// New creates a message with the given version, action and body.
// body may be nil for an empty body.
func New(version Version, action string, body BodyWriter) *Message {
	return &Message{
		version: version,
		action:  action,
		body:    body,
		props:   make(map[string]any),
	}
}

// NewString creates a message whose body is text inside a "string" element.
func NewString(version Version, action, text string) *Message {
	return New(version, action, NewStringBody(text))
}

// NewFault creates a fault message carrying f.
func NewFault(version Version, f *fault.RemoteFault) *Message {
	m := New(version, "", nil)
	m.fault = f
	return m
}

// NewReply creates a reply to req. With addressing the reply action is the
// request action plus "Response"; without addressing it carries no action.
func NewReply(req *Message, body BodyWriter) *Message {
	action := ""
	if req.version.Addressing {
		action = req.Action() + "Response"
	}
	m := New(req.version, action, body)
	m.relatesTo = req.ID()
	return m
}

// NewIDString returns a fresh correlation id.
func NewIDString() string {
	return "urn:uuid:" + uuid.NewString()
}

// Version returns the message version.
func (m *Message) Version() Version {
	return m.version
}

// Action returns the message action.
func (m *Message) Action() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.action
}

// SetAction sets the action. Fails once sealed.
func (m *Message) SetAction(action string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sealed {
		return ErrSealed
	}
	m.action = action
	return nil
}

// ID returns the correlation id.
func (m *Message) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// SetID sets the correlation id. Fails once sealed.
func (m *Message) SetID(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sealed {
		return ErrSealed
	}
	m.id = id
	return nil
}

// RelatesTo returns the id of the message this one replies to.
func (m *Message) RelatesTo() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.relatesTo
}

// SetRelatesTo sets the relates-to id. Fails once sealed.
func (m *Message) SetRelatesTo(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sealed {
		return ErrSealed
	}
	m.relatesTo = id
	return nil
}

// To returns the destination address, if set.
func (m *Message) To() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.to
}

// SetTo sets the destination address. Fails once sealed.
func (m *Message) SetTo(to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sealed {
		return ErrSealed
	}
	m.to = to
	return nil
}

// Headers returns a copy of the extension headers.
func (m *Message) Headers() Headers {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.headers.Clone()
}

// SetHeader adds or replaces an extension header. Fails once sealed.
func (m *Message) SetHeader(h Header) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sealed {
		return ErrSealed
	}
	m.headers.Set(h)
	return nil
}

// RemoveHeader removes an extension header. Fails once sealed.
func (m *Message) RemoveHeader(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sealed {
		return ErrSealed
	}
	m.headers.Remove(name)
	return nil
}

// Property returns a local (never transmitted) property.
func (m *Message) Property(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.props[key]
	return v, ok
}

// SetProperty sets a local property. Properties stay writable after sealing.
func (m *Message) SetProperty(key string, v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.props[key] = v
}

// Fault returns the remote fault carried by this message, if any.
func (m *Message) Fault() *fault.RemoteFault {
	return m.fault
}

// IsFault reports whether this is a fault message.
func (m *Message) IsFault() bool {
	return m.fault != nil
}

// Seal makes the message immutable. Sealing twice is harmless.
func (m *Message) Seal() {
	m.mu.Lock()
	m.sealed = true
	m.mu.Unlock()
}

// Sealed reports whether the message has been submitted.
func (m *Message) Sealed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sealed
}

// BodyConsumed reports whether the body has been read.
func (m *Message) BodyConsumed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consumed
}

// ReadBody consumes the body and returns its bytes.
func (m *Message) ReadBody() ([]byte, error) {
	m.mu.Lock()
	if m.consumed {
		m.mu.Unlock()
		return nil, ErrBodyConsumed
	}
	m.consumed = true
	body := m.body
	m.body = nil
	m.mu.Unlock()

	if body == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := body.WriteBody(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadBodyString consumes the body and returns the text of its root element.
func (m *Message) ReadBodyString() (string, error) {
	b, err := m.ReadBody()
	if err != nil {
		return "", err
	}
	return ReadElementString(b)
}

// Derive returns an unsealed copy of m carrying the same addressing and
// headers but a new body. Layers use it to transform outgoing and incoming
// messages without mutating the caller's message.
func (m *Message) Derive(body BodyWriter) *Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	props := make(map[string]any, len(m.props))
	for k, v := range m.props {
		props[k] = v
	}
	return &Message{
		version:   m.version,
		action:    m.action,
		id:        m.id,
		relatesTo: m.relatesTo,
		to:        m.to,
		headers:   m.headers.Clone(),
		props:     props,
		body:      body,
		fault:     m.fault,
	}
}
