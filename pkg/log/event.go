package log

import (
	"time"
)

// Event is one captured protocol record. Exactly one payload pointer is
// set. Keys are integers so captures stay small.
type Event struct {
	Timestamp    time.Time `cbor:"1,keyasint"`
	ConnectionID string    `cbor:"2,keyasint,omitempty"`
	Direction    Direction `cbor:"3,keyasint"`
	Layer        Layer     `cbor:"4,keyasint"`
	Category     Category  `cbor:"5,keyasint"`
	LocalRole    Role      `cbor:"6,keyasint,omitempty"`
	RemoteAddr   string    `cbor:"7,keyasint,omitempty"`

	// ChannelID is empty for factory and listener events.
	ChannelID string `cbor:"8,keyasint,omitempty"`

	// Endpoint is the endpoint address URI.
	Endpoint string `cbor:"9,keyasint,omitempty"`

	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	ControlMsg  *ControlMsgEvent  `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// enumName maps small enum values to their printed names.
func enumName(names []string, v uint8) string {
	if int(v) < len(names) {
		return names[v]
	}
	return "UNKNOWN"
}

// Direction is relative to the capturing side.
type Direction uint8

const (
	DirectionIn Direction = iota
	DirectionOut
)

func (d Direction) String() string { return enumName([]string{"IN", "OUT"}, uint8(d)) }

// Layer is the part of the channel stack that captured an event.
type Layer uint8

const (
	// LayerTransport sees raw frames and HTTP bodies.
	LayerTransport Layer = iota
	// LayerEncoder sees decoded envelopes.
	LayerEncoder
	LayerSecurity
	// LayerChannel sees factory and channel lifecycle.
	LayerChannel
)

func (l Layer) String() string {
	return enumName([]string{"TRANSPORT", "ENCODER", "SECURITY", "CHANNEL"}, uint8(l))
}

// Category classifies an event by payload.
type Category uint8

const (
	CategoryMessage Category = iota
	CategoryControl
	CategoryState
	CategoryError
)

func (c Category) String() string {
	return enumName([]string{"MESSAGE", "CONTROL", "STATE", "ERROR"}, uint8(c))
}

// Role tells whether a client channel or a service host captured the event.
type Role uint8

const (
	RoleClient Role = iota
	RoleService
)

func (r Role) String() string { return enumName([]string{"CLIENT", "SERVICE"}, uint8(r)) }

// FrameEvent holds the bytes of one transport frame. Data may be cut short
// for large frames; Size is always the full length including the prefix.
type FrameEvent struct {
	Size      int    `cbor:"1,keyasint"`
	Data      []byte `cbor:"2,keyasint,omitempty"`
	Truncated bool   `cbor:"3,keyasint,omitempty"`
}

// MessageEvent summarizes a decoded message.
type MessageEvent struct {
	Type MessageType `cbor:"1,keyasint"`

	// Action is empty for SOAP 1.1 replies.
	Action      string `cbor:"2,keyasint,omitempty"`
	MessageID   string `cbor:"3,keyasint,omitempty"`
	RelatesTo   string `cbor:"4,keyasint,omitempty"`
	ContentType string `cbor:"5,keyasint,omitempty"`
	Size        int    `cbor:"6,keyasint,omitempty"`
	FaultCode   string `cbor:"7,keyasint,omitempty"`

	// Elapsed is set on replies: request written to reply decoded.
	Elapsed *time.Duration `cbor:"8,keyasint,omitempty"`
}

// MessageType is the exchange role of a logged message.
type MessageType uint8

const (
	MessageTypeRequest MessageType = iota
	MessageTypeReply
	MessageTypeOneWay
	MessageTypeFault
)

func (m MessageType) String() string {
	return enumName([]string{"REQUEST", "REPLY", "ONEWAY", "FAULT"}, uint8(m))
}

// StateChangeEvent records a lifecycle transition. States use the printed
// form of channel.State, e.g. OPENED.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity is the object whose state changed.
type StateEntity uint8

const (
	StateEntityConnection StateEntity = iota
	StateEntityChannel
	StateEntityFactory
	StateEntityListener
)

func (s StateEntity) String() string {
	return enumName([]string{"CONNECTION", "CHANNEL", "FACTORY", "LISTENER"}, uint8(s))
}

// ControlMsgEvent records a keep-alive or close frame on a framed
// connection.
type ControlMsgEvent struct {
	Type     ControlMsgType `cbor:"1,keyasint"`
	Sequence uint32         `cbor:"2,keyasint,omitempty"`
}

// ControlMsgType is the kind of control frame.
type ControlMsgType uint8

const (
	ControlMsgPing ControlMsgType = iota
	ControlMsgPong
	ControlMsgClose
)

func (c ControlMsgType) String() string {
	return enumName([]string{"PING", "PONG", "CLOSE"}, uint8(c))
}

// ErrorEventData describes a failure. Kind is the fault kind name such as
// TIMED_OUT; EventID is the diagnostics code when one applies.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`
	Kind    string `cbor:"3,keyasint,omitempty"`
	EventID uint32 `cbor:"4,keyasint,omitempty"`

	// Context names the operation that failed, e.g. "open:transport".
	Context string `cbor:"5,keyasint,omitempty"`
}
