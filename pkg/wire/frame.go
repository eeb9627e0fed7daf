package wire

import (
	"fmt"
)

// FrameKind identifies the purpose of a transport frame.
type FrameKind uint8

const (
	// FrameRequest carries a request envelope and expects a FrameReply
	// with the same ID.
	FrameRequest FrameKind = 1

	// FrameReply carries the reply to the request with the same ID.
	FrameReply FrameKind = 2

	// FrameOneWay carries a message that expects no reply.
	FrameOneWay FrameKind = 3

	// FrameDuplex carries a message on a duplex session. Either side may
	// send at any time.
	FrameDuplex FrameKind = 4

	// FramePing and FramePong are keep-alive probes.
	FramePing FrameKind = 5
	FramePong FrameKind = 6

	// FrameClose announces a graceful connection shutdown.
	FrameClose FrameKind = 7
)

// String returns the frame kind name.
func (k FrameKind) String() string {
	switch k {
	case FrameRequest:
		return "REQUEST"
	case FrameReply:
		return "REPLY"
	case FrameOneWay:
		return "ONEWAY"
	case FrameDuplex:
		return "DUPLEX"
	case FramePing:
		return "PING"
	case FramePong:
		return "PONG"
	case FrameClose:
		return "CLOSE"
	default:
		return fmt.Sprintf("FrameKind(%d)", uint8(k))
	}
}

// IsControl reports whether the frame is handled by the connection itself.
func (k FrameKind) IsControl() bool {
	return k == FramePing || k == FramePong || k == FrameClose
}

// Frame is the unit exchanged on connection-oriented transports.
type Frame struct {
	Kind        FrameKind  `cbor:"1,keyasint"`
	ID          uint32     `cbor:"2,keyasint,omitempty"`
	Path        string     `cbor:"3,keyasint,omitempty"`
	ContentType string     `cbor:"4,keyasint,omitempty"`
	Status      Status     `cbor:"5,keyasint,omitempty"`
	Auth        *FrameAuth `cbor:"6,keyasint,omitempty"`
	Body        []byte     `cbor:"7,keyasint,omitempty"`
	Detail      string     `cbor:"8,keyasint,omitempty"`
}

// FrameAuth carries transport-level username credentials.
type FrameAuth struct {
	Username string `cbor:"1,keyasint"`
	Password string `cbor:"2,keyasint"`
}

// Validate checks the frame invariants.
func (f *Frame) Validate() error {
	switch f.Kind {
	case FrameRequest, FrameReply:
		if f.ID == 0 {
			return fmt.Errorf("%s frame requires a non-zero id", f.Kind)
		}
	case FrameOneWay, FrameDuplex, FramePing, FramePong, FrameClose:
	default:
		return fmt.Errorf("unknown frame kind %d", f.Kind)
	}
	return nil
}

// EncodeFrame encodes a frame to CBOR bytes.
func EncodeFrame(f *Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	return Marshal(f)
}

// DecodeFrame decodes CBOR bytes into a frame.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	return &f, nil
}

// EncodePing encodes a keep-alive ping.
func EncodePing(seq uint32) ([]byte, error) {
	return EncodeFrame(&Frame{Kind: FramePing, ID: seq})
}

// EncodePong encodes a keep-alive pong answering seq.
func EncodePong(seq uint32) ([]byte, error) {
	return EncodeFrame(&Frame{Kind: FramePong, ID: seq})
}

// EncodeClose encodes a close announcement.
func EncodeClose() ([]byte, error) {
	return EncodeFrame(&Frame{Kind: FrameClose})
}
