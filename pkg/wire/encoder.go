package wire

import (
	"mime"
	"strings"

	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/message"
)

// Kind names an encoding.
type Kind uint8

const (
	KindText Kind = iota
	KindBinary
	KindMTOM
)

// String returns the configuration name of the encoding.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	case KindMTOM:
		return "mtom"
	default:
		return "unknown"
	}
}

// ParseKind parses an encoding name.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "text", "":
		return KindText, nil
	case "binary":
		return KindBinary, nil
	case "mtom":
		return KindMTOM, nil
	}
	return 0, fault.New(fault.KindConfiguration, "wire.ParseKind", "unknown encoding %q", s)
}

// Encoder converts messages to and from bytes.
type Encoder interface {
	// Kind returns the encoding kind.
	Kind() Kind

	// ContentType is sent with every encoded message.
	ContentType() string

	// MessageVersion is the version of messages this encoder produces.
	MessageVersion() message.Version

	// Encode consumes the message body and returns the encoded bytes.
	Encode(m *message.Message) ([]byte, error)

	// Decode parses bytes received with contentType.
	Decode(data []byte, contentType string) (*message.Message, error)
}

// NewEncoder returns the encoder for kind speaking version.
func NewEncoder(kind Kind, version message.Version) (Encoder, error) {
	switch kind {
	case KindText:
		return &TextEncoder{version: version}, nil
	case KindBinary:
		return &BinaryEncoder{version: version}, nil
	case KindMTOM:
		return &MTOMEncoder{version: version}, nil
	}
	return nil, fault.New(fault.KindConfiguration, "wire.NewEncoder", "unknown encoding %d", kind)
}

// checkContentType verifies the media type of a received payload.
func checkContentType(got, want string) error {
	if got == "" {
		return nil
	}
	gotType, _, err := mime.ParseMediaType(got)
	if err != nil {
		return fault.Wrapf(fault.KindProtocol, "wire.Decode", err, "invalid content type %q", got)
	}
	wantType, _, _ := mime.ParseMediaType(want)
	if !strings.EqualFold(gotType, wantType) {
		return fault.New(fault.KindProtocol, "wire.Decode", "content type %q, expected %q", got, want)
	}
	return nil
}
