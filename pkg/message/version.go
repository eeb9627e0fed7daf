package message

import (
	"strings"

	"github.com/svcmodel/svcmodel-go/pkg/fault"
)

// EnvelopeVersion identifies the envelope grammar of a message.
type EnvelopeVersion uint8

const (
	EnvelopeNone EnvelopeVersion = iota
	EnvelopeSoap11
	EnvelopeSoap12
)

// Version is the combination of envelope and addressing rules a binding
// speaks. It decides whether Action and RelatesTo appear on the wire.
type Version struct {
	Envelope   EnvelopeVersion
	Addressing bool
}

var (
	// Soap11 has no addressing headers. Replies carry no Action.
	Soap11 = Version{Envelope: EnvelopeSoap11}

	// Soap12WSAddressing10 carries Action, MessageID and RelatesTo headers.
	Soap12WSAddressing10 = Version{Envelope: EnvelopeSoap12, Addressing: true}

	// Soap12 is SOAP 1.2 without addressing.
	Soap12 = Version{Envelope: EnvelopeSoap12}
)

// String returns the version name used in configuration and logs.
func (v Version) String() string {
	switch v {
	case Soap11:
		return "soap11"
	case Soap12:
		return "soap12"
	case Soap12WSAddressing10:
		return "soap12-wsa10"
	default:
		return "none"
	}
}

// ParseVersion parses a version name.
func ParseVersion(s string) (Version, error) {
	switch strings.ToLower(s) {
	case "soap11":
		return Soap11, nil
	case "soap12":
		return Soap12, nil
	case "", "soap12-wsa10", "soap12wsaddressing10":
		return Soap12WSAddressing10, nil
	}
	return Version{}, fault.New(fault.KindConfiguration, "message.ParseVersion", "unknown message version %q", s)
}
