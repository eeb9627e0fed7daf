package security

import (
	"crypto/tls"
	"crypto/x509"
	"strings"

	"github.com/svcmodel/svcmodel-go/pkg/fault"
)

// Mode selects where messages are secured.
type Mode uint8

const (
	ModeNone Mode = iota
	ModeTransport
	ModeMessage
	ModeTransportWithMessageCredential
)

// String returns the configuration name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeTransport:
		return "transport"
	case ModeMessage:
		return "message"
	case ModeTransportWithMessageCredential:
		return "transport-with-message-credential"
	default:
		return "unknown"
	}
}

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return ModeNone, nil
	case "transport":
		return ModeTransport, nil
	case "message":
		return ModeMessage, nil
	case "transport-with-message-credential", "transportwithmessagecredential":
		return ModeTransportWithMessageCredential, nil
	}
	return 0, fault.New(fault.KindConfiguration, "security.ParseMode", "unknown security mode %q", s)
}

// RequiresTLS reports whether the transport must be secure.
func (m Mode) RequiresTLS() bool {
	return m == ModeTransport || m == ModeTransportWithMessageCredential
}

// CredentialKind is the kind of client credential presented.
type CredentialKind uint8

const (
	CredentialNone CredentialKind = iota
	CredentialBasic
	CredentialWindows
	CredentialCertificate
	CredentialUserName
)

// String returns the configuration name of the credential kind.
func (k CredentialKind) String() string {
	switch k {
	case CredentialNone:
		return "none"
	case CredentialBasic:
		return "basic"
	case CredentialWindows:
		return "windows"
	case CredentialCertificate:
		return "certificate"
	case CredentialUserName:
		return "username"
	default:
		return "unknown"
	}
}

// ParseCredentialKind parses a credential kind. "custom-validator" is an
// alias of "username": the service checks the token with its validator.
func ParseCredentialKind(s string) (CredentialKind, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return CredentialNone, nil
	case "basic":
		return CredentialBasic, nil
	case "windows", "ntlm":
		return CredentialWindows, nil
	case "certificate":
		return CredentialCertificate, nil
	case "username", "custom-validator":
		return CredentialUserName, nil
	}
	return 0, fault.New(fault.KindConfiguration, "security.ParseCredentialKind", "unknown credential kind %q", s)
}

// ClientCredentials are the secrets a client presents.
type ClientCredentials struct {
	// Username and Password for basic and username credentials.
	Username string
	Password string

	// Certificate is the TLS client certificate.
	Certificate *tls.Certificate

	// RootCAs verify the service certificate. Nil uses the system pool.
	RootCAs *x509.CertPool

	// MessageKey is the key shared with the service for message
	// protection. At least MinKeySize bytes.
	MessageKey []byte
}

// Settings configure a security element.
type Settings struct {
	Mode        Mode
	Credential  CredentialKind
	Credentials ClientCredentials
}

// Validate checks that the mode and credential kind fit together.
func (s Settings) Validate() error {
	const op = "security.Settings"
	switch s.Mode {
	case ModeNone, ModeTransport, ModeMessage, ModeTransportWithMessageCredential:
	default:
		return fault.New(fault.KindConfiguration, op, "unknown security mode %d", s.Mode)
	}

	switch s.Credential {
	case CredentialNone:
	case CredentialWindows:
		return fault.New(fault.KindConfiguration, op, "windows credentials are not supported on this platform")
	case CredentialBasic:
		if s.Mode != ModeNone && s.Mode != ModeTransport {
			return fault.New(fault.KindConfiguration, op, "basic credentials require security mode none or transport, got %s", s.Mode)
		}
		if s.Credentials.Username == "" {
			return fault.New(fault.KindConfiguration, op, "basic credentials require a username")
		}
	case CredentialCertificate:
		if !s.Mode.RequiresTLS() {
			return fault.New(fault.KindConfiguration, op, "certificate credentials require transport security, got %s", s.Mode)
		}
		if s.Credentials.Certificate == nil {
			return fault.New(fault.KindConfiguration, op, "certificate credentials require a certificate")
		}
	case CredentialUserName:
		if s.Mode != ModeMessage && s.Mode != ModeTransportWithMessageCredential {
			return fault.New(fault.KindConfiguration, op, "username credentials require message credentials, got %s", s.Mode)
		}
		if s.Credentials.Username == "" {
			return fault.New(fault.KindConfiguration, op, "username credentials require a username")
		}
	default:
		return fault.New(fault.KindConfiguration, op, "unknown credential kind %d", s.Credential)
	}

	if s.Mode == ModeMessage && len(s.Credentials.MessageKey) < MinKeySize {
		return fault.New(fault.KindConfiguration, op, "message security requires a key of at least %d bytes", MinKeySize)
	}
	return nil
}

// TransportCredentials reports the basic credentials the transport must
// send, if any.
func (s Settings) TransportCredentials() (username, password string, ok bool) {
	if s.Credential != CredentialBasic {
		return "", "", false
	}
	return s.Credentials.Username, s.Credentials.Password, true
}

// HasMessageLayer reports whether the settings need a per-message layer.
func (s Settings) HasMessageLayer() bool {
	return s.Mode == ModeMessage || s.Credential == CredentialUserName
}
