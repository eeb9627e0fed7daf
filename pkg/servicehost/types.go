package servicehost

import (
	"errors"
	"log/slog"

	"github.com/svcmodel/svcmodel-go/pkg/diagnostics"
	"github.com/svcmodel/svcmodel-go/pkg/log"
	"github.com/svcmodel/svcmodel-go/pkg/resolve"
	"github.com/svcmodel/svcmodel-go/pkg/security"
	"github.com/svcmodel/svcmodel-go/pkg/transport"
)

// Echo service contract.
const (
	// EchoAction is the action of the echo operation.
	EchoAction = "http://tempuri.org/IWcfService/MessageRequestReply"

	// ReplySuffix is appended to the request text by the echo operation.
	ReplySuffix = "[service] Request received, this is my Reply."
)

// Endpoint paths.
const (
	PathBasic      = "/basic"
	PathCustom     = "/custom"
	PathHTTPSBasic = "/https-basic"
	PathEcho       = "/echo"
	PathMessage    = "/message"
	PathDuplex     = "/duplex"
)

// Host errors.
var (
	ErrAlreadyStarted = errors.New("host already started")
	ErrNotStarted     = errors.New("host not started")
	ErrNoListener     = errors.New("no listener for scheme")
)

// State is the lifecycle state of a Host.
type State uint8

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Config configures a Host. Empty listen addresses disable a transport.
type Config struct {
	// HTTPAddr serves /basic and /custom (e.g. "127.0.0.1:0").
	HTTPAddr string

	// HTTPSAddr serves /https-basic. Requires TLS.
	HTTPSAddr string

	// TCPAddr serves /echo and /message over net.tcp.
	TCPAddr string

	// PipeDir and PipeResource place the named pipe socket at
	// resolve.PipePath(PipeDir, PipeResource). Zero PipeResource disables
	// the pipe listener.
	PipeDir      string
	PipeResource int

	// WSAddr serves /duplex.
	WSAddr string

	// TLS holds the service certificate for https.
	TLS *transport.TLSConfig

	// Validator checks https-basic credentials.
	Validator security.CredentialValidator

	// MessageKey enables /message with message security.
	MessageKey []byte

	// Service answers requests. Nil uses Echo().
	Service *Service

	// Advertiser announces network listeners over mDNS (nil disables).
	Advertiser *resolve.MDNSAdvertiser

	// Logger is the optional logger for debug output.
	Logger *slog.Logger

	// ProtocolLogger records service side frames and messages.
	ProtocolLogger log.Logger

	// Diagnostics receives authentication and dispatch events.
	Diagnostics diagnostics.Sink
}

// DefaultConfig listens on ephemeral loopback ports for http, net.tcp and
// ws.
func DefaultConfig() Config {
	return Config{
		HTTPAddr: "127.0.0.1:0",
		TCPAddr:  "127.0.0.1:0",
		WSAddr:   "127.0.0.1:0",
	}
}
