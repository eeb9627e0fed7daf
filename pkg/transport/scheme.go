package transport

import (
	"strings"

	"github.com/svcmodel/svcmodel-go/pkg/channel"
	"github.com/svcmodel/svcmodel-go/pkg/endpoint"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
)

// Scheme is the address scheme a transport serves.
type Scheme string

// Supported schemes.
const (
	SchemeHTTP  Scheme = "http"
	SchemeHTTPS Scheme = "https"
	SchemeTCP   Scheme = "net.tcp"
	SchemePipe  Scheme = "net.pipe"
	SchemeWS    Scheme = "ws"
	SchemeWSS   Scheme = "wss"
)

// ParseScheme parses a transport kind or address scheme. "tcp" and "pipe"
// are accepted as aliases.
func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(s) {
	case "http":
		return SchemeHTTP, nil
	case "https":
		return SchemeHTTPS, nil
	case "net.tcp", "tcp":
		return SchemeTCP, nil
	case "net.pipe", "pipe":
		return SchemePipe, nil
	case "ws":
		return SchemeWS, nil
	case "wss":
		return SchemeWSS, nil
	}
	return "", fault.New(fault.KindConfiguration, "transport.ParseScheme", "unknown transport %q", s)
}

// String returns the scheme.
func (s Scheme) String() string {
	return string(s)
}

// Secure reports whether the scheme always runs over TLS.
func (s Scheme) Secure() bool {
	return s == SchemeHTTPS || s == SchemeWSS
}

// IsHTTP reports whether the scheme is served by the HTTP transport.
func (s Scheme) IsHTTP() bool {
	return s == SchemeHTTP || s == SchemeHTTPS
}

// IsWebSocket reports whether the scheme is a websocket.
func (s Scheme) IsWebSocket() bool {
	return s == SchemeWS || s == SchemeWSS
}

// Network returns the net package network name for stream schemes.
func (s Scheme) Network() string {
	if s == SchemePipe {
		return "unix"
	}
	return "tcp"
}

// CanBuildShape reports whether the transport supports shape. HTTP is
// request-reply and one-way only; websockets are duplex only.
func (s Scheme) CanBuildShape(shape channel.Shape) bool {
	switch s {
	case SchemeHTTP, SchemeHTTPS:
		return shape == channel.ShapeRequest || shape == channel.ShapeOutput
	case SchemeTCP, SchemePipe:
		return true
	case SchemeWS, SchemeWSS:
		return shape == channel.ShapeDuplex
	}
	return false
}

// pipeSocket splits a net.pipe address into the socket path and the
// service path. The socket path ends at the first ".sock" element.
func pipeSocket(addr *endpoint.Address) (socket, path string) {
	p := addr.Path()
	if i := strings.Index(p, ".sock"); i >= 0 {
		end := i + len(".sock")
		return p[:end], p[end:]
	}
	return p, ""
}
