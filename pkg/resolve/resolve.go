package resolve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/svcmodel/svcmodel-go/pkg/endpoint"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
)

// Protocol names accepted in a ResourceRequest.
const (
	ProtocolHTTP  = "http"
	ProtocolHTTPS = "https"
	ProtocolTCP   = "net.tcp"
	ProtocolPipe  = "net.pipe"
	ProtocolWS    = "ws"
	ProtocolWSS   = "wss"
)

// ErrNotFound is returned when no endpoint matches a request.
var ErrNotFound = errors.New("resource not found")

// ResourceRequest asks for the base address of a service resource.
type ResourceRequest struct {
	// Protocol is the address scheme (http, https, net.tcp, net.pipe, ws, wss).
	Protocol string

	// Port identifies the resource. For net.pipe it names the socket.
	Port int

	// Path is appended to the base address.
	Path string
}

// String returns a short description used in errors and logs.
func (r ResourceRequest) String() string {
	return fmt.Sprintf("%s:%d%s", r.Protocol, r.Port, r.Path)
}

// Resolver maps a resource request to a concrete endpoint address.
type Resolver interface {
	Resolve(ctx context.Context, req ResourceRequest) (*endpoint.Address, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, req ResourceRequest) (*endpoint.Address, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, req ResourceRequest) (*endpoint.Address, error) {
	return f(ctx, req)
}

// Static resolves every request against a fixed host.
type Static struct {
	// Host is the host name or IP used for network protocols.
	// Default: localhost.
	Host string

	// PipeDir is the directory holding named pipe sockets.
	// Default: the system temp directory.
	PipeDir string
}

// Resolve builds protocol://host:port/path.
func (s *Static) Resolve(_ context.Context, req ResourceRequest) (*endpoint.Address, error) {
	const op = "resolve.Static"
	if err := validate(req); err != nil {
		return nil, err
	}

	var raw string
	if req.Protocol == ProtocolPipe {
		raw = ProtocolPipe + "://" + filepath.ToSlash(PipePath(s.PipeDir, req.Port)) + normalizePath(req.Path)
	} else {
		host := s.Host
		if host == "" {
			host = "localhost"
		}
		raw = req.Protocol + "://" + net.JoinHostPort(host, strconv.Itoa(req.Port)) + normalizePath(req.Path)
	}

	addr, err := endpoint.Parse(raw)
	if err != nil {
		return nil, fault.Wrapf(fault.KindAddress, op, err, "resolve %s", req)
	}
	return addr, nil
}

// PipePath returns the socket path of a named pipe resource.
func PipePath(dir string, port int) string {
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "svcmodel-"+strconv.Itoa(port)+".sock")
}

func validate(req ResourceRequest) error {
	switch strings.ToLower(req.Protocol) {
	case ProtocolHTTP, ProtocolHTTPS, ProtocolTCP, ProtocolPipe, ProtocolWS, ProtocolWSS:
	default:
		return fault.New(fault.KindConfiguration, "resolve", "unknown protocol %q", req.Protocol)
	}
	if req.Port <= 0 || req.Port > 65535 {
		return fault.New(fault.KindConfiguration, "resolve", "invalid port %d", req.Port)
	}
	return nil
}

func normalizePath(p string) string {
	if p == "" || strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}

var _ Resolver = (*Static)(nil)
