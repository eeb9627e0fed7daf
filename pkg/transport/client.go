package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/svcmodel/svcmodel-go/pkg/endpoint"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/log"
	"github.com/svcmodel/svcmodel-go/pkg/version"
)

// DefaultConnectTimeout bounds connection establishment when the caller's
// context has no deadline.
const DefaultConnectTimeout = 30 * time.Second

// dialTarget names one remote endpoint of a framed connection.
type dialTarget struct {
	scheme  Scheme
	network string
	address string // host:port, socket path or websocket URL
	tls     *tls.Config
}

// targetFor derives the dial target for addr. tlsCfg is applied to net.tcp
// and required for wss.
func targetFor(addr *endpoint.Address, scheme Scheme, tlsCfg *tls.Config) (dialTarget, string, error) {
	switch scheme {
	case SchemeTCP:
		if tlsCfg != nil {
			tlsCfg.NextProtos = version.SupportedALPNProtocols()
		}
		return dialTarget{scheme: scheme, network: "tcp", address: addr.Host(), tls: tlsCfg}, addr.Path(), nil
	case SchemePipe:
		socket, path := pipeSocket(addr)
		if socket == "" {
			return dialTarget{}, "", fault.New(fault.KindAddress, "transport.Dial", "pipe address %s has no socket path", addr)
		}
		return dialTarget{scheme: scheme, network: "unix", address: socket}, path, nil
	case SchemeWS, SchemeWSS:
		u := url.URL{Scheme: string(scheme), Host: addr.Host(), Path: addr.Path()}
		if scheme == SchemeWS {
			tlsCfg = nil
		}
		return dialTarget{scheme: scheme, network: "tcp", address: u.String(), tls: tlsCfg}, addr.Path(), nil
	}
	return dialTarget{}, "", fault.New(fault.KindAddressSchemeMismatch, "transport.Dial", "scheme %q is not a framed transport", scheme)
}

// key identifies connections that may be shared.
func (t dialTarget) key() string {
	return t.network + "|" + t.address + "|" + tlsKey(t.tls)
}

// Dialer opens framed connections.
type Dialer struct {
	MaxMessageSize uint32
	KeepAlive      KeepAliveConfig
	ProtocolLogger log.Logger
	Logger         *slog.Logger
}

// Dial connects to t. Failures are classified as communication, timeout or
// security faults.
func (d *Dialer) Dial(ctx context.Context, t dialTarget) (*FramedConn, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultConnectTimeout)
		defer cancel()
	}

	var fio frameIO
	switch t.scheme {
	case SchemeWS, SchemeWSS:
		ws, err := d.dialWebSocket(ctx, t)
		if err != nil {
			return nil, err
		}
		fio = newWSIO(ws, d.MaxMessageSize)
	default:
		conn, err := d.dialStream(ctx, t)
		if err != nil {
			return nil, err
		}
		fio = newStreamIO(conn, d.MaxMessageSize)
	}

	conn := newFramedConn(fio, connConfig{
		role:           log.RoleClient,
		keepAlive:      d.KeepAlive,
		protocolLogger: d.ProtocolLogger,
		logger:         d.Logger,
	})
	if d.Logger != nil {
		d.Logger.Debug("connection established", "conn", conn.ID(), "target", t.address)
	}
	return conn, nil
}

func (d *Dialer) dialStream(ctx context.Context, t dialTarget) (net.Conn, error) {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, t.network, t.address)
	if err != nil {
		return nil, classifyDialError("transport.Dial", fmt.Errorf("dial %s %s: %w", t.network, t.address, err))
	}
	if t.tls == nil {
		return conn, nil
	}
	tlsConn := tls.Client(conn, t.tls)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, classifyDialError("transport.Dial", fmt.Errorf("TLS handshake with %s: %w", t.address, err))
	}
	return tlsConn, nil
}

func (d *Dialer) dialWebSocket(ctx context.Context, t dialTarget) (*websocket.Conn, error) {
	wd := websocket.Dialer{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: DefaultConnectTimeout,
		Subprotocols:     []string{Subprotocol},
		TLSClientConfig:  t.tls,
	}
	ws, resp, err := wd.DialContext(ctx, t.address, nil)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			switch resp.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, fault.Wrapf(fault.KindSecurityValidation, "transport.Dial", err, "websocket upgrade rejected: %s", resp.Status)
			case http.StatusNotFound:
				return nil, fault.Wrapf(fault.KindCommunication, "transport.Dial", err, "no websocket endpoint at %s", t.address)
			}
		}
		return nil, classifyDialError("transport.Dial", fmt.Errorf("websocket dial %s: %w", t.address, err))
	}
	return ws, nil
}
