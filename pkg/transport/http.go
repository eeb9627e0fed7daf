package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/im7mortal/kmutex"

	"github.com/svcmodel/svcmodel-go/pkg/endpoint"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/message"
	"github.com/svcmodel/svcmodel-go/pkg/wire"
	"github.com/svcmodel/svcmodel-go/pkg/version"
)

// SOAPActionHeader carries the action of SOAP 1.1 requests.
const SOAPActionHeader = "SOAPAction"

type addressKey struct{}

// httpClient is the HTTP transport shared by all channels of a factory.
// Dials to the same host are serialized so a burst of channels reuses the
// first connection instead of racing to open many.
type httpClient struct {
	f         *Factory
	transport *http.Transport
	client    *http.Client
	dialLocks *kmutex.Kmutex
}

func newHTTPClient(f *Factory) *httpClient {
	hc := &httpClient{f: f, dialLocks: kmutex.New()}
	hc.transport = &http.Transport{
		DialContext:         hc.dialContext,
		DialTLSContext:      hc.dialTLSContext,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	}
	hc.client = &http.Client{Transport: hc.transport}
	return hc
}

func (hc *httpClient) dialContext(ctx context.Context, network, hostport string) (net.Conn, error) {
	hc.dialLocks.Lock(hostport)
	defer hc.dialLocks.Unlock(hostport)

	var d net.Dialer
	return d.DialContext(ctx, network, hostport)
}

// dialTLSContext performs the handshake against the TLS configuration of
// the endpoint address carried in ctx, so identity checks apply per
// endpoint.
func (hc *httpClient) dialTLSContext(ctx context.Context, network, hostport string) (net.Conn, error) {
	addr, _ := ctx.Value(addressKey{}).(*endpoint.Address)
	if addr == nil {
		return nil, fmt.Errorf("no endpoint address for %s", hostport)
	}
	tc, err := NewClientTLSConfig(hc.f.cfg.TLS, addr)
	if err != nil {
		return nil, err
	}
	conn, err := hc.dialContext(ctx, network, hostport)
	if err != nil {
		return nil, err
	}
	tlsConn := tls.Client(conn, tc)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// warm opens and discards a connection to addr to prove it is reachable.
func (hc *httpClient) warm(ctx context.Context, addr *endpoint.Address) error {
	ctx = context.WithValue(ctx, addressKey{}, addr)
	var (
		conn net.Conn
		err  error
	)
	if addr.Scheme() == string(SchemeHTTPS) {
		conn, err = hc.dialTLSContext(ctx, "tcp", addr.Host())
	} else {
		conn, err = hc.dialContext(ctx, "tcp", addr.Host())
	}
	if err != nil {
		return hc.f.unreachable(addr, classifyDialError("transport.Open", err))
	}
	return conn.Close()
}

func (hc *httpClient) closeIdle() {
	hc.transport.CloseIdleConnections()
}

// post sends one message. A nil reply with nil error means the service
// accepted a one-way message.
func (hc *httpClient) post(ctx context.Context, addr *endpoint.Address, msg *message.Message) (*message.Message, error) {
	const op = "transport.Request"
	enc := hc.f.cfg.Encoder

	data, err := hc.f.encode(msg, "", addr)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(context.WithValue(ctx, addressKey{}, addr),
		http.MethodPost, addr.String(), bytes.NewReader(data))
	if err != nil {
		return nil, fault.Wrap(fault.KindAddress, op, err)
	}
	contentType := enc.ContentType()
	if enc.MessageVersion().Envelope == message.EnvelopeSoap11 {
		req.Header.Set(SOAPActionHeader, strconv.Quote(msg.Action()))
	} else if msg.Action() != "" {
		contentType += "; action=" + strconv.Quote(msg.Action())
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", version.UserAgent())
	if c := hc.f.cfg.Credentials; c != nil {
		req.SetBasicAuth(c.Username, c.Password)
	}

	sentAt := time.Now()
	resp, err := hc.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// The connection may still carry the abandoned exchange.
			hc.closeIdle()
			return nil, ctx.Err()
		}
		return nil, hc.f.unreachable(addr, classifyDialError(op, err))
	}
	defer resp.Body.Close()

	limit := int64(hc.f.cfg.MaxMessageSize)
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fault.Wrapf(fault.KindCommunication, op, err, "reading reply from %s", addr)
	}
	if int64(len(body)) > limit {
		return nil, fault.New(fault.KindProtocol, op, "reply from %s exceeds %d bytes", addr, limit)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		if len(body) == 0 {
			return nil, nil
		}
	case resp.StatusCode == http.StatusInternalServerError && len(body) > 0:
		// Fault envelope.
	default:
		return nil, hc.f.statusError(addr, wire.StatusFromHTTP(resp.StatusCode), resp.Status)
	}
	return hc.f.decode(body, resp.Header.Get("Content-Type"), "", addr, sentAt)
}

// httpLayer is the per-channel view of the HTTP transport.
type httpLayer struct {
	f    *Factory
	addr *endpoint.Address
}

func (l *httpLayer) Open(ctx context.Context) error {
	if err := l.f.http.warm(ctx, l.addr); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (l *httpLayer) Request(ctx context.Context, msg *message.Message) (*message.Message, error) {
	reply, err := l.f.http.post(ctx, l.addr, msg)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, fault.New(fault.KindProtocol, "transport.Request", "%s returned an empty reply", l.addr)
	}
	return reply, nil
}

func (l *httpLayer) Send(ctx context.Context, msg *message.Message) error {
	reply, err := l.f.http.post(ctx, l.addr, msg)
	if err != nil {
		return err
	}
	if reply != nil && reply.IsFault() {
		return reply.Fault()
	}
	return nil
}

func (l *httpLayer) Receive(context.Context) (*message.Message, error) {
	return nil, fault.New(fault.KindInvalidOperation, "transport.Receive", "http transport cannot receive")
}

// Close is a no-op. Connections belong to the factory's client.
func (l *httpLayer) Close(context.Context) error { return nil }

func (l *httpLayer) Abort() {}
