package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/svcmodel/svcmodel-go/pkg/channel"
	"github.com/svcmodel/svcmodel-go/pkg/diagnostics"
	"github.com/svcmodel/svcmodel-go/pkg/endpoint"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/log"
	"github.com/svcmodel/svcmodel-go/pkg/message"
	"github.com/svcmodel/svcmodel-go/pkg/resolve"
	"github.com/svcmodel/svcmodel-go/pkg/wire"
)

// BasicCredentials are sent as HTTP basic authentication, or in the frame
// auth field on framed transports.
type BasicCredentials struct {
	Username string
	Password string
}

// Config configures the transport of a channel factory.
type Config struct {
	// Scheme selects the transport.
	Scheme Scheme

	// Shape is the channel shape the factory produces.
	Shape channel.Shape

	// Encoder converts messages to bytes. Nil uses the text encoder for
	// HTTP and the binary encoder otherwise.
	Encoder wire.Encoder

	// TLS enables TLS on net.tcp and configures https and wss.
	TLS *TLSConfig

	// Credentials are transport-level username credentials.
	Credentials *BasicCredentials

	// Pool shares framed connections. Nil uses DefaultPool.
	Pool *Pool

	// KeepAlive probes pooled framed connections.
	KeepAlive KeepAliveConfig

	// MaxMessageSize limits frames and HTTP bodies.
	MaxMessageSize uint32

	// Target, if set, is resolved and probed when the factory opens.
	Target *resolve.ResourceRequest

	// Resolver resolves Target. Nil uses resolve.Static.
	Resolver resolve.Resolver

	Logger         *slog.Logger
	ProtocolLogger log.Logger
	Diagnostics    diagnostics.Sink
}

// Factory is the innermost layer factory of every channel stack.
type Factory struct {
	cfg    Config
	dialer *Dialer
	pool   *Pool
	http   *httpClient
	diag   diagnostics.Sink
	plog   log.Logger

	mu       sync.Mutex
	resolved *endpoint.Address
}

// NewFactory validates cfg and creates an unopened transport factory.
func NewFactory(cfg Config) (*Factory, error) {
	if _, err := ParseScheme(string(cfg.Scheme)); err != nil {
		return nil, err
	}
	if !cfg.Scheme.CanBuildShape(cfg.Shape) {
		return nil, fault.New(fault.KindUnsupportedShape, "transport.NewFactory",
			"%s transport cannot build %s channels", cfg.Scheme, cfg.Shape)
	}
	if cfg.Encoder == nil {
		kind := wire.KindBinary
		if cfg.Scheme.IsHTTP() {
			kind = wire.KindText
		}
		enc, err := wire.NewEncoder(kind, message.Soap12WSAddressing10)
		if err != nil {
			return nil, err
		}
		cfg.Encoder = enc
	}
	if cfg.Scheme == SchemePipe && cfg.TLS != nil {
		return nil, fault.New(fault.KindConfiguration, "transport.NewFactory", "net.pipe does not support TLS")
	}
	if cfg.Scheme.Secure() && cfg.TLS == nil {
		cfg.TLS = &TLSConfig{}
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}
	if cfg.Pool == nil {
		cfg.Pool = DefaultPool()
	}

	f := &Factory{
		cfg:  cfg,
		pool: cfg.Pool,
		diag: diagnostics.OrNoop(cfg.Diagnostics),
		plog: log.OrNoop(cfg.ProtocolLogger),
		dialer: &Dialer{
			MaxMessageSize: cfg.MaxMessageSize,
			KeepAlive:      cfg.KeepAlive,
			ProtocolLogger: cfg.ProtocolLogger,
			Logger:         cfg.Logger,
		},
	}
	if cfg.Scheme.IsHTTP() {
		f.http = newHTTPClient(f)
	}
	return f, nil
}

// Scheme returns the transport scheme.
func (f *Factory) Scheme() Scheme { return f.cfg.Scheme }

// Encoder returns the message encoder.
func (f *Factory) Encoder() wire.Encoder { return f.cfg.Encoder }

// ResolvedAddress returns the address Target resolved to, or nil.
func (f *Factory) ResolvedAddress() *endpoint.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolved
}

// Open resolves and probes Target when configured.
func (f *Factory) Open(ctx context.Context) error {
	if f.cfg.Target == nil {
		return nil
	}
	resolver := f.cfg.Resolver
	if resolver == nil {
		resolver = &resolve.Static{}
	}
	addr, err := resolver.Resolve(ctx, *f.cfg.Target)
	if err != nil {
		return fault.Wrap(fault.KindCommunication, "transport.Open", err)
	}
	if addr.Scheme() != string(f.cfg.Scheme) {
		return fault.New(fault.KindAddressSchemeMismatch, "transport.Open",
			"resolved %s for %s transport", addr, f.cfg.Scheme)
	}
	if err := f.probe(ctx, addr); err != nil {
		return err
	}

	f.mu.Lock()
	f.resolved = addr
	f.mu.Unlock()
	if f.cfg.Logger != nil {
		f.cfg.Logger.Debug("transport target resolved", "target", f.cfg.Target.String(), "address", addr.String())
	}
	return nil
}

// probe checks that something accepts connections at addr.
func (f *Factory) probe(ctx context.Context, addr *endpoint.Address) error {
	if f.http != nil {
		return f.http.warm(ctx, addr)
	}
	t, _, err := f.target(addr)
	if err != nil {
		return err
	}
	lease, err := f.pool.Acquire(ctx, f.dialer, t, f.exclusive())
	if err != nil {
		return f.unreachable(addr, err)
	}
	lease.Abort()
	return nil
}

// Close releases idle HTTP connections.
func (f *Factory) Close(context.Context) error {
	if f.http != nil {
		f.http.closeIdle()
	}
	return nil
}

// Abort releases idle HTTP connections.
func (f *Factory) Abort() {
	if f.http != nil {
		f.http.closeIdle()
	}
}

// NewLayer creates the transport layer of a channel to addr.
func (f *Factory) NewLayer(addr *endpoint.Address, inner channel.Layer) (channel.Layer, error) {
	if inner != nil {
		return nil, fault.New(fault.KindConfiguration, "transport.NewLayer", "transport must be the innermost layer")
	}
	scheme, err := ParseScheme(addr.Scheme())
	if err != nil || scheme != f.cfg.Scheme || addr.Scheme() != string(f.cfg.Scheme) {
		return nil, fault.New(fault.KindAddressSchemeMismatch, "transport.NewLayer",
			"address scheme %q does not match %s transport", addr.Scheme(), f.cfg.Scheme)
	}
	if f.http != nil {
		return &httpLayer{f: f, addr: addr}, nil
	}
	t, path, err := f.target(addr)
	if err != nil {
		return nil, err
	}
	return &framedLayer{f: f, addr: addr, target: t, path: path}, nil
}

func (f *Factory) exclusive() bool {
	return f.cfg.Shape == channel.ShapeDuplex
}

func (f *Factory) target(addr *endpoint.Address) (dialTarget, string, error) {
	var tc *tls.Config
	if f.cfg.TLS != nil {
		var err error
		tc, err = NewClientTLSConfig(f.cfg.TLS, addr)
		if err != nil {
			return dialTarget{}, "", err
		}
	}
	return targetFor(addr, f.cfg.Scheme, tc)
}

// unreachable classifies a connection failure to addr and reports
// authentication failures to diagnostics.
func (f *Factory) unreachable(addr *endpoint.Address, err error) error {
	switch fault.KindOf(err) {
	case fault.KindSecurityValidation:
		f.diag.Emit(context.Background(), diagnostics.TransportAuthenticationFailure,
			"transport authentication failed", slog.String("endpoint", addr.String()), slog.String("error", err.Error()))
		return err
	case fault.KindUnknown:
		return fault.Wrapf(fault.KindCommunication, "transport.Open", err, "could not connect to %s", addr)
	default:
		return err
	}
}

// statusError maps a non-success transport status to a fault.
func (f *Factory) statusError(addr *endpoint.Address, status wire.Status, detail string) error {
	const op = "transport.Request"
	if detail == "" {
		detail = status.String()
	}
	switch status {
	case wire.StatusUnauthorized:
		f.diag.Emit(context.Background(), diagnostics.TransportAuthenticationFailure,
			"credentials rejected by service", slog.String("endpoint", addr.String()))
		return fault.New(fault.KindSecurityValidation, op, "%s rejected the credentials: %s", addr, detail)
	case wire.StatusBadRequest, wire.StatusUnsupportedMedia:
		return fault.New(fault.KindProtocol, op, "%s rejected the message: %s", addr, detail)
	case wire.StatusNotFound:
		return fault.New(fault.KindCommunication, op, "there was no endpoint listening at %s", addr)
	default:
		return fault.New(fault.KindCommunication, op, "%s failed: %s", addr, detail)
	}
}

// decode turns a reply payload into a message and logs it.
func (f *Factory) decode(data []byte, contentType string, connID string, addr *endpoint.Address, sentAt time.Time) (*message.Message, error) {
	msg, err := f.cfg.Encoder.Decode(data, contentType)
	if err != nil {
		return nil, fault.Wrap(fault.KindProtocol, "transport.Decode", err)
	}
	f.logMessage(log.DirectionIn, msg, len(data), connID, addr, sentAt)
	return msg, nil
}

// encode serializes an outbound message and logs it.
func (f *Factory) encode(msg *message.Message, connID string, addr *endpoint.Address) ([]byte, error) {
	data, err := f.cfg.Encoder.Encode(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Action(), err)
	}
	f.logMessage(log.DirectionOut, msg, len(data), connID, addr, time.Time{})
	return data, nil
}

func (f *Factory) logMessage(dir log.Direction, msg *message.Message, size int, connID string, addr *endpoint.Address, sentAt time.Time) {
	if f.cfg.ProtocolLogger == nil {
		return
	}
	ev := &log.MessageEvent{
		Type:        log.MessageTypeRequest,
		Action:      msg.Action(),
		MessageID:   msg.ID(),
		RelatesTo:   msg.RelatesTo(),
		ContentType: f.cfg.Encoder.ContentType(),
		Size:        size,
	}
	switch {
	case msg.IsFault():
		ev.Type = log.MessageTypeFault
		ev.FaultCode = msg.Fault().Code
	case dir == log.DirectionIn:
		ev.Type = log.MessageTypeReply
	case f.cfg.Shape != channel.ShapeRequest:
		ev.Type = log.MessageTypeOneWay
	}
	if !sentAt.IsZero() {
		elapsed := time.Since(sentAt)
		ev.Elapsed = &elapsed
	}
	f.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerEncoder,
		Category:     log.CategoryMessage,
		LocalRole:    log.RoleClient,
		Endpoint:     addr.String(),
		Message:      ev,
	})
}
