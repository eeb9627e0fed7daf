package security

import (
	"context"
	"log/slog"
	"time"

	"github.com/svcmodel/svcmodel-go/pkg/channel"
	"github.com/svcmodel/svcmodel-go/pkg/diagnostics"
	"github.com/svcmodel/svcmodel-go/pkg/endpoint"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/message"
)

// LayerConfig configures the message security layer.
type LayerConfig struct {
	Settings Settings

	// Logger for operational logging (nil disables).
	Logger *slog.Logger

	// Diagnostics receives authentication failures (nil disables).
	Diagnostics diagnostics.Sink
}

// LayerFactory builds the per-channel message security layer: it attaches
// the UsernameToken and protects outgoing messages, and verifies replies.
type LayerFactory struct {
	config    LayerConfig
	protector *Protector
	diag      diagnostics.Sink
}

// NewLayerFactory validates the settings and returns the factory.
func NewLayerFactory(config LayerConfig) (*LayerFactory, error) {
	if err := config.Settings.Validate(); err != nil {
		return nil, err
	}
	f := &LayerFactory{config: config, diag: diagnostics.OrNoop(config.Diagnostics)}
	if config.Settings.Mode == ModeMessage {
		p, err := NewProtector(config.Settings.Credentials.MessageKey)
		if err != nil {
			return nil, err
		}
		f.protector = p
	}
	return f, nil
}

// Open is a no-op.
func (f *LayerFactory) Open(context.Context) error { return nil }

// Close is a no-op.
func (f *LayerFactory) Close(context.Context) error { return nil }

// Abort is a no-op.
func (f *LayerFactory) Abort() {}

// NewLayer wraps inner with the security transforms.
func (f *LayerFactory) NewLayer(addr *endpoint.Address, inner channel.Layer) (channel.Layer, error) {
	if inner == nil {
		return nil, fault.New(fault.KindConfiguration, "security.NewLayer", "security layer requires an inner layer")
	}
	l := &layer{f: f, endpoint: addr.String()}
	l.TransformLayer = channel.TransformLayer{Inner: inner, Outbound: l.outbound, Inbound: l.inbound}
	return l, nil
}

type layer struct {
	channel.TransformLayer
	f        *LayerFactory
	endpoint string
}

// Request turns authentication faults of the service into security
// validation errors.
func (l *layer) Request(ctx context.Context, msg *message.Message) (*message.Message, error) {
	reply, err := l.TransformLayer.Request(ctx, msg)
	if err != nil {
		return nil, err
	}
	if rf := reply.Fault(); rf != nil && IsAuthenticationFault(rf) {
		l.f.diag.Emit(ctx, diagnostics.MessageAuthenticationFailure, "service rejected the message credentials",
			slog.String("endpoint", l.endpoint), slog.String("code", rf.Code))
		return nil, fault.Wrap(fault.KindSecurityValidation, "security.Request", rf)
	}
	return reply, nil
}

// IsAuthenticationFault reports whether rf rejects the caller's
// credentials or message protection.
func IsAuthenticationFault(rf *fault.RemoteFault) bool {
	return rf.Code == fault.CodeFailedAuthentication || rf.Code == fault.CodeInvalidSecurity
}

func (l *layer) outbound(_ context.Context, msg *message.Message) (*message.Message, error) {
	s := l.f.config.Settings
	if s.Credential == CredentialUserName {
		tok, err := NewUsernameToken(s.Credentials.Username, s.Credentials.Password)
		if err != nil {
			return nil, err
		}
		if msg, err = tok.Attach(msg); err != nil {
			return nil, err
		}
	}
	if l.f.protector == nil {
		return msg, nil
	}
	return l.f.protector.Protect(msg)
}

func (l *layer) inbound(ctx context.Context, msg *message.Message) (*message.Message, error) {
	if l.f.protector == nil {
		return msg, nil
	}
	out, err := l.f.protector.Unprotect(msg)
	if err != nil {
		l.f.diag.Emit(ctx, diagnostics.MessageAuthenticationFailure, "reply failed verification",
			slog.String("endpoint", l.endpoint), slog.String("error", err.Error()))
		if l.f.config.Logger != nil {
			l.f.config.Logger.Debug("security: reply rejected", "endpoint", l.endpoint, "error", err)
		}
		return nil, err
	}
	return out, nil
}

// ServerConfig configures the service side of message security.
type ServerConfig struct {
	Mode      Mode
	Key       []byte
	Validator CredentialValidator

	// RequireToken rejects requests without a UsernameToken.
	RequireToken bool

	Diagnostics diagnostics.Sink
}

// Server verifies requests and protects replies for a service host.
type Server struct {
	config    ServerConfig
	protector *Protector
	diag      diagnostics.Sink
	now       func() time.Time
}

// NewServer returns the service side of message security.
func NewServer(config ServerConfig) (*Server, error) {
	s := &Server{config: config, diag: diagnostics.OrNoop(config.Diagnostics), now: time.Now}
	if config.Mode == ModeMessage {
		p, err := NewProtector(config.Key)
		if err != nil {
			return nil, err
		}
		s.protector = p
	}
	if config.RequireToken && config.Validator == nil {
		return nil, fault.New(fault.KindConfiguration, "security.NewServer", "username tokens require a credential validator")
	}
	return s, nil
}

// Accept unprotects req and authenticates its token. It returns the
// plain request and the authenticated username, if any.
func (s *Server) Accept(ctx context.Context, req *message.Message) (*message.Message, string, error) {
	if s.protector != nil {
		plain, err := s.protector.Unprotect(req)
		if err != nil {
			s.diag.Emit(ctx, diagnostics.MessageAuthenticationFailure, "request failed verification", slog.String("error", err.Error()))
			return nil, "", err
		}
		req = plain
	}
	if !s.config.RequireToken {
		return req, "", nil
	}
	user, err := AuthenticateToken(ctx, s.config.Validator, req, s.now())
	if err != nil {
		s.diag.Emit(ctx, diagnostics.MessageAuthenticationFailure, "username token rejected", slog.String("error", err.Error()))
		return nil, "", err
	}
	s.diag.Emit(ctx, diagnostics.MessageAuthenticationSuccess, "username token accepted", slog.String("user", user))
	return req, user, nil
}

// Reply protects a reply. Faults are returned unchanged.
func (s *Server) Reply(reply *message.Message) (*message.Message, error) {
	if s.protector == nil || reply.IsFault() {
		return reply, nil
	}
	return s.protector.Protect(reply)
}

var _ channel.LayerFactory = (*LayerFactory)(nil)
