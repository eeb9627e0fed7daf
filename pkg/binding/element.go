package binding

import (
	"github.com/svcmodel/svcmodel-go/pkg/channel"
	"github.com/svcmodel/svcmodel-go/pkg/message"
	"github.com/svcmodel/svcmodel-go/pkg/security"
	"github.com/svcmodel/svcmodel-go/pkg/transport"
	"github.com/svcmodel/svcmodel-go/pkg/wire"
)

// ElementKind classifies binding elements.
type ElementKind uint8

const (
	KindTransport ElementKind = iota
	KindEncoding
	KindSecurity
	KindCustom
)

// String returns the element kind name.
func (k ElementKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindEncoding:
		return "encoding"
	case KindSecurity:
		return "security"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Element is one configured stage of a binding.
type Element interface {
	Kind() ElementKind

	// CanBuildShape reports whether the element supports shape.
	CanBuildShape(shape channel.Shape) bool

	// BuildChannelFactory builds the element's layer factory. Elements
	// that only configure the context return nil.
	BuildChannelFactory(shape channel.Shape, ctx *BuildContext) (channel.LayerFactory, error)
}

// TransportElement selects the transport. It must be the last element.
type TransportElement struct {
	Scheme transport.Scheme

	// TLS configures https and wss, and enables TLS on net.tcp.
	TLS *transport.TLSConfig

	MaxMessageSize uint32
	KeepAlive      transport.KeepAliveConfig
}

// Kind returns KindTransport.
func (e *TransportElement) Kind() ElementKind { return KindTransport }

// CanBuildShape reports the transport's capability.
func (e *TransportElement) CanBuildShape(shape channel.Shape) bool {
	return e.Scheme.CanBuildShape(shape)
}

// BuildChannelFactory creates the transport factory from the context.
func (e *TransportElement) BuildChannelFactory(shape channel.Shape, ctx *BuildContext) (channel.LayerFactory, error) {
	tlsCfg := e.TLS
	if sec := ctx.Security; sec != nil {
		if sec.Mode.RequiresTLS() && tlsCfg == nil {
			tlsCfg = &transport.TLSConfig{}
		}
		if tlsCfg != nil {
			merged := *tlsCfg
			if sec.Credentials.Certificate != nil {
				merged.Certificates = append(merged.Certificates, *sec.Credentials.Certificate)
			}
			if sec.Credentials.RootCAs != nil {
				merged.RootCAs = sec.Credentials.RootCAs
			}
			tlsCfg = &merged
		}
	}
	p := ctx.Params
	f, err := transport.NewFactory(transport.Config{
		Scheme:         e.Scheme,
		Shape:          shape,
		Encoder:        ctx.Encoder,
		TLS:            tlsCfg,
		Credentials:    ctx.TransportCredentials,
		Pool:           p.Pool,
		KeepAlive:      e.KeepAlive,
		MaxMessageSize: e.MaxMessageSize,
		Target:         p.Target,
		Resolver:       p.Resolver,
		Logger:         p.Logger,
		ProtocolLogger: p.ProtocolLogger,
		Diagnostics:    p.Diagnostics,
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// EncodingElement selects the message encoder and version.
type EncodingElement struct {
	Encoding wire.Kind
	Version  message.Version
}

// Kind returns KindEncoding.
func (e *EncodingElement) Kind() ElementKind { return KindEncoding }

// CanBuildShape accepts every shape.
func (e *EncodingElement) CanBuildShape(channel.Shape) bool { return true }

// BuildChannelFactory registers the encoder in the context.
func (e *EncodingElement) BuildChannelFactory(_ channel.Shape, ctx *BuildContext) (channel.LayerFactory, error) {
	enc, err := wire.NewEncoder(e.Encoding, e.Version)
	if err != nil {
		return nil, err
	}
	ctx.Encoder = enc
	return nil, nil
}

// SecurityElement secures the stack.
type SecurityElement struct {
	Settings security.Settings
}

// Kind returns KindSecurity.
func (e *SecurityElement) Kind() ElementKind { return KindSecurity }

// CanBuildShape accepts every shape.
func (e *SecurityElement) CanBuildShape(channel.Shape) bool { return true }

// BuildChannelFactory registers transport credentials and returns the
// message layer when the settings need one.
func (e *SecurityElement) BuildChannelFactory(_ channel.Shape, ctx *BuildContext) (channel.LayerFactory, error) {
	if err := e.Settings.Validate(); err != nil {
		return nil, err
	}
	settings := e.Settings
	ctx.Security = &settings
	if user, pass, ok := settings.TransportCredentials(); ok {
		ctx.TransportCredentials = &transport.BasicCredentials{Username: user, Password: pass}
	}
	if !settings.HasMessageLayer() {
		return nil, nil
	}
	f, err := security.NewLayerFactory(security.LayerConfig{
		Settings:    settings,
		Logger:      ctx.Params.Logger,
		Diagnostics: ctx.Params.Diagnostics,
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// CustomElement applies caller-supplied transforms to every message.
type CustomElement struct {
	Name     string
	Outbound channel.Transform
	Inbound  channel.Transform

	// Shapes restricts the element to these shapes. Empty allows all.
	Shapes []channel.Shape
}

// Kind returns KindCustom.
func (e *CustomElement) Kind() ElementKind { return KindCustom }

// CanBuildShape reports whether shape is listed in Shapes.
func (e *CustomElement) CanBuildShape(shape channel.Shape) bool {
	if len(e.Shapes) == 0 {
		return true
	}
	for _, s := range e.Shapes {
		if s == shape {
			return true
		}
	}
	return false
}

// BuildChannelFactory returns a transform factory.
func (e *CustomElement) BuildChannelFactory(channel.Shape, *BuildContext) (channel.LayerFactory, error) {
	return &channel.TransformFactory{Outbound: e.Outbound, Inbound: e.Inbound}, nil
}

var (
	_ Element = (*TransportElement)(nil)
	_ Element = (*EncodingElement)(nil)
	_ Element = (*SecurityElement)(nil)
	_ Element = (*CustomElement)(nil)
	_ Element = (*CompressionElement)(nil)
)
