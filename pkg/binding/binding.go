package binding

import (
	"fmt"

	"github.com/svcmodel/svcmodel-go/pkg/channel"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/message"
	"github.com/svcmodel/svcmodel-go/pkg/transport"
)

// Binding is an immutable, validated element stack.
type Binding struct {
	name       string
	elements   []Element
	timeouts   channel.Timeouts
	concurrent bool
}

// Option configures a Binding.
type Option func(*Binding)

// WithTimeouts sets the open, close and send timeouts. Zero fields keep
// the one minute default.
func WithTimeouts(t channel.Timeouts) Option {
	return func(b *Binding) { b.timeouts = t }
}

// WithConcurrentRequests allows several outstanding requests per channel.
func WithConcurrentRequests(enabled bool) Option {
	return func(b *Binding) { b.concurrent = enabled }
}

// New validates elements and returns the binding. elements are ordered
// outermost first; the transport must be last.
func New(name string, elements []Element, opts ...Option) (*Binding, error) {
	const op = "binding.New"
	if len(elements) == 0 {
		return nil, fault.New(fault.KindConfiguration, op, "binding %q has no elements", name)
	}

	var (
		transports, encodings, securities int
		sec                               *SecurityElement
	)
	for i, e := range elements {
		if e == nil {
			return nil, fault.New(fault.KindConfiguration, op, "binding %q: element %d is nil", name, i)
		}
		switch e.Kind() {
		case KindTransport:
			transports++
		case KindEncoding:
			encodings++
		case KindSecurity:
			securities++
			sec, _ = e.(*SecurityElement)
		}
	}
	switch {
	case transports == 0:
		return nil, fault.New(fault.KindConfiguration, op, "binding %q has no transport element", name)
	case transports > 1:
		return nil, fault.New(fault.KindConfiguration, op, "binding %q has %d transport elements", name, transports)
	case elements[len(elements)-1].Kind() != KindTransport:
		return nil, fault.New(fault.KindConfiguration, op, "binding %q: the transport element must be last", name)
	case encodings > 1:
		return nil, fault.New(fault.KindConfiguration, op, "binding %q has %d encoding elements", name, encodings)
	case securities > 1:
		return nil, fault.New(fault.KindConfiguration, op, "binding %q has %d security elements", name, securities)
	}

	if te, ok := elements[len(elements)-1].(*TransportElement); ok {
		if _, err := transport.ParseScheme(string(te.Scheme)); err != nil {
			return nil, err
		}
		if sec != nil {
			if err := checkSecurity(te, sec); err != nil {
				return nil, fault.Wrapf(fault.KindConfiguration, op, err, "binding %q", name)
			}
		}
	}

	b := &Binding{
		name:     name,
		elements: append([]Element(nil), elements...),
		timeouts: channel.DefaultTimeouts(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func checkSecurity(te *TransportElement, sec *SecurityElement) error {
	if err := sec.Settings.Validate(); err != nil {
		return err
	}
	if !sec.Settings.Mode.RequiresTLS() {
		return nil
	}
	switch te.Scheme {
	case transport.SchemeHTTPS, transport.SchemeWSS, transport.SchemeTCP:
		return nil
	}
	return fmt.Errorf("security mode %s is not available over %s", sec.Settings.Mode, te.Scheme)
}

// Name returns the binding name.
func (b *Binding) Name() string { return b.name }

// Elements returns a copy of the elements, outermost first.
func (b *Binding) Elements() []Element {
	return append([]Element(nil), b.elements...)
}

// Transport returns the transport element.
func (b *Binding) Transport() Element {
	return b.elements[len(b.elements)-1]
}

// Scheme returns the transport scheme, or "" for a foreign transport
// element.
func (b *Binding) Scheme() transport.Scheme {
	if te, ok := b.Transport().(*TransportElement); ok {
		return te.Scheme
	}
	return ""
}

// MessageVersion is the version of the encoding element, or SOAP 1.2 with
// WS-Addressing when the transport's default encoder is used.
func (b *Binding) MessageVersion() message.Version {
	for _, e := range b.elements {
		if enc, ok := e.(*EncodingElement); ok {
			return enc.Version
		}
	}
	return message.Soap12WSAddressing10
}

// Timeouts returns the configured timeouts.
func (b *Binding) Timeouts() channel.Timeouts { return b.timeouts }

// ConcurrentRequests reports whether channels accept concurrent requests.
func (b *Binding) ConcurrentRequests() bool { return b.concurrent }

// CanBuildShape reports whether every element supports shape.
func (b *Binding) CanBuildShape(shape channel.Shape) bool {
	return b.unsupported(shape) == nil
}

func (b *Binding) unsupported(shape channel.Shape) Element {
	for _, e := range b.elements {
		if !e.CanBuildShape(shape) {
			return e
		}
	}
	return nil
}

// BuildChannelFactory builds an unopened channel factory producing shape
// channels.
func (b *Binding) BuildChannelFactory(shape channel.Shape, params Parameters) (*channel.Factory, error) {
	const op = "binding.BuildChannelFactory"
	if e := b.unsupported(shape); e != nil {
		return nil, fault.New(fault.KindUnsupportedShape, op,
			"binding %q: %s cannot build %s channels", b.name, describe(e), shape)
	}

	ctx := &BuildContext{Params: params}
	layers := make([]channel.LayerFactory, 0, len(b.elements))
	for _, e := range b.elements {
		lf, err := e.BuildChannelFactory(shape, ctx)
		if err != nil {
			for i := len(layers) - 1; i >= 0; i-- {
				layers[i].Abort()
			}
			return nil, err
		}
		if lf != nil {
			layers = append(layers, lf)
		}
	}

	return channel.NewFactory(channel.FactoryConfig{
		Shape:              shape,
		MessageVersion:     b.MessageVersion(),
		Timeouts:           b.timeouts,
		ConcurrentRequests: b.concurrent,
		Logger:             params.Logger,
		ProtocolLogger:     params.ProtocolLogger,
		Diagnostics:        params.Diagnostics,
	}, layers), nil
}

func describe(e Element) string {
	switch el := e.(type) {
	case *TransportElement:
		return el.Scheme.String() + " transport"
	case *CustomElement:
		if el.Name != "" {
			return "custom element " + el.Name
		}
	}
	return e.Kind().String() + " element"
}
