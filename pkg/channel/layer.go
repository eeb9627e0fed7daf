package channel

import (
	"context"

	"github.com/svcmodel/svcmodel-go/pkg/endpoint"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/message"
)

// LayerFactory is built by one binding element. It is opened once with the
// channel factory and creates one Layer per channel.
type LayerFactory interface {
	// Open prepares shared resources (e.g. resolves and probes a target).
	Open(ctx context.Context) error

	// Close releases shared resources gracefully.
	Close(ctx context.Context) error

	// Abort releases shared resources immediately.
	Abort()

	// NewLayer creates the layer for a channel to addr. inner is the next
	// layer towards the transport, nil for the transport itself.
	NewLayer(addr *endpoint.Address, inner Layer) (Layer, error)
}

// Layer is one per-channel stage of the stack. Outbound messages travel
// from the outermost layer towards the transport; replies travel back.
type Layer interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	Abort()

	// Request sends msg and returns the correlated reply.
	Request(ctx context.Context, msg *message.Message) (*message.Message, error)

	// Send sends msg without waiting for a reply.
	Send(ctx context.Context, msg *message.Message) error

	// Receive returns the next message pushed by the peer.
	Receive(ctx context.Context) (*message.Message, error)
}

// Transform rewrites a message passing through a TransformLayer.
type Transform func(ctx context.Context, msg *message.Message) (*message.Message, error)

// TransformLayer delegates to Inner and applies Outbound to messages
// leaving and Inbound to messages arriving. A nil transform passes the
// message through unchanged.
type TransformLayer struct {
	Inner    Layer
	Outbound Transform
	Inbound  Transform
}

// Open opens the inner layer.
func (l *TransformLayer) Open(ctx context.Context) error { return l.Inner.Open(ctx) }

// Close closes the inner layer.
func (l *TransformLayer) Close(ctx context.Context) error { return l.Inner.Close(ctx) }

// Abort aborts the inner layer.
func (l *TransformLayer) Abort() { l.Inner.Abort() }

// Request transforms msg, forwards it and transforms the reply.
func (l *TransformLayer) Request(ctx context.Context, msg *message.Message) (*message.Message, error) {
	out, err := l.out(ctx, msg)
	if err != nil {
		return nil, err
	}
	reply, err := l.Inner.Request(ctx, out)
	if err != nil {
		return nil, err
	}
	if reply.IsFault() {
		return reply, nil
	}
	return l.in(ctx, reply)
}

// Send transforms msg and forwards it.
func (l *TransformLayer) Send(ctx context.Context, msg *message.Message) error {
	out, err := l.out(ctx, msg)
	if err != nil {
		return err
	}
	return l.Inner.Send(ctx, out)
}

// Receive receives from the inner layer and transforms the result.
func (l *TransformLayer) Receive(ctx context.Context) (*message.Message, error) {
	msg, err := l.Inner.Receive(ctx)
	if err != nil {
		return nil, err
	}
	return l.in(ctx, msg)
}

func (l *TransformLayer) out(ctx context.Context, msg *message.Message) (*message.Message, error) {
	if l.Outbound == nil {
		return msg, nil
	}
	return l.Outbound(ctx, msg)
}

func (l *TransformLayer) in(ctx context.Context, msg *message.Message) (*message.Message, error) {
	if l.Inbound == nil {
		return msg, nil
	}
	return l.Inbound(ctx, msg)
}

// TransformFactory is a LayerFactory producing TransformLayers. It holds no
// shared resources.
type TransformFactory struct {
	Outbound Transform
	Inbound  Transform
}

// Open is a no-op.
func (f *TransformFactory) Open(context.Context) error { return nil }

// Close is a no-op.
func (f *TransformFactory) Close(context.Context) error { return nil }

// Abort is a no-op.
func (f *TransformFactory) Abort() {}

// NewLayer wraps inner.
func (f *TransformFactory) NewLayer(_ *endpoint.Address, inner Layer) (Layer, error) {
	if inner == nil {
		return nil, fault.New(fault.KindConfiguration, "channel.TransformFactory", "transform layer requires an inner layer")
	}
	return &TransformLayer{Inner: inner, Outbound: f.Outbound, Inbound: f.Inbound}, nil
}

var (
	_ Layer        = (*TransformLayer)(nil)
	_ LayerFactory = (*TransformFactory)(nil)
)
