package transport

import (
	"context"
	"net"

	"github.com/svcmodel/svcmodel-go/pkg/channel"
	"github.com/svcmodel/svcmodel-go/pkg/wire"
)

// Exchanger carries frames over one connection.
// Implemented by FramedConn.
type Exchanger interface {
	ID() string
	RemoteAddr() net.Addr
	RoundTrip(ctx context.Context, f *wire.Frame) (*wire.Frame, error)
	Send(ctx context.Context, f *wire.Frame) error
	Receive(ctx context.Context) (*wire.Frame, error)
	Close(ctx context.Context) error
	Abort()
	Done() <-chan struct{}
}

// Listener accepts framed connections.
// Implemented by Server.
type Listener interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Addr() net.Addr
	ConnectionCount() int
}

// FrameReadWriter provides length-prefixed frame I/O.
// Implemented by Framer.
type FrameReadWriter interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
}

// Compile-time interface satisfaction checks.
var (
	_ Exchanger            = (*FramedConn)(nil)
	_ Listener             = (*Server)(nil)
	_ FrameReadWriter      = (*Framer)(nil)
	_ frameIO              = (*streamIO)(nil)
	_ frameIO              = (*wsIO)(nil)
	_ channel.LayerFactory = (*Factory)(nil)
	_ channel.Layer        = (*httpLayer)(nil)
)
