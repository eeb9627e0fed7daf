package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/svcmodel/svcmodel-go/pkg/channel"
	"github.com/svcmodel/svcmodel-go/pkg/endpoint"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/message"
	"github.com/svcmodel/svcmodel-go/pkg/wire"
)

// framedLayer carries a channel over a leased framed connection.
type framedLayer struct {
	f      *Factory
	addr   *endpoint.Address
	target dialTarget
	path   string

	mu    sync.Mutex
	lease *Lease
}

func (l *framedLayer) Open(ctx context.Context) error {
	lease, err := l.f.pool.Acquire(ctx, l.f.dialer, l.target, l.f.exclusive())
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return l.f.unreachable(l.addr, err)
	}
	l.mu.Lock()
	l.lease = lease
	l.mu.Unlock()
	return nil
}

func (l *framedLayer) current() (*Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lease == nil {
		return nil, fault.New(fault.KindInvalidOperation, "transport", "connection to %s is not open", l.addr)
	}
	return l.lease, nil
}

func (l *framedLayer) Request(ctx context.Context, msg *message.Message) (*message.Message, error) {
	lease, err := l.current()
	if err != nil {
		return nil, err
	}
	conn := lease.Conn()

	data, err := l.f.encode(msg, conn.ID(), l.addr)
	if err != nil {
		return nil, err
	}
	sentAt := time.Now()
	reply, err := conn.RoundTrip(ctx, &wire.Frame{
		Path:        l.path,
		ContentType: l.f.cfg.Encoder.ContentType(),
		Auth:        l.auth(),
		Body:        data,
	})
	if err != nil {
		return nil, l.ioError(ctx, lease, err)
	}
	return l.decode(reply, conn.ID(), sentAt)
}

func (l *framedLayer) Send(ctx context.Context, msg *message.Message) error {
	lease, err := l.current()
	if err != nil {
		return err
	}
	conn := lease.Conn()

	data, err := l.f.encode(msg, conn.ID(), l.addr)
	if err != nil {
		return err
	}
	kind := wire.FrameOneWay
	if l.f.cfg.Shape == channel.ShapeDuplex {
		kind = wire.FrameDuplex
	}
	err = conn.Send(ctx, &wire.Frame{
		Kind:        kind,
		Path:        l.path,
		ContentType: l.f.cfg.Encoder.ContentType(),
		Auth:        l.auth(),
		Body:        data,
	})
	if err != nil {
		return l.ioError(ctx, lease, err)
	}
	return nil
}

func (l *framedLayer) Receive(ctx context.Context) (*message.Message, error) {
	lease, err := l.current()
	if err != nil {
		return nil, err
	}
	f, err := lease.Conn().Receive(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, l.ioError(ctx, lease, err)
	}
	return l.decode(f, lease.Conn().ID(), time.Time{})
}

func (l *framedLayer) Close(ctx context.Context) error {
	l.mu.Lock()
	lease := l.lease
	l.mu.Unlock()
	if lease == nil {
		return nil
	}
	if err := lease.Release(ctx); err != nil {
		if errors.Is(err, ErrCloseTimeout) {
			return fault.Wrapf(fault.KindTimedOut, "transport.Close", err, "closing connection to %s", l.addr)
		}
		return fault.Wrap(fault.KindCommunication, "transport.Close", err)
	}
	return nil
}

func (l *framedLayer) Abort() {
	l.mu.Lock()
	lease := l.lease
	l.mu.Unlock()
	if lease != nil {
		lease.Abort()
	}
}

// ioError classifies a failed exchange. A caller timeout leaves the
// connection in doubt, so it is evicted from the pool.
func (l *framedLayer) ioError(ctx context.Context, lease *Lease, err error) error {
	if ctx.Err() != nil {
		lease.Evict()
		return err
	}
	if fault.KindOf(err) != fault.KindUnknown {
		return err
	}
	return fault.Wrapf(fault.KindCommunication, "transport", err, "connection to %s failed", l.addr)
}

func (l *framedLayer) decode(f *wire.Frame, connID string, sentAt time.Time) (*message.Message, error) {
	if !f.Status.IsSuccess() && !(f.Status == wire.StatusInternal && len(f.Body) > 0) {
		return nil, l.f.statusError(l.addr, f.Status, f.Detail)
	}
	return l.f.decode(f.Body, f.ContentType, connID, l.addr, sentAt)
}

func (l *framedLayer) auth() *wire.FrameAuth {
	c := l.f.cfg.Credentials
	if c == nil {
		return nil
	}
	return &wire.FrameAuth{Username: c.Username, Password: c.Password}
}

var _ channel.Layer = (*framedLayer)(nil)
