package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/svcmodel/svcmodel-go/pkg/log"
	"github.com/svcmodel/svcmodel-go/pkg/wire"
)

// Connection errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrCloseTimeout     = errors.New("close timeout")
	ErrNoHandler        = errors.New("connection does not serve requests")
)

// defaultInboundQueue bounds frames pushed by the peer that nobody has
// received yet.
const defaultInboundQueue = 32

// frameIO moves encoded frames over one underlying connection.
type frameIO interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Close() error
	RemoteAddr() net.Addr
}

// streamIO frames a byte stream (tcp, tls, unix).
type streamIO struct {
	*Framer
	conn net.Conn
}

func newStreamIO(conn net.Conn, maxSize uint32) *streamIO {
	return &streamIO{Framer: NewFramer(conn, maxSize), conn: conn}
}

func (s *streamIO) Close() error         { return s.conn.Close() }
func (s *streamIO) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

func (s *streamIO) setLogger(logger log.Logger, connID string, role log.Role) {
	s.SetLogger(logger, connID, role, addrString(s.conn.RemoteAddr()))
}

// frameLogging is implemented by frameIO variants that can capture frames.
type frameLogging interface {
	setLogger(logger log.Logger, connID string, role log.Role)
}

// RequestHandler serves frames arriving on a service-side connection. For
// request frames the returned frame is sent back as the reply; for one-way
// and duplex frames the return value is ignored.
type RequestHandler interface {
	ServeFrame(ctx context.Context, conn *FramedConn, f *wire.Frame) *wire.Frame
}

// RequestHandlerFunc adapts a function to RequestHandler.
type RequestHandlerFunc func(ctx context.Context, conn *FramedConn, f *wire.Frame) *wire.Frame

// ServeFrame calls fn.
func (fn RequestHandlerFunc) ServeFrame(ctx context.Context, conn *FramedConn, f *wire.Frame) *wire.Frame {
	return fn(ctx, conn, f)
}

// connConfig configures a FramedConn.
type connConfig struct {
	role           log.Role
	handler        RequestHandler
	keepAlive      KeepAliveConfig
	protocolLogger log.Logger
	logger         *slog.Logger
}

// FramedConn multiplexes request/reply exchanges over one framed
// connection. Replies are dispatched to the waiting caller by frame ID, so
// many channels can share one pooled connection.
type FramedConn struct {
	id      string
	io      frameIO
	role    log.Role
	handler RequestHandler
	plog    log.Logger
	logger  *slog.Logger

	nextID    atomic.Uint32
	pending   map[uint32]chan *wire.Frame
	pendingMu sync.Mutex

	inbound chan *wire.Frame

	keepAlive *keepAlive

	ctx    context.Context
	cancel context.CancelFunc

	closing   atomic.Bool
	peerClose chan struct{}
	closeOnce sync.Once
	closed    chan struct{}
	err       error

	handlers sync.WaitGroup
}

// newFramedConn wraps fio and starts its read loop.
func newFramedConn(fio frameIO, cfg connConfig) *FramedConn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &FramedConn{
		id:        uuid.NewString(),
		io:        fio,
		role:      cfg.role,
		handler:   cfg.handler,
		plog:      log.OrNoop(cfg.protocolLogger),
		logger:    cfg.logger,
		pending:   make(map[uint32]chan *wire.Frame),
		inbound:   make(chan *wire.Frame, defaultInboundQueue),
		ctx:       ctx,
		cancel:    cancel,
		peerClose: make(chan struct{}),
		closed:    make(chan struct{}),
	}
	if fl, ok := fio.(frameLogging); ok && cfg.protocolLogger != nil {
		fl.setLogger(cfg.protocolLogger, c.id, cfg.role)
	}
	c.logState("", "CONNECTED", "")

	if cfg.keepAlive.Enabled() {
		c.keepAlive = newKeepAlive(cfg.keepAlive, c.sendPing, func() {
			c.debug("keep-alive timeout", "conn", c.id)
			c.shutdown(fmt.Errorf("%w: keep-alive timeout", ErrConnectionClosed))
		})
		c.keepAlive.start()
	}
	go c.readLoop()
	return c
}

// ID returns the connection id used in protocol logs.
func (c *FramedConn) ID() string { return c.id }

// RemoteAddr returns the peer address.
func (c *FramedConn) RemoteAddr() net.Addr { return c.io.RemoteAddr() }

// TLSState returns the TLS state when the connection runs over TLS.
func (c *FramedConn) TLSState() (tls.ConnectionState, bool) {
	if s, ok := c.io.(*streamIO); ok {
		if tc, ok := s.conn.(*tls.Conn); ok {
			return tc.ConnectionState(), true
		}
	}
	if w, ok := c.io.(*wsIO); ok {
		if tc, ok := w.conn.NetConn().(*tls.Conn); ok {
			return tc.ConnectionState(), true
		}
	}
	return tls.ConnectionState{}, false
}

// Done is closed when the connection is gone.
func (c *FramedConn) Done() <-chan struct{} { return c.closed }

// Err returns why the connection ended, or nil while it is alive.
func (c *FramedConn) Err() error {
	select {
	case <-c.closed:
		return c.err
	default:
		return nil
	}
}

// Alive reports whether the connection can carry new exchanges.
func (c *FramedConn) Alive() bool {
	return c.Err() == nil && !c.closing.Load()
}

// RoundTrip sends a request frame and waits for the reply with the same ID.
// The frame ID is assigned here. On ctx expiry the pending entry is dropped
// and a late reply is discarded by the read loop.
func (c *FramedConn) RoundTrip(ctx context.Context, f *wire.Frame) (*wire.Frame, error) {
	if !c.Alive() {
		return nil, c.closedErr()
	}

	f.Kind = wire.FrameRequest
	f.ID = c.newID()
	ch := make(chan *wire.Frame, 1)

	c.pendingMu.Lock()
	c.pending[f.ID] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, f.ID)
		c.pendingMu.Unlock()
	}()

	if err := c.writeContext(ctx, f); err != nil {
		return nil, err
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, c.closedErr()
	}
}

// Send writes a one-way or duplex frame.
func (c *FramedConn) Send(ctx context.Context, f *wire.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.Alive() {
		return c.closedErr()
	}
	return c.writeContext(ctx, f)
}

// Receive returns the next frame pushed by the peer.
func (c *FramedConn) Receive(ctx context.Context) (*wire.Frame, error) {
	select {
	case f := <-c.inbound:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		// Drain frames that arrived before the connection ended.
		select {
		case f := <-c.inbound:
			return f, nil
		default:
		}
		return nil, c.closedErr()
	}
}

// Close announces shutdown to the peer and waits for its acknowledgement
// or ctx, then releases the connection. In-flight handlers are awaited.
func (c *FramedConn) Close(ctx context.Context) error {
	if c.closing.Swap(true) {
		select {
		case <-c.closed:
			return nil
		case <-ctx.Done():
			c.Abort()
			return ErrCloseTimeout
		}
	}
	c.logControl(log.ControlMsgClose, 0, log.DirectionOut)
	if err := c.writeContext(ctx, &wire.Frame{Kind: wire.FrameClose}); err != nil {
		c.shutdown(ErrConnectionClosed)
		if ctx.Err() != nil {
			return ErrCloseTimeout
		}
		return nil
	}

	var err error
	select {
	case <-c.peerClose:
	case <-c.closed:
	case <-ctx.Done():
		err = ErrCloseTimeout
	}
	c.shutdown(ErrConnectionClosed)
	return err
}

// Abort releases the connection immediately. Waiting callers fail.
func (c *FramedConn) Abort() {
	c.shutdown(fmt.Errorf("%w: aborted", ErrConnectionClosed))
}

func (c *FramedConn) shutdown(reason error) {
	c.closeOnce.Do(func() {
		c.err = reason
		c.cancel()
		_ = c.io.Close()
		close(c.closed)
		if c.keepAlive != nil {
			// stop waits for the loop, which may be the caller.
			go c.keepAlive.stop()
		}
		c.logState("CONNECTED", "CLOSED", reason.Error())
	})
}

func (c *FramedConn) closedErr() error {
	select {
	case <-c.closed:
		return c.err
	default:
		return ErrConnectionClosed
	}
}

func (c *FramedConn) newID() uint32 {
	for {
		if id := c.nextID.Add(1); id != 0 {
			return id
		}
	}
}

func (c *FramedConn) write(f *wire.Frame) error {
	data, err := wire.EncodeFrame(f)
	if err != nil {
		return err
	}
	if err := c.io.WriteFrame(data); err != nil {
		c.shutdown(fmt.Errorf("%w: %v", ErrConnectionClosed, err))
		return err
	}
	return nil
}

// writeContext writes f unless ctx ends first. A peer that stops reading
// blocks the write indefinitely; a frame cut off mid-write leaves the
// stream unusable, so the connection is shut down, which also releases
// writers queued behind this one.
func (c *FramedConn) writeContext(ctx context.Context, f *wire.Frame) error {
	if ctx.Done() == nil {
		return c.write(f)
	}
	done := make(chan error, 1)
	go func() { done <- c.write(f) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}
	select {
	case err := <-done:
		return err
	default:
	}
	c.shutdown(fmt.Errorf("%w: write abandoned: %v", ErrConnectionClosed, context.Cause(ctx)))
	<-done
	return ctx.Err()
}

func (c *FramedConn) sendPing(seq uint32) error {
	c.logControl(log.ControlMsgPing, seq, log.DirectionOut)
	return c.write(&wire.Frame{Kind: wire.FramePing, ID: seq})
}

// readLoop decodes frames until the connection fails.
func (c *FramedConn) readLoop() {
	defer c.handlers.Wait()
	for {
		data, err := c.io.ReadFrame()
		if err != nil {
			c.shutdown(fmt.Errorf("%w: %v", ErrConnectionClosed, err))
			return
		}
		f, err := wire.DecodeFrame(data)
		if err != nil {
			c.debug("dropping undecodable frame", "conn", c.id, "error", err)
			c.shutdown(fmt.Errorf("%w: %v", ErrConnectionClosed, err))
			return
		}
		c.dispatch(f)
	}
}

func (c *FramedConn) dispatch(f *wire.Frame) {
	switch f.Kind {
	case wire.FrameReply:
		c.pendingMu.Lock()
		ch, ok := c.pending[f.ID]
		c.pendingMu.Unlock()
		if !ok {
			c.debug("dropping reply without caller", "conn", c.id, "id", f.ID)
			return
		}
		select {
		case ch <- f:
		default:
		}

	case wire.FrameRequest, wire.FrameOneWay, wire.FrameDuplex:
		if c.handler == nil {
			if f.Kind == wire.FrameRequest {
				_ = c.write(&wire.Frame{Kind: wire.FrameReply, ID: f.ID, Status: wire.StatusBadRequest, Detail: ErrNoHandler.Error()})
				return
			}
			select {
			case c.inbound <- f:
			case <-c.closed:
			}
			return
		}
		c.handlers.Add(1)
		go c.serve(f)

	case wire.FramePing:
		c.logControl(log.ControlMsgPing, f.ID, log.DirectionIn)
		c.logControl(log.ControlMsgPong, f.ID, log.DirectionOut)
		_ = c.write(&wire.Frame{Kind: wire.FramePong, ID: f.ID})

	case wire.FramePong:
		c.logControl(log.ControlMsgPong, f.ID, log.DirectionIn)
		if c.keepAlive != nil {
			c.keepAlive.pong(f.ID)
		}

	case wire.FrameClose:
		c.logControl(log.ControlMsgClose, 0, log.DirectionIn)
		if c.closing.Load() {
			select {
			case <-c.peerClose:
			default:
				close(c.peerClose)
			}
			return
		}
		// Peer initiated: stop taking work, acknowledge, then go away.
		c.closing.Store(true)
		go func() {
			c.handlers.Wait()
			c.logControl(log.ControlMsgClose, 0, log.DirectionOut)
			_ = c.write(&wire.Frame{Kind: wire.FrameClose})
			c.shutdown(fmt.Errorf("%w: closed by peer", ErrConnectionClosed))
		}()
	}
}

func (c *FramedConn) serve(f *wire.Frame) {
	defer c.handlers.Done()
	reply := c.handler.ServeFrame(c.ctx, c, f)
	if f.Kind != wire.FrameRequest {
		return
	}
	if reply == nil {
		reply = &wire.Frame{Status: wire.StatusInternal, Detail: "no reply"}
	}
	reply.Kind = wire.FrameReply
	reply.ID = f.ID
	if err := c.write(reply); err != nil {
		c.debug("failed to write reply", "conn", c.id, "id", f.ID, "error", err)
	}
}

func (c *FramedConn) remote() string {
	return addrString(c.io.RemoteAddr())
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

func (c *FramedConn) logControl(t log.ControlMsgType, seq uint32, dir log.Direction) {
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryControl,
		LocalRole:    c.role,
		RemoteAddr:   c.remote(),
		ControlMsg:   &log.ControlMsgEvent{Type: t, Sequence: seq},
	})
}

func (c *FramedConn) logState(from, to, reason string) {
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		LocalRole:    c.role,
		RemoteAddr:   c.remote(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: from,
			NewState: to,
			Reason:   reason,
		},
	})
}

func (c *FramedConn) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
