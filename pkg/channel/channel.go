package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/svcmodel/svcmodel-go/pkg/endpoint"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/log"
	"github.com/svcmodel/svcmodel-go/pkg/message"
)

// Channel is one logical conversation with an endpoint. It owns its layer
// instances; the transport layer leases its connection from a pool.
//
// Request, Send and Receive are only allowed while Opened. Communication,
// protocol, security and timeout failures move the channel to Faulted; a
// Faulted channel can only be closed or aborted. Remote faults are returned
// as *fault.RemoteFault and leave the channel usable.
type Channel struct {
	factory *Factory
	config  FactoryConfig
	id      string
	addr    *endpoint.Address
	layer   Layer

	sm stateMachine

	// busy guards the single outstanding request unless concurrent
	// requests are enabled.
	busy atomic.Bool

	// inflight counts outstanding operations for graceful Close.
	inflight sync.WaitGroup

	mu      sync.Mutex
	cancels map[*context.CancelCauseFunc]struct{}
	aborted bool
}

func newChannel(f *Factory, addr *endpoint.Address, layer Layer) *Channel {
	ch := &Channel{
		factory: f,
		config:  f.config,
		id:      uuid.NewString(),
		addr:    addr,
		layer:   layer,
		cancels: make(map[*context.CancelCauseFunc]struct{}),
	}
	ch.sm.entity = log.StateEntityChannel
	ch.sm.id = ch.id
	ch.sm.notify = f.logEvent
	return ch
}

// ID returns the channel id used in protocol logs.
func (c *Channel) ID() string {
	return c.id
}

// State returns the current channel state.
func (c *Channel) State() State {
	return c.sm.load()
}

// RemoteAddress returns the endpoint the channel talks to.
func (c *Channel) RemoteAddress() *endpoint.Address {
	return c.addr
}

// Shape returns the channel shape.
func (c *Channel) Shape() Shape {
	return c.config.Shape
}

// Open establishes the transport connection, bounded by the open timeout.
func (c *Channel) Open(ctx context.Context) error {
	const op = "channel.Open"
	if prev, ok := c.sm.transition(StateOpening, "", StateCreated); !ok {
		return invalidState(op, prev)
	}

	ctx, cancel := c.track(ctx, c.config.Timeouts.Open)
	defer cancel()

	if err := c.layer.Open(ctx); err != nil {
		err = classify(op, ctx, err)
		c.fault(err)
		return err
	}
	if _, ok := c.sm.transition(StateOpened, "", StateOpening); !ok {
		return fault.New(fault.KindAborted, op, "channel aborted during open")
	}
	return nil
}

// Request sends msg and blocks until the correlated reply arrives or the
// timeout elapses. A timeout <= 0 uses the binding send timeout.
func (c *Channel) Request(ctx context.Context, msg *message.Message, timeout time.Duration) (*message.Message, error) {
	const op = "channel.Request"
	if c.config.Shape != ShapeRequest {
		return nil, fault.New(fault.KindInvalidOperation, op, "channel shape %s does not support request", c.config.Shape)
	}
	if !c.enter() {
		return nil, invalidState(op, c.State())
	}
	defer c.inflight.Done()
	if !c.config.ConcurrentRequests {
		if !c.busy.CompareAndSwap(false, true) {
			return nil, fault.New(fault.KindInvalidOperation, op, "a request is already outstanding on this channel")
		}
		defer c.busy.Store(false)
	}
	if err := c.prepare(op, msg); err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = c.config.Timeouts.Send
	}
	rctx, cancel := c.track(ctx, timeout)
	defer cancel()

	start := time.Now()
	reply, err := c.layer.Request(rctx, msg)
	if err == nil && errors.Is(context.Cause(rctx), errAborted) {
		// Some layers cannot interrupt an exchange; its result is void.
		err = context.Cause(rctx)
	}
	if err != nil {
		err = classify(op, rctx, err)
		c.debugLog("request failed", "action", msg.Action(), "elapsed", time.Since(start), "error", err)
		if fault.Faults(err) {
			c.fault(err)
		}
		return nil, err
	}

	if err := c.correlate(op, msg, reply); err != nil {
		c.fault(err)
		return nil, err
	}
	c.logReply(reply, time.Since(start))
	if f := reply.Fault(); f != nil {
		// A fault reply completes the exchange; unlike other per-call
		// errors it does not fault the channel.
		return nil, f
	}
	return reply, nil
}

// RequestAsync starts a request and returns immediately.
func (c *Channel) RequestAsync(ctx context.Context, msg *message.Message, timeout time.Duration) *Call {
	call := &Call{done: make(chan struct{})}
	go func() {
		call.reply, call.err = c.Request(ctx, msg, timeout)
		close(call.done)
	}()
	return call
}

// Send sends msg without waiting for a reply. Output and duplex channels
// only.
func (c *Channel) Send(ctx context.Context, msg *message.Message) error {
	const op = "channel.Send"
	if c.config.Shape == ShapeRequest {
		return fault.New(fault.KindInvalidOperation, op, "request channels cannot send one-way messages")
	}
	if !c.enter() {
		return invalidState(op, c.State())
	}
	defer c.inflight.Done()
	if err := c.prepare(op, msg); err != nil {
		return err
	}

	sctx, cancel := c.track(ctx, c.config.Timeouts.Send)
	defer cancel()

	if err := c.layer.Send(sctx, msg); err != nil {
		err = classify(op, sctx, err)
		if fault.Faults(err) {
			c.fault(err)
		}
		return err
	}
	return nil
}

// Receive blocks until the peer pushes a message. Duplex channels only.
// The wait is bounded by ctx alone.
func (c *Channel) Receive(ctx context.Context) (*message.Message, error) {
	const op = "channel.Receive"
	if c.config.Shape != ShapeDuplex {
		return nil, fault.New(fault.KindInvalidOperation, op, "channel shape %s does not support receive", c.config.Shape)
	}
	if !c.enter() {
		return nil, invalidState(op, c.State())
	}
	defer c.inflight.Done()

	rctx, cancel := c.track(ctx, 0)
	defer cancel()

	msg, err := c.layer.Receive(rctx)
	if err != nil {
		err = classify(op, rctx, err)
		if fault.Faults(err) && fault.KindOf(err) != fault.KindTimedOut {
			c.fault(err)
		}
		return nil, err
	}
	return msg, nil
}

// Close waits for outstanding operations, bounded by the close timeout,
// then closes the layers outermost first. Closing a Faulted channel aborts
// it and returns nil. Closing twice is a no-op.
func (c *Channel) Close(ctx context.Context) error {
	const op = "channel.Close"
	c.mu.Lock()
	prev, ok := c.sm.transition(StateClosing, "", StateOpened)
	c.mu.Unlock()
	if !ok {
		switch prev {
		case StateCreated:
			if _, ok := c.sm.transition(StateClosed, "", StateCreated); ok {
				c.layer.Abort()
				c.factory.release(c)
				return nil
			}
			return c.Close(ctx)
		case StateFaulted, StateOpening:
			c.Abort()
			return nil
		default:
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeouts.Close)
	defer cancel()

	drained := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		c.Abort()
		<-drained
		return fault.New(fault.KindTimedOut, op, "outstanding requests did not complete before close timeout")
	}

	if err := c.layer.Close(ctx); err != nil {
		c.Abort()
		return classify(op, ctx, err)
	}
	c.sm.force(StateClosed, "")
	c.factory.release(c)
	return nil
}

// Abort stops the channel immediately. Outstanding operations fail with an
// aborted error. Abort passes through Faulted and ends Closed; it is safe
// from any state and never fails.
func (c *Channel) Abort() {
	if c.State() == StateClosed {
		return
	}
	if c.State() != StateFaulted {
		c.sm.force(StateFaulted, "aborted")
	}
	c.cancelAll()
	c.layer.Abort()
	c.sm.force(StateClosed, "")
	c.factory.release(c)
}

// prepare validates and seals an outgoing message, assigning its
// correlation id.
func (c *Channel) prepare(op string, msg *message.Message) error {
	if msg == nil {
		return fault.New(fault.KindInvalidOperation, op, "message is nil")
	}
	if msg.Sealed() {
		return fault.New(fault.KindInvalidOperation, op, "message was already submitted")
	}
	if msg.Action() == "" {
		return fault.New(fault.KindInvalidOperation, op, "message action is required")
	}
	if msg.Version() != c.config.MessageVersion {
		return fault.New(fault.KindInvalidOperation, op, "message version %s does not match binding version %s",
			msg.Version(), c.config.MessageVersion)
	}
	if msg.ID() == "" {
		_ = msg.SetID(message.NewIDString())
	}
	if c.config.MessageVersion.Addressing && msg.To() == "" {
		_ = msg.SetTo(c.addr.String())
	}
	msg.Seal()
	return nil
}

// correlate checks that reply answers req.
func (c *Channel) correlate(op string, req, reply *message.Message) error {
	rel := reply.RelatesTo()
	if rel == "" {
		if c.config.MessageVersion.Addressing {
			return fault.New(fault.KindProtocolViolation, op, "reply carries no relates-to for request %s", req.ID())
		}
		return nil
	}
	if rel != req.ID() {
		return fault.New(fault.KindProtocolViolation, op, "reply relates to %s, expected %s", rel, req.ID())
	}
	return nil
}

// enter registers an operation if the channel is Opened. It holds mu so
// that Close cannot start waiting between the check and the Add.
func (c *Channel) enter() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() != StateOpened {
		return false
	}
	c.inflight.Add(1)
	return true
}

// track derives a context that Abort can cancel. A zero timeout adds no
// deadline.
func (c *Channel) track(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	cctx, cancelCause := context.WithCancelCause(ctx)
	key := &cancelCause

	// An operation admitted just before Abort starts out cancelled.
	c.mu.Lock()
	if c.aborted {
		cancelCause(errAborted)
	} else {
		c.cancels[key] = struct{}{}
	}
	c.mu.Unlock()

	var tctx context.Context = cctx
	stop := func() {}
	if timeout > 0 {
		tctx, stop = context.WithTimeout(cctx, timeout)
	}
	return tctx, func() {
		stop()
		cancelCause(nil)
		c.mu.Lock()
		delete(c.cancels, key)
		c.mu.Unlock()
	}
}

func (c *Channel) cancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aborted = true
	for cancel := range c.cancels {
		(*cancel)(errAborted)
	}
}

// fault moves the channel to Faulted unless it is already closing down.
func (c *Channel) fault(err error) {
	if _, ok := c.sm.transition(StateFaulted, err.Error(), StateOpened, StateOpening); ok {
		c.logError(err)
	}
}

func (c *Channel) logReply(reply *message.Message, elapsed time.Duration) {
	if c.config.ProtocolLogger == nil {
		return
	}
	typ := log.MessageTypeReply
	code := ""
	if f := reply.Fault(); f != nil {
		typ = log.MessageTypeFault
		code = f.Code
	}
	c.config.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		ChannelID: c.id,
		Endpoint:  c.addr.String(),
		Direction: log.DirectionIn,
		Layer:     log.LayerChannel,
		Category:  log.CategoryMessage,
		Message: &log.MessageEvent{
			Type:      typ,
			Action:    reply.Action(),
			MessageID: reply.ID(),
			RelatesTo: reply.RelatesTo(),
			FaultCode: code,
			Elapsed:   &elapsed,
		},
	})
}

func (c *Channel) logError(err error) {
	c.debugLog("channel faulted", "endpoint", c.addr.String(), "error", err)
	if c.config.ProtocolLogger == nil {
		return
	}
	c.config.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		ChannelID: c.id,
		Endpoint:  c.addr.String(),
		Layer:     log.LayerChannel,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerChannel,
			Message: err.Error(),
			Kind:    fault.KindOf(err).String(),
		},
	})
}

// debugLog logs a debug message if logging is enabled.
func (c *Channel) debugLog(msg string, args ...any) {
	if c.config.Logger != nil {
		c.config.Logger.Debug(msg, append([]any{"channel", c.id}, args...)...)
	}
}

// Call is an outstanding asynchronous request.
type Call struct {
	done  chan struct{}
	reply *message.Message
	err   error
}

// Done is closed when the request completes.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Result blocks until the request completes and returns its outcome.
func (c *Call) Result() (*message.Message, error) {
	<-c.done
	return c.reply, c.err
}

var _ CommunicationObject = (*Channel)(nil)
