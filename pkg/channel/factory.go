package channel

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/svcmodel/svcmodel-go/pkg/endpoint"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/log"
)

// Factory creates channels over one built layer stack. It owns its layer
// factories exclusively.
type Factory struct {
	config FactoryConfig
	id     string

	// layers are ordered outermost first; the transport is last.
	layers []LayerFactory

	sm       stateMachine
	channels *channelTracker
}

// NewFactory returns an unopened factory over layers, ordered outermost
// first with the transport last.
func NewFactory(config FactoryConfig, layers []LayerFactory) *Factory {
	config.Timeouts = config.Timeouts.withDefaults()
	f := &Factory{
		config:   config,
		id:       uuid.NewString(),
		layers:   layers,
		channels: newChannelTracker(),
	}
	f.sm.entity = log.StateEntityFactory
	f.sm.id = f.id
	f.sm.notify = f.logEvent
	return f
}

// State returns the current factory state.
func (f *Factory) State() State {
	return f.sm.load()
}

// Shape returns the shape of channels this factory creates.
func (f *Factory) Shape() Shape {
	return f.config.Shape
}

// Config returns the factory configuration.
func (f *Factory) Config() FactoryConfig {
	return f.config
}

// ChannelCount returns the number of channels not yet closed.
func (f *Factory) ChannelCount() int {
	return f.channels.Len()
}

// Open opens the layer factories from the transport outwards, bounded by
// the open timeout. On failure the factory is Faulted and the layers opened
// so far are aborted.
func (f *Factory) Open(ctx context.Context) error {
	const op = "factory.Open"
	if prev, ok := f.sm.transition(StateOpening, "", StateCreated); !ok {
		return invalidState(op, prev)
	}

	ctx, cancel := context.WithTimeout(ctx, f.config.Timeouts.Open)
	defer cancel()

	for i := len(f.layers) - 1; i >= 0; i-- {
		if err := f.layers[i].Open(ctx); err != nil {
			err = classify(op, ctx, err)
			f.debugLog("layer open failed", "layer", i, "error", err)
			f.sm.force(StateFaulted, err.Error())
			for j := i + 1; j < len(f.layers); j++ {
				f.layers[j].Abort()
			}
			return err
		}
	}

	if _, ok := f.sm.transition(StateOpened, "", StateOpening); !ok {
		// Aborted while opening.
		for _, l := range f.layers {
			l.Abort()
		}
		return fault.New(fault.KindAborted, op, "factory aborted during open")
	}
	return nil
}

// CreateChannel returns an unopened channel to addr. The factory must be
// Opened.
func (f *Factory) CreateChannel(addr *endpoint.Address) (*Channel, error) {
	const op = "factory.CreateChannel"
	if s := f.State(); s != StateOpened {
		return nil, invalidState(op, s)
	}
	if addr == nil {
		return nil, fault.New(fault.KindAddress, op, "address is required")
	}

	// Build innermost first so each layer can wrap the next.
	var inner Layer
	for i := len(f.layers) - 1; i >= 0; i-- {
		layer, err := f.layers[i].NewLayer(addr, inner)
		if err != nil {
			if inner != nil {
				inner.Abort()
			}
			return nil, err
		}
		inner = layer
	}
	if inner == nil {
		return nil, fault.New(fault.KindConfiguration, op, "factory has no layers")
	}

	ch := newChannel(f, addr, inner)
	f.channels.Add(ch)
	return ch, nil
}

// Close closes every channel created by this factory, then the layers
// outermost first. Closing a Faulted factory aborts it and returns nil.
// Closing twice is a no-op.
func (f *Factory) Close(ctx context.Context) error {
	const op = "factory.Close"
	prev, ok := f.sm.transition(StateClosing, "", StateOpened)
	if !ok {
		switch prev {
		case StateCreated:
			if _, ok := f.sm.transition(StateClosed, "", StateCreated); ok {
				return nil
			}
			return f.Close(ctx)
		case StateFaulted, StateOpening:
			f.Abort()
			return nil
		default:
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, f.config.Timeouts.Close)
	defer cancel()

	var errs []error
	for _, ch := range f.channels.Drain() {
		if err := ch.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i, l := range f.layers {
		if err := l.Close(ctx); err != nil {
			errs = append(errs, classify(op, ctx, err))
			for _, rest := range f.layers[i+1:] {
				rest.Abort()
			}
			f.sm.force(StateFaulted, err.Error())
			f.sm.force(StateClosed, "")
			return errors.Join(errs...)
		}
	}

	f.sm.force(StateClosed, "")
	return errors.Join(errs...)
}

// Abort immediately aborts every tracked channel and every layer. It is
// safe from any state and never fails.
func (f *Factory) Abort() {
	prev := f.State()
	if prev == StateClosed {
		return
	}
	if prev != StateFaulted {
		f.sm.force(StateFaulted, "aborted")
	}
	for _, ch := range f.channels.Drain() {
		ch.Abort()
	}
	for _, l := range f.layers {
		l.Abort()
	}
	f.sm.force(StateClosed, "")
}

func (f *Factory) release(ch *Channel) {
	f.channels.Remove(ch)
}

func (f *Factory) logEvent(e log.Event) {
	if e.StateChange != nil {
		f.debugLog("state change",
			"entity", e.StateChange.Entity.String(),
			"id", e.ChannelID,
			"from", e.StateChange.OldState,
			"to", e.StateChange.NewState)
	}
	if f.config.ProtocolLogger != nil {
		f.config.ProtocolLogger.Log(e)
	}
}

// debugLog logs a debug message if logging is enabled.
func (f *Factory) debugLog(msg string, args ...any) {
	if f.config.Logger != nil {
		f.config.Logger.Debug(msg, args...)
	}
}

var _ CommunicationObject = (*Factory)(nil)
