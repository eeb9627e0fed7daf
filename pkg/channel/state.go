package channel

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/log"
)

// State is the lifecycle state of a factory or channel.
type State int32

const (
	StateCreated State = iota
	StateOpening
	StateOpened
	StateClosing
	StateClosed
	StateFaulted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateOpening:
		return "OPENING"
	case StateOpened:
		return "OPENED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	case StateFaulted:
		return "FAULTED"
	default:
		return "UNKNOWN"
	}
}

// Shape is the message exchange pattern of a channel.
type Shape uint8

const (
	// ShapeRequest is request-reply.
	ShapeRequest Shape = iota
	// ShapeOutput is one-way send.
	ShapeOutput
	// ShapeDuplex is bidirectional send and receive.
	ShapeDuplex
)

// String returns the shape name.
func (s Shape) String() string {
	switch s {
	case ShapeRequest:
		return "REQUEST"
	case ShapeOutput:
		return "OUTPUT"
	case ShapeDuplex:
		return "DUPLEX"
	default:
		return "UNKNOWN"
	}
}

// CommunicationObject is the lifecycle shared by factories and channels.
type CommunicationObject interface {
	State() State
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	Abort()
}

// stateMachine holds an atomic state and reports transitions.
type stateMachine struct {
	state  atomic.Int32
	entity log.StateEntity
	id     string
	notify func(log.Event)
}

func (m *stateMachine) load() State {
	return State(m.state.Load())
}

// transition moves from one of the allowed states to next.
func (m *stateMachine) transition(next State, reason string, from ...State) (State, bool) {
	for _, f := range from {
		if m.state.CompareAndSwap(int32(f), int32(next)) {
			m.emit(f, next, reason)
			return f, true
		}
	}
	return m.load(), false
}

// force sets the state unconditionally and returns the previous one.
func (m *stateMachine) force(next State, reason string) State {
	prev := State(m.state.Swap(int32(next)))
	if prev != next {
		m.emit(prev, next, reason)
	}
	return prev
}

func (m *stateMachine) emit(from, to State, reason string) {
	if m.notify == nil {
		return
	}
	m.notify(log.Event{
		Timestamp: time.Now(),
		ChannelID: m.id,
		Layer:     log.LayerChannel,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   m.entity,
			OldState: from.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	})
}

func invalidState(op string, s State) error {
	return fault.New(fault.KindInvalidOperation, op, "not allowed in state %s", s)
}
