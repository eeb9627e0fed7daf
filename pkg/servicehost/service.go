package servicehost

import (
	"context"
	"fmt"
	"sync"

	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/message"
)

// Operation handles one request and returns the reply. Returning nil
// means the operation is one-way.
type Operation func(ctx context.Context, req *message.Message) (*message.Message, error)

// Service dispatches requests to operations by action.
type Service struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

// NewService returns a service without operations.
func NewService() *Service {
	return &Service{ops: make(map[string]Operation)}
}

// Echo returns a service answering EchoAction with the request text
// followed by ReplySuffix.
func Echo() *Service {
	s := NewService()
	s.Handle(EchoAction, EchoOperation)
	return s
}

// EchoOperation replies with the request text plus ReplySuffix.
func EchoOperation(_ context.Context, req *message.Message) (*message.Message, error) {
	text, err := req.ReadBodyString()
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return message.NewReply(req, message.NewStringBody(text+ReplySuffix)), nil
}

// Handle registers op for action, replacing a previous registration.
func (s *Service) Handle(action string, op Operation) {
	s.mu.Lock()
	s.ops[action] = op
	s.mu.Unlock()
}

// Dispatch runs the operation for the request action. Unknown actions and
// failing operations produce fault replies.
func (s *Service) Dispatch(ctx context.Context, req *message.Message) *message.Message {
	s.mu.RLock()
	op, ok := s.ops[req.Action()]
	s.mu.RUnlock()
	if !ok {
		return faultReply(req, &fault.RemoteFault{
			Code:   fault.CodeActionNotSupported,
			Reason: fmt.Sprintf("the message with action %q cannot be processed at the receiver", req.Action()),
			Action: req.Action(),
		})
	}
	reply, err := op(ctx, req)
	if err != nil {
		return faultReply(req, &fault.RemoteFault{
			Code:   fault.CodeInternalServiceFault,
			Reason: err.Error(),
			Action: req.Action(),
		})
	}
	return reply
}

func faultReply(req *message.Message, rf *fault.RemoteFault) *message.Message {
	m := message.NewFault(req.Version(), rf)
	// Fresh message, setters cannot fail.
	_ = m.SetRelatesTo(req.ID())
	return m
}
