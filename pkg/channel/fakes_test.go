package channel

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/svcmodel/svcmodel-go/pkg/endpoint"
	"github.com/svcmodel/svcmodel-go/pkg/message"
)

// recorder collects lifecycle calls across layers in order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.calls = append(r.calls, s)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// stubLayerFactory is a testify mock of LayerFactory.
type stubLayerFactory struct {
	mock.Mock
	name  string
	rec   *recorder
	build func(addr *endpoint.Address, inner Layer) (Layer, error)
}

func (f *stubLayerFactory) Open(ctx context.Context) error {
	f.rec.add("open:" + f.name)
	return f.Called(ctx).Error(0)
}

func (f *stubLayerFactory) Close(ctx context.Context) error {
	f.rec.add("close:" + f.name)
	return f.Called(ctx).Error(0)
}

func (f *stubLayerFactory) Abort() {
	f.rec.add("abort:" + f.name)
	f.Called()
}

func (f *stubLayerFactory) NewLayer(addr *endpoint.Address, inner Layer) (Layer, error) {
	if f.build != nil {
		return f.build(addr, inner)
	}
	return &TransformLayer{Inner: inner}, nil
}

func newStubFactory(name string, rec *recorder) *stubLayerFactory {
	f := &stubLayerFactory{name: name, rec: rec}
	f.On("Open", mock.Anything).Return(nil).Maybe()
	f.On("Close", mock.Anything).Return(nil).Maybe()
	f.On("Abort").Return().Maybe()
	return f
}

// handlerLayer is a transport layer answering requests with a function.
type handlerLayer struct {
	handle  func(ctx context.Context, msg *message.Message) (*message.Message, error)
	openErr error

	mu      sync.Mutex
	opened  bool
	closed  bool
	aborted bool
	sent    []*message.Message
	inbox   chan *message.Message
}

func (l *handlerLayer) Open(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.openErr != nil {
		return l.openErr
	}
	l.opened = true
	return nil
}

func (l *handlerLayer) Close(context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

func (l *handlerLayer) Abort() {
	l.mu.Lock()
	l.aborted = true
	l.mu.Unlock()
}

func (l *handlerLayer) Request(ctx context.Context, msg *message.Message) (*message.Message, error) {
	return l.handle(ctx, msg)
}

func (l *handlerLayer) Send(_ context.Context, msg *message.Message) error {
	l.mu.Lock()
	l.sent = append(l.sent, msg)
	l.mu.Unlock()
	return nil
}

func (l *handlerLayer) Receive(ctx context.Context) (*message.Message, error) {
	select {
	case m := <-l.inbox:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *handlerLayer) state() (opened, closed, aborted bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opened, l.closed, l.aborted
}

// echo replies with the request body prefixed, the way the echo service does.
func echo(_ context.Context, req *message.Message) (*message.Message, error) {
	text, err := req.ReadBodyString()
	if err != nil {
		return nil, err
	}
	return message.NewReply(req, message.NewStringBody(text+"[service] Request received, this is my Reply.")), nil
}

// blockUntilDone waits for ctx like a peer that never answers.
func blockUntilDone(ctx context.Context, _ *message.Message) (*message.Message, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
