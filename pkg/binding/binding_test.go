package binding_test

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svcmodel/svcmodel-go/internal/echotest"
	"github.com/svcmodel/svcmodel-go/pkg/binding"
	"github.com/svcmodel/svcmodel-go/pkg/channel"
	"github.com/svcmodel/svcmodel-go/pkg/endpoint"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/message"
	"github.com/svcmodel/svcmodel-go/pkg/resolve"
	"github.com/svcmodel/svcmodel-go/pkg/security"
	"github.com/svcmodel/svcmodel-go/pkg/servicehost"
	"github.com/svcmodel/svcmodel-go/pkg/transport"
	"github.com/svcmodel/svcmodel-go/pkg/wire"
)

const (
	clientText = "[client] This is my request."
	replyText  = clientText + servicehost.ReplySuffix
)

func params() binding.Parameters {
	return binding.Parameters{Pool: transport.NewPool(transport.PoolConfig{})}
}

// roundTrip runs the full factory and channel lifecycle for one request.
func roundTrip(t *testing.T, b *binding.Binding, p binding.Parameters, addr *endpoint.Address, action string) (*message.Message, error) {
	t.Helper()
	ctx := context.Background()
	f, err := b.BuildChannelFactory(channel.ShapeRequest, p)
	require.NoError(t, err)
	require.Equal(t, channel.StateCreated, f.State())

	var reply *message.Message
	err = channel.Use(ctx, f, addr, func(ch *channel.Channel) error {
		var err error
		reply, err = ch.Request(ctx, message.NewString(b.MessageVersion(), action, clientText), 5*time.Second)
		return err
	})
	assert.Equal(t, channel.StateClosed, f.State())
	return reply, err
}

func bodyText(t *testing.T, m *message.Message) string {
	t.Helper()
	text, err := m.ReadBodyString()
	require.NoError(t, err)
	return text
}

func TestNewValidation(t *testing.T) {
	tcp := &binding.TransportElement{Scheme: transport.SchemeTCP}
	text := &binding.EncodingElement{Encoding: wire.KindText, Version: message.Soap12WSAddressing10}
	none := &binding.SecurityElement{}

	tests := []struct {
		name     string
		elements []binding.Element
	}{
		{"empty", nil},
		{"no transport", []binding.Element{text}},
		{"transport not last", []binding.Element{tcp, text}},
		{"two transports", []binding.Element{tcp, &binding.TransportElement{Scheme: transport.SchemeHTTP}}},
		{"two encodings", []binding.Element{text, text, tcp}},
		{"two security", []binding.Element{none, none, tcp}},
		{"unknown scheme", []binding.Element{&binding.TransportElement{Scheme: "msmq"}}},
		{"windows credentials", []binding.Element{
			&binding.SecurityElement{Settings: security.Settings{Mode: security.ModeTransport, Credential: security.CredentialWindows}}, tcp}},
		{"transport security over http", []binding.Element{
			&binding.SecurityElement{Settings: security.Settings{Mode: security.ModeTransport}},
			&binding.TransportElement{Scheme: transport.SchemeHTTP}}},
		{"transport security over pipe", []binding.Element{
			&binding.SecurityElement{Settings: security.Settings{Mode: security.ModeTransport}},
			&binding.TransportElement{Scheme: transport.SchemePipe}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := binding.New(tt.name, tt.elements)
			assert.ErrorIs(t, err, fault.ErrConfiguration)
		})
	}
}

func TestBuildUnsupportedShape(t *testing.T) {
	ws, err := binding.WebSocketBinding(false)
	require.NoError(t, err)
	assert.False(t, ws.CanBuildShape(channel.ShapeRequest))
	assert.True(t, ws.CanBuildShape(channel.ShapeDuplex))

	_, err = ws.BuildChannelFactory(channel.ShapeRequest, params())
	assert.ErrorIs(t, err, fault.ErrUnsupportedShape)
	assert.ErrorIs(t, err, fault.ErrConfiguration)

	basic, err := binding.BasicHTTPBinding(security.Settings{})
	require.NoError(t, err)
	_, err = basic.BuildChannelFactory(channel.ShapeDuplex, params())
	assert.ErrorIs(t, err, fault.ErrUnsupportedShape)

	restricted, err := binding.Custom([]binding.Element{
		&binding.CustomElement{Name: "request-only", Shapes: []channel.Shape{channel.ShapeRequest}},
		&binding.TransportElement{Scheme: transport.SchemeTCP},
	})
	require.NoError(t, err)
	_, err = restricted.BuildChannelFactory(channel.ShapeOutput, params())
	assert.ErrorIs(t, err, fault.ErrUnsupportedShape)
}

func TestBindingProperties(t *testing.T) {
	basic, err := binding.BasicHTTPBinding(security.Settings{})
	require.NoError(t, err)
	assert.Equal(t, message.Soap11, basic.MessageVersion())
	assert.Equal(t, transport.SchemeHTTP, basic.Scheme())
	assert.Len(t, basic.Elements(), 2)
	assert.Equal(t, channel.DefaultTimeouts(), basic.Timeouts())
	assert.False(t, basic.ConcurrentRequests())

	secure, err := binding.BasicHTTPBinding(security.Settings{Mode: security.ModeTransport})
	require.NoError(t, err)
	assert.Equal(t, transport.SchemeHTTPS, secure.Scheme())

	b, err := binding.New("bare", []binding.Element{&binding.TransportElement{Scheme: transport.SchemeTCP}},
		binding.WithTimeouts(channel.Timeouts{Send: time.Second}), binding.WithConcurrentRequests(true))
	require.NoError(t, err)
	assert.Equal(t, message.Soap12WSAddressing10, b.MessageVersion())
	assert.Equal(t, time.Second, b.Timeouts().Send)
	assert.True(t, b.ConcurrentRequests())

	f, err := b.BuildChannelFactory(channel.ShapeDuplex, params())
	require.NoError(t, err)
	assert.Equal(t, channel.StateCreated, f.State())
	assert.Equal(t, channel.ShapeDuplex, f.Shape())
	f.Abort()
}

func TestEchoOverBindings(t *testing.T) {
	env := echotest.Start(t)

	basic, err := binding.BasicHTTPBinding(security.Settings{})
	require.NoError(t, err)
	custom, err := binding.TextHTTPBinding()
	require.NoError(t, err)
	tcp, err := binding.NetTCPBinding(security.Settings{})
	require.NoError(t, err)
	pipe, err := binding.NetPipeBinding()
	require.NoError(t, err)
	tests := []struct {
		name       string
		b          *binding.Binding
		scheme     transport.Scheme
		path       string
		wantAction bool
	}{
		{"basic http", basic, transport.SchemeHTTP, servicehost.PathBasic, false},
		{"custom http", custom, transport.SchemeHTTP, servicehost.PathCustom, true},
		{"net.tcp", tcp, transport.SchemeTCP, servicehost.PathEcho, true},
		{"net.pipe", pipe, transport.SchemePipe, servicehost.PathEcho, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := roundTrip(t, tt.b, params(), env.Address(t, tt.scheme, tt.path), servicehost.EchoAction)
			require.NoError(t, err)
			assert.Equal(t, replyText, bodyText(t, reply))
			if tt.wantAction {
				assert.Equal(t, servicehost.EchoAction+"Response", reply.Action())
			} else {
				assert.Empty(t, reply.Action())
			}
		})
	}
}

func TestCompressionElement(t *testing.T) {
	env := echotest.Start(t)
	b, err := binding.Custom([]binding.Element{
		&binding.CompressionElement{Level: zstd.SpeedFastest},
		&binding.EncodingElement{Encoding: wire.KindBinary, Version: message.Soap12WSAddressing10},
		&binding.TransportElement{Scheme: transport.SchemeTCP},
	})
	require.NoError(t, err)

	reply, err := roundTrip(t, b, params(), env.Address(t, transport.SchemeTCP, servicehost.PathEcho), servicehost.EchoAction)
	require.NoError(t, err)
	assert.Equal(t, replyText, bodyText(t, reply))
	_, compressed := reply.Headers().Get(wire.HeaderCompression)
	assert.False(t, compressed)
}

func TestMessageSecurity(t *testing.T) {
	env := echotest.Start(t)
	addr := env.Address(t, transport.SchemeTCP, servicehost.PathMessage)

	good, err := binding.NetTCPBinding(security.Settings{
		Mode:        security.ModeMessage,
		Credentials: security.ClientCredentials{MessageKey: echotest.MessageKey},
	})
	require.NoError(t, err)
	reply, err := roundTrip(t, good, params(), addr, servicehost.EchoAction)
	require.NoError(t, err)
	assert.Equal(t, replyText, bodyText(t, reply))

	wrong, err := binding.NetTCPBinding(security.Settings{
		Mode:        security.ModeMessage,
		Credentials: security.ClientCredentials{MessageKey: []byte("a-different-key-of-sufficient-sz")},
	})
	require.NoError(t, err)
	_, err = roundTrip(t, wrong, params(), addr, servicehost.EchoAction)
	assert.ErrorIs(t, err, fault.ErrSecurityValidation)
}

func TestHTTPSBasicCredentials(t *testing.T) {
	env := echotest.Start(t)
	addr := env.Address(t, transport.SchemeHTTPS, servicehost.PathHTTPSBasic)

	settings := func(password string) security.Settings {
		return security.Settings{
			Mode:       security.ModeTransport,
			Credential: security.CredentialBasic,
			Credentials: security.ClientCredentials{
				Username: echotest.Username,
				Password: password,
				RootCAs:  env.Bundle.CA.Pool(),
			},
		}
	}

	ok, err := binding.BasicHTTPBinding(settings(echotest.Password))
	require.NoError(t, err)
	reply, err := roundTrip(t, ok, params(), addr, servicehost.EchoAction)
	require.NoError(t, err)
	assert.Equal(t, replyText, bodyText(t, reply))

	bad, err := binding.BasicHTTPBinding(settings("nope"))
	require.NoError(t, err)
	_, err = roundTrip(t, bad, params(), addr, servicehost.EchoAction)
	assert.ErrorIs(t, err, fault.ErrSecurityValidation)
}

func TestActionNotSupported(t *testing.T) {
	env := echotest.Start(t)
	b, err := binding.TextHTTPBinding()
	require.NoError(t, err)
	ctx := context.Background()

	f, err := b.BuildChannelFactory(channel.ShapeRequest, params())
	require.NoError(t, err)
	require.NoError(t, f.Open(ctx))
	ch, err := f.CreateChannel(env.Address(t, transport.SchemeHTTP, servicehost.PathCustom))
	require.NoError(t, err)
	require.NoError(t, ch.Open(ctx))

	_, err = ch.Request(ctx, message.NewString(b.MessageVersion(), "urn:wrong/Action", clientText), 5*time.Second)
	assert.ErrorIs(t, err, fault.ErrRemoteFault)
	var rf *fault.RemoteFault
	require.ErrorAs(t, err, &rf)
	assert.Equal(t, fault.CodeActionNotSupported, rf.Code)
	assert.Equal(t, channel.StateOpened, ch.State())

	// The channel is still usable after a remote fault.
	reply, err := ch.Request(ctx, message.NewString(b.MessageVersion(), servicehost.EchoAction, clientText), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, replyText, bodyText(t, reply))

	require.NoError(t, channel.CloseCommunicationObjects(ctx, ch, f))
}

func TestOpenUnreachableTarget(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	b, err := binding.NetTCPBinding(security.Settings{})
	require.NoError(t, err)
	p := params()
	p.Target = &resolve.ResourceRequest{Protocol: resolve.ProtocolTCP, Port: port, Path: servicehost.PathEcho}
	p.Resolver = &resolve.Static{Host: "127.0.0.1"}

	f, err := b.BuildChannelFactory(channel.ShapeRequest, p)
	require.NoError(t, err)
	err = f.Open(context.Background())
	assert.ErrorIs(t, err, fault.ErrCommunication)
	assert.Equal(t, channel.StateFaulted, f.State())
	assert.NoError(t, f.Close(context.Background()))
	assert.Equal(t, channel.StateClosed, f.State())
}

func TestRequestTimeout(t *testing.T) {
	svc := servicehost.NewService()
	svc.Handle("urn:test/Slow", func(ctx context.Context, req *message.Message) (*message.Message, error) {
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
		}
		return servicehost.EchoOperation(ctx, req)
	})
	env := echotest.Start(t, echotest.WithService(svc))
	b, err := binding.NetTCPBinding(security.Settings{})
	require.NoError(t, err)
	ctx := context.Background()

	f, err := b.BuildChannelFactory(channel.ShapeRequest, params())
	require.NoError(t, err)
	require.NoError(t, f.Open(ctx))
	defer f.Abort()
	ch, err := f.CreateChannel(env.Address(t, transport.SchemeTCP, servicehost.PathEcho))
	require.NoError(t, err)
	require.NoError(t, ch.Open(ctx))

	const timeout = 200 * time.Millisecond
	start := time.Now()
	_, err = ch.Request(ctx, message.NewString(b.MessageVersion(), "urn:test/Slow", clientText), timeout)
	elapsed := time.Since(start)
	assert.ErrorIs(t, err, fault.ErrTimedOut)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Less(t, elapsed, timeout+time.Second)
	assert.Equal(t, channel.StateFaulted, ch.State())

	assert.NoError(t, ch.Close(ctx))
	assert.Equal(t, channel.StateClosed, ch.State())
}

// stalledListener accepts connections and never reads from them.
func stalledListener(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return ln
}

func TestRequestTimeoutWhilePeerStopsReading(t *testing.T) {
	ln := stalledListener(t)
	b, err := binding.Custom([]binding.Element{
		&binding.EncodingElement{Encoding: wire.KindBinary, Version: message.Soap12WSAddressing10},
		&binding.TransportElement{Scheme: transport.SchemeTCP, MaxMessageSize: 64 << 20},
	})
	require.NoError(t, err)
	addr, err := endpoint.Parse("net.tcp://" + ln.Addr().String() + "/echo")
	require.NoError(t, err)

	ctx := context.Background()
	f, err := b.BuildChannelFactory(channel.ShapeRequest, params())
	require.NoError(t, err)
	defer f.Abort()
	require.NoError(t, f.Open(ctx))
	ch, err := f.CreateChannel(addr)
	require.NoError(t, err)
	require.NoError(t, ch.Open(ctx))

	body := strings.Repeat("x", 32<<20)
	const timeout = 300 * time.Millisecond
	start := time.Now()
	_, err = ch.Request(ctx, message.NewString(b.MessageVersion(), servicehost.EchoAction, body), timeout)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, fault.ErrTimedOut)
	assert.Less(t, elapsed, timeout+2*time.Second)
	assert.Equal(t, channel.StateFaulted, ch.State())
	assert.NoError(t, ch.Close(ctx))
}
