package security

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/svcmodel/svcmodel-go/pkg/channel"
	"github.com/svcmodel/svcmodel-go/pkg/endpoint"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/message"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

type mockValidator struct{ mock.Mock }

func (m *mockValidator) Validate(ctx context.Context, username, password string) error {
	return m.Called(ctx, username, password).Error(0)
}

func newMessage(t *testing.T, text string) *message.Message {
	t.Helper()
	m := message.NewString(message.Soap12WSAddressing10, "urn:test/Echo", text)
	require.NoError(t, m.SetID(message.NewIDString()))
	return m
}

func TestSettingsValidate(t *testing.T) {
	cert := &tls.Certificate{}
	tests := []struct {
		name    string
		s       Settings
		wantErr bool
	}{
		{"none", Settings{}, false},
		{"transport basic", Settings{Mode: ModeTransport, Credential: CredentialBasic, Credentials: ClientCredentials{Username: "u"}}, false},
		{"credential only basic", Settings{Mode: ModeNone, Credential: CredentialBasic, Credentials: ClientCredentials{Username: "u"}}, false},
		{"basic without user", Settings{Mode: ModeTransport, Credential: CredentialBasic}, true},
		{"basic with message", Settings{Mode: ModeMessage, Credential: CredentialBasic, Credentials: ClientCredentials{Username: "u", MessageKey: testKey}}, true},
		{"windows", Settings{Mode: ModeTransport, Credential: CredentialWindows}, true},
		{"certificate", Settings{Mode: ModeTransport, Credential: CredentialCertificate, Credentials: ClientCredentials{Certificate: cert}}, false},
		{"certificate without tls", Settings{Mode: ModeNone, Credential: CredentialCertificate, Credentials: ClientCredentials{Certificate: cert}}, true},
		{"certificate missing", Settings{Mode: ModeTransport, Credential: CredentialCertificate}, true},
		{"message", Settings{Mode: ModeMessage, Credentials: ClientCredentials{MessageKey: testKey}}, false},
		{"message short key", Settings{Mode: ModeMessage, Credentials: ClientCredentials{MessageKey: []byte("short")}}, true},
		{"username over tls", Settings{Mode: ModeTransportWithMessageCredential, Credential: CredentialUserName, Credentials: ClientCredentials{Username: "u"}}, false},
		{"username without message credential", Settings{Mode: ModeTransport, Credential: CredentialUserName, Credentials: ClientCredentials{Username: "u"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.s.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, fault.ErrConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseModeAndCredential(t *testing.T) {
	m, err := ParseMode("Transport-With-Message-Credential")
	require.NoError(t, err)
	assert.Equal(t, ModeTransportWithMessageCredential, m)
	assert.True(t, m.RequiresTLS())

	k, err := ParseCredentialKind("custom-validator")
	require.NoError(t, err)
	assert.Equal(t, CredentialUserName, k)

	_, err = ParseMode("kerberos")
	assert.ErrorIs(t, err, fault.ErrConfiguration)
	_, err = ParseCredentialKind("issued-token")
	assert.ErrorIs(t, err, fault.ErrConfiguration)
}

func TestProtectRoundTrip(t *testing.T) {
	p, err := NewProtector(testKey)
	require.NoError(t, err)

	msg := newMessage(t, "secret payload")
	protected, err := p.Protect(msg)
	require.NoError(t, err)
	assert.Equal(t, msg.ID(), protected.ID())

	_, ok := protected.Headers().Get(HeaderSecurity)
	assert.True(t, ok)

	plain, err := p.Unprotect(protected)
	require.NoError(t, err)
	text, err := plain.ReadBodyString()
	require.NoError(t, err)
	assert.Equal(t, "secret payload", text)
	_, ok = plain.Headers().Get(HeaderSecurity)
	assert.False(t, ok)
}

func TestUnprotectRejectsTampering(t *testing.T) {
	p, _ := NewProtector(testKey)

	t.Run("missing header", func(t *testing.T) {
		_, err := p.Unprotect(newMessage(t, "plain"))
		assert.ErrorIs(t, err, fault.ErrSecurityValidation)
		assert.ErrorIs(t, err, ErrNotProtected)
	})

	t.Run("changed body", func(t *testing.T) {
		protected, err := p.Protect(newMessage(t, "original"))
		require.NoError(t, err)
		body, _ := protected.ReadBody()
		body[0] ^= 0xff
		_, err = p.Unprotect(protected.Derive(message.BytesBody(body)))
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("changed action", func(t *testing.T) {
		protected, err := p.Protect(newMessage(t, "original"))
		require.NoError(t, err)
		body, _ := protected.ReadBody()
		forged := protected.Derive(message.BytesBody(body))
		require.NoError(t, forged.SetAction("urn:test/Delete"))
		_, err = p.Unprotect(forged)
		assert.ErrorIs(t, err, fault.ErrSecurityValidation)
	})

	t.Run("wrong key", func(t *testing.T) {
		protected, err := p.Protect(newMessage(t, "original"))
		require.NoError(t, err)
		other, _ := NewProtector([]byte("fedcba9876543210fedcba9876543210"))
		_, err = other.Unprotect(protected)
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("garbage header", func(t *testing.T) {
		m := newMessage(t, "x")
		require.NoError(t, m.SetHeader(message.Header{Name: HeaderSecurity, Value: "!!"}))
		_, err := p.Unprotect(m)
		assert.ErrorIs(t, err, fault.ErrSecurityValidation)
	})
}

func TestUsernameToken(t *testing.T) {
	tok, err := NewUsernameToken("alice", "s3cret")
	require.NoError(t, err)
	msg, err := tok.Attach(newMessage(t, "hi"))
	require.NoError(t, err)

	got, ok, err := ReadUsernameToken(msg)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "s3cret", got.Password)
	assert.Len(t, got.Nonce, tokenNonceSize)

	assert.NoError(t, got.Fresh(time.Now()))
	assert.ErrorIs(t, got.Fresh(time.Now().Add(10*time.Minute)), ErrTokenExpired)

	text, err := msg.ReadBodyString()
	require.NoError(t, err)
	assert.Equal(t, "hi", text)

	bad := newMessage(t, "x")
	require.NoError(t, bad.SetHeader(message.Header{Name: HeaderUsernameToken, Value: base64.StdEncoding.EncodeToString([]byte{0xff})}))
	_, ok, err = ReadUsernameToken(bad)
	assert.True(t, ok)
	assert.ErrorIs(t, err, fault.ErrSecurityValidation)
}

func TestStaticCredentials(t *testing.T) {
	creds := StaticCredentials{"alice": "s3cret"}
	ctx := context.Background()
	assert.NoError(t, creds.Validate(ctx, "alice", "s3cret"))
	assert.ErrorIs(t, creds.Validate(ctx, "alice", "wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, creds.Validate(ctx, "bob", ""), ErrInvalidCredentials)

	err := Authenticate(ctx, creds, "alice", "wrong")
	assert.ErrorIs(t, err, fault.ErrSecurityValidation)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.ErrorIs(t, Authenticate(ctx, nil, "alice", "s3cret"), fault.ErrSecurityValidation)
}

func TestLayerEndToEnd(t *testing.T) {
	ctx := context.Background()
	validator := &mockValidator{}
	validator.On("Validate", mock.Anything, "alice", "s3cret").Return(nil).Once()

	server, err := NewServer(ServerConfig{Mode: ModeMessage, Key: testKey, Validator: validator, RequireToken: true})
	require.NoError(t, err)

	// transport stand-in: the service verifies, answers and protects the reply.
	transport := &loopLayer{serve: func(req *message.Message) (*message.Message, error) {
		plain, user, err := server.Accept(ctx, req)
		if err != nil {
			return nil, err
		}
		assert.Equal(t, "alice", user)
		text, _ := plain.ReadBodyString()
		return server.Reply(message.NewReply(plain, message.NewStringBody(text+"[service]")))
	}}

	factory, err := NewLayerFactory(LayerConfig{Settings: Settings{
		Mode:        ModeMessage,
		Credential:  CredentialUserName,
		Credentials: ClientCredentials{Username: "alice", Password: "s3cret", MessageKey: testKey},
	}})
	require.NoError(t, err)
	l, err := factory.NewLayer(endpoint.MustParse("net.tcp://localhost/echo"), transport)
	require.NoError(t, err)

	reply, err := l.Request(ctx, newMessage(t, "[client]"))
	require.NoError(t, err)
	text, err := reply.ReadBodyString()
	require.NoError(t, err)
	assert.Equal(t, "[client][service]", text)
	validator.AssertExpectations(t)
}

func TestLayerRejectsUnprotectedReply(t *testing.T) {
	transport := &loopLayer{serve: func(req *message.Message) (*message.Message, error) {
		return message.NewReply(req, message.NewStringBody("plain")), nil
	}}
	factory, err := NewLayerFactory(LayerConfig{Settings: Settings{Mode: ModeMessage, Credentials: ClientCredentials{MessageKey: testKey}}})
	require.NoError(t, err)
	l, err := factory.NewLayer(endpoint.MustParse("net.tcp://localhost/echo"), transport)
	require.NoError(t, err)

	_, err = l.Request(context.Background(), newMessage(t, "x"))
	assert.ErrorIs(t, err, fault.ErrSecurityValidation)
}

func TestServerRejectsBadToken(t *testing.T) {
	validator := &mockValidator{}
	validator.On("Validate", mock.Anything, "alice", "wrong").Return(errors.New("denied")).Once()
	server, err := NewServer(ServerConfig{Mode: ModeTransportWithMessageCredential, Validator: validator, RequireToken: true})
	require.NoError(t, err)

	tok, _ := NewUsernameToken("alice", "wrong")
	req, err := tok.Attach(newMessage(t, "x"))
	require.NoError(t, err)
	_, _, err = server.Accept(context.Background(), req)
	assert.ErrorIs(t, err, fault.ErrSecurityValidation)

	_, _, err = server.Accept(context.Background(), newMessage(t, "no token"))
	assert.ErrorIs(t, err, fault.ErrSecurityValidation)
	validator.AssertExpectations(t)

	_, err = NewServer(ServerConfig{RequireToken: true})
	assert.ErrorIs(t, err, fault.ErrConfiguration)
}

// loopLayer answers requests in process.
type loopLayer struct {
	serve func(*message.Message) (*message.Message, error)
}

func (l *loopLayer) Open(context.Context) error  { return nil }
func (l *loopLayer) Close(context.Context) error { return nil }
func (l *loopLayer) Abort()                      {}
func (l *loopLayer) Request(_ context.Context, msg *message.Message) (*message.Message, error) {
	return l.serve(msg)
}
func (l *loopLayer) Send(context.Context, *message.Message) error { return nil }
func (l *loopLayer) Receive(context.Context) (*message.Message, error) {
	return nil, fault.New(fault.KindInvalidOperation, "loop", "not duplex")
}

var _ channel.Layer = (*loopLayer)(nil)
