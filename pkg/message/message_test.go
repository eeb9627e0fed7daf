package message

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svcmodel/svcmodel-go/pkg/fault"
)

func TestBodyReadOnce(t *testing.T) {
	m := NewString(Soap11, "urn:a", "[client] This is my request.")

	text, err := m.ReadBodyString()
	require.NoError(t, err)
	assert.Equal(t, "[client] This is my request.", text)
	assert.True(t, m.BodyConsumed())

	_, err = m.ReadBody()
	assert.ErrorIs(t, err, ErrBodyConsumed)
}

func TestBodyWriterIsLazy(t *testing.T) {
	calls := 0
	m := New(Soap11, "urn:a", BodyWriterFunc(func(w io.Writer) error {
		calls++
		_, err := io.WriteString(w, "lazy")
		return err
	}))
	assert.Equal(t, 0, calls)

	b, err := m.ReadBody()
	require.NoError(t, err)
	assert.Equal(t, "lazy", string(b))
	assert.Equal(t, 1, calls)
}

func TestBodyWriterError(t *testing.T) {
	boom := errors.New("boom")
	m := New(Soap11, "urn:a", BodyWriterFunc(func(io.Writer) error { return boom }))
	_, err := m.ReadBody()
	assert.ErrorIs(t, err, boom)
}

func TestEmptyBody(t *testing.T) {
	m := New(Soap11, "urn:a", nil)
	b, err := m.ReadBody()
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestSealedRejectsMutation(t *testing.T) {
	m := NewString(Soap12WSAddressing10, "urn:a", "x")
	require.NoError(t, m.SetHeader(Header{Name: "Trace", Value: "1"}))
	m.Seal()
	m.Seal()

	assert.ErrorIs(t, m.SetAction("urn:b"), ErrSealed)
	assert.ErrorIs(t, m.SetID("id"), ErrSealed)
	assert.ErrorIs(t, m.SetRelatesTo("id"), ErrSealed)
	assert.ErrorIs(t, m.SetHeader(Header{Name: "X"}), ErrSealed)
	assert.ErrorIs(t, m.RemoveHeader("Trace"), ErrSealed)

	m.SetProperty("local", 1)
	v, ok := m.Property("local")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, "urn:a", m.Action())
}

func TestHeadersOrderedAndCopied(t *testing.T) {
	m := New(Soap11, "urn:a", nil)
	require.NoError(t, m.SetHeader(Header{Name: "B", Value: "1"}))
	require.NoError(t, m.SetHeader(Header{Name: "A", Value: "2"}))
	require.NoError(t, m.SetHeader(Header{Name: "B", Value: "3"}))

	h := m.Headers()
	require.Len(t, h, 2)
	assert.Equal(t, "B", h[0].Name)
	assert.Equal(t, "3", h[0].Value)

	h[0].Value = "mutated"
	v, _ := m.Headers().Get("B")
	assert.Equal(t, "3", v)
}

func TestNewReply(t *testing.T) {
	t.Run("with addressing", func(t *testing.T) {
		req := NewString(Soap12WSAddressing10, "urn:svc/Echo", "x")
		require.NoError(t, req.SetID(NewIDString()))
		reply := NewReply(req, nil)
		assert.Equal(t, "urn:svc/EchoResponse", reply.Action())
		assert.Equal(t, req.ID(), reply.RelatesTo())
	})
	t.Run("without addressing", func(t *testing.T) {
		req := NewString(Soap11, "urn:svc/Echo", "x")
		reply := NewReply(req, nil)
		assert.Empty(t, reply.Action())
	})
}

func TestDerive(t *testing.T) {
	m := NewString(Soap12WSAddressing10, "urn:a", "x")
	require.NoError(t, m.SetID("urn:uuid:1"))
	m.Seal()

	d := m.Derive(BytesBody("new"))
	assert.False(t, d.Sealed())
	assert.Equal(t, "urn:uuid:1", d.ID())
	b, err := d.ReadBody()
	require.NoError(t, err)
	assert.Equal(t, "new", string(b))
	assert.False(t, m.BodyConsumed())
}

func TestNewIDString(t *testing.T) {
	a, b := NewIDString(), NewIDString()
	assert.True(t, strings.HasPrefix(a, "urn:uuid:"))
	assert.NotEqual(t, a, b)
}

func TestFaultMessage(t *testing.T) {
	m := NewFault(Soap11, &fault.RemoteFault{Code: fault.CodeActionNotSupported})
	assert.True(t, m.IsFault())
	assert.Equal(t, fault.CodeActionNotSupported, m.Fault().Code)
}

func TestReadElementString(t *testing.T) {
	s, err := ReadElementString([]byte("<string>a &amp; b</string>"))
	require.NoError(t, err)
	assert.Equal(t, "a & b", s)

	s, err = ReadElementString([]byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", s)
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("soap11")
	require.NoError(t, err)
	assert.Equal(t, Soap11, v)
	assert.False(t, v.Addressing)

	v, err = ParseVersion("")
	require.NoError(t, err)
	assert.True(t, v.Addressing)

	_, err = ParseVersion("soap99")
	assert.ErrorIs(t, err, fault.ErrConfiguration)
}
