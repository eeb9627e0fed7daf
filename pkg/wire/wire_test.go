package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/message"
)

func newRequest(t *testing.T, v message.Version) *message.Message {
	t.Helper()
	m := message.NewString(v, "urn:svcmodel:echo/Echo", "[client] This is my request.")
	require.NoError(t, m.SetID("urn:uuid:7d5c8a3e-0000-4000-8000-000000000001"))
	require.NoError(t, m.SetHeader(message.Header{Name: "Trace", Namespace: "urn:t", Value: "on"}))
	return m
}

func TestEncoders(t *testing.T) {
	for _, kind := range []Kind{KindText, KindBinary, KindMTOM} {
		for _, v := range []message.Version{message.Soap11, message.Soap12WSAddressing10} {
			t.Run(kind.String()+"/"+v.String(), func(t *testing.T) {
				enc, err := NewEncoder(kind, v)
				require.NoError(t, err)
				assert.Equal(t, kind, enc.Kind())
				assert.Equal(t, v, enc.MessageVersion())

				data, err := enc.Encode(newRequest(t, v))
				require.NoError(t, err)

				got, err := enc.Decode(data, enc.ContentType())
				require.NoError(t, err)
				assert.Equal(t, "urn:svcmodel:echo/Echo", got.Action())
				assert.Equal(t, "urn:uuid:7d5c8a3e-0000-4000-8000-000000000001", got.ID())
				val, ok := got.Headers().Get("Trace")
				assert.True(t, ok)
				assert.Equal(t, "on", val)

				text, err := got.ReadBodyString()
				require.NoError(t, err)
				assert.Equal(t, "[client] This is my request.", text)
			})
		}
	}
}

func TestEncodeConsumesBody(t *testing.T) {
	enc, _ := NewEncoder(KindText, message.Soap11)
	m := newRequest(t, message.Soap11)
	_, err := enc.Encode(m)
	require.NoError(t, err)
	_, err = enc.Encode(m)
	assert.ErrorIs(t, err, message.ErrBodyConsumed)
}

func TestDecodeErrors(t *testing.T) {
	text, _ := NewEncoder(KindText, message.Soap12WSAddressing10)
	bin, _ := NewEncoder(KindBinary, message.Soap12WSAddressing10)
	mtom, _ := NewEncoder(KindMTOM, message.Soap12WSAddressing10)

	t.Run("garbage", func(t *testing.T) {
		for _, enc := range []Encoder{text, bin, mtom} {
			_, err := enc.Decode([]byte{0xff, 0x00, 0x13}, "")
			assert.ErrorIs(t, err, fault.ErrProtocol, enc.Kind().String())
		}
	})

	t.Run("content type mismatch", func(t *testing.T) {
		_, err := bin.Decode(nil, ContentTypeText12)
		assert.ErrorIs(t, err, fault.ErrProtocol)
	})

	t.Run("version mismatch", func(t *testing.T) {
		soap11, _ := NewEncoder(KindText, message.Soap11)
		data, err := soap11.Encode(newRequest(t, message.Soap11))
		require.NoError(t, err)
		_, err = text.Decode(data, "")
		assert.ErrorIs(t, err, fault.ErrProtocol)
	})
}

func TestFaultEnvelope(t *testing.T) {
	enc, _ := NewEncoder(KindBinary, message.Soap11)
	m := message.NewFault(message.Soap11, &fault.RemoteFault{
		Code:   fault.CodeActionNotSupported,
		Reason: "no operation for action",
		Action: "urn:wrong",
	})
	require.NoError(t, m.SetRelatesTo("urn:uuid:1"))

	data, err := enc.Encode(m)
	require.NoError(t, err)
	got, err := enc.Decode(data, ContentTypeBinary)
	require.NoError(t, err)

	require.True(t, got.IsFault())
	assert.Equal(t, fault.CodeActionNotSupported, got.Fault().Code)
	assert.Equal(t, "urn:wrong", got.Fault().Action)
	assert.Equal(t, "urn:uuid:1", got.RelatesTo())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("MTOM")
	require.NoError(t, err)
	assert.Equal(t, KindMTOM, k)

	_, err = ParseKind("json")
	assert.ErrorIs(t, err, fault.ErrConfiguration)
}
