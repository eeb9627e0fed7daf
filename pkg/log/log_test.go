package log

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvents() []Event {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	elapsed := 12 * time.Millisecond
	return []Event{
		{
			Timestamp: ts, ConnectionID: "conn-1", Direction: DirectionOut,
			Layer: LayerTransport, Category: CategoryMessage,
			Frame: &FrameEvent{Size: 64, Data: []byte{1, 2, 3}},
		},
		{
			Timestamp: ts.Add(time.Millisecond), ChannelID: "ch-1", Direction: DirectionIn,
			Layer: LayerEncoder, Category: CategoryMessage, Endpoint: "net.tcp://localhost/echo",
			Message: &MessageEvent{
				Type: MessageTypeReply, Action: "urn:echo/EchoResponse",
				MessageID: "urn:uuid:2", RelatesTo: "urn:uuid:1", Elapsed: &elapsed,
			},
		},
		{
			Timestamp: ts.Add(2 * time.Millisecond), ChannelID: "ch-1",
			Layer: LayerChannel, Category: CategoryState,
			StateChange: &StateChangeEvent{Entity: StateEntityChannel, OldState: "OPENED", NewState: "FAULTED", Reason: "timed out"},
		},
		{
			Timestamp: ts.Add(3 * time.Millisecond), LocalRole: RoleService,
			Layer: LayerSecurity, Category: CategoryError,
			Error: &ErrorEventData{Layer: LayerSecurity, Message: "bad signature", Kind: "SECURITY_VALIDATION", EventID: 0xC0060002},
		},
	}
}

func TestEventCBORRoundTrip(t *testing.T) {
	for _, e := range sampleEvents() {
		data, err := EncodeEvent(e)
		require.NoError(t, err)
		got, err := DecodeEvent(data)
		require.NoError(t, err)
		assert.True(t, e.Timestamp.Equal(got.Timestamp))
		got.Timestamp = e.Timestamp
		assert.Equal(t, e, got)
	}
}

func TestFileLoggerAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.svclog")
	fl, err := NewFileLogger(path)
	require.NoError(t, err)
	for _, e := range sampleEvents() {
		fl.Log(e)
	}
	require.NoError(t, fl.Close())
	require.NoError(t, fl.Close())
	fl.Log(sampleEvents()[0])
	assert.Zero(t, fl.Dropped())

	r, err := NewReader(path)
	require.NoError(t, err)
	all, err := r.ReadAll()
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Len(t, all, 4)

	layer := LayerChannel
	r, err = NewFilteredReader(path, Filter{ChannelID: "ch-1", Layer: &layer})
	require.NoError(t, err)
	defer r.Close()
	e, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "FAULTED", e.StateChange.NewState)
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestFilter(t *testing.T) {
	rec := &Recorder{}
	for _, e := range sampleEvents() {
		rec.Log(e)
	}
	role := RoleService
	assert.Len(t, rec.Filter(Filter{Role: &role}), 1)
	assert.Len(t, rec.Filter(Filter{Action: "urn:echo/EchoResponse"}), 1)
	assert.Len(t, rec.Filter(Filter{ConnectionID: "conn-1"}), 1)

	end := sampleEvents()[1].Timestamp
	assert.Len(t, rec.Filter(Filter{TimeEnd: &end}), 1)

	rec.Reset()
	assert.Empty(t, rec.Events())
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	a := NewSlogAdapter(logger)
	for _, e := range sampleEvents() {
		a.Log(e)
	}
	out := buf.String()
	assert.Equal(t, 4, strings.Count(out, "msg=protocol"))
	assert.Contains(t, out, "relates_to=urn:uuid:1")
	assert.Contains(t, out, "new_state=FAULTED")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "event_id=3221618690")
}

func TestMultiLoggerAndNoop(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := NewMultiLogger(a, b, NoopLogger{})
	m.Log(sampleEvents()[0])
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
	assert.Equal(t, 2, m.Len())

	c := &Recorder{}
	nested := NewMultiLogger(m, nil, c)
	assert.Equal(t, 3, nested.Len())
	nested.Log(sampleEvents()[1])
	assert.Len(t, a.Events(), 2)
	assert.Len(t, c.Events(), 1)

	assert.Equal(t, NoopLogger{}, OrNoop(nil))
	assert.Equal(t, a, OrNoop(a))
}

func TestEnumNames(t *testing.T) {
	assert.Equal(t, "OUT", DirectionOut.String())
	assert.Equal(t, "CHANNEL", LayerChannel.String())
	assert.Equal(t, "FAULT", MessageTypeFault.String())
	assert.Equal(t, "LISTENER", StateEntityListener.String())
	assert.Equal(t, "UNKNOWN", Layer(9).String())
	assert.Equal(t, "UNKNOWN", Role(200).String())
}
