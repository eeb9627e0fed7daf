package diagnostics

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svcmodel/svcmodel-go/pkg/log"
)

func TestKnownIDs(t *testing.T) {
	tests := []struct {
		id   EventID
		want uint32
	}{
		{FailedToSetupTracing, 0xC0010064},
		{PiiLoggingNotAllowed, 0xC001006C},
		{WebHostUnhandledException, 0xC0020001},
		{ComPlusInvokingMethodFailedMismatchedTransactions, 0xC002001B},
		{WebHostNotLoggingInsufficientMemoryExceptionsOnActivationForNextTimeInterval, 0x8002001C},
		{UnhandledStateMachineExceptionRecordDescription, 0xC0030001},
		{MissingNecessaryEnhancedKeyUsage, 0xC0030016},
		{StartErrorPublish, 0xC0040001},
		{SharingUnhandledException, 0xC004000A},
		{ServiceAuthorizationSuccess, 0x40060001},
		{ImpersonationFailure, 0xC006000A},
	}
	for _, tt := range tests {
		t.Run(tt.id.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, uint32(tt.id))
		})
	}
}

func TestSequencesContiguousPerFacility(t *testing.T) {
	for _, f := range []Facility{FacilityTracing, FacilityServiceModel, FacilityTransactionBridge, FacilitySMSvcHost, FacilitySecurityAudit} {
		t.Run(f.String(), func(t *testing.T) {
			got := FacilityEntries(f)
			require.NotEmpty(t, got)
			want := FacilityBase(f)
			for _, e := range got {
				assert.Equal(t, want, e.Sequence(), e.Name)
				want++
			}
		})
	}
	assert.Empty(t, FacilityEntries(FacilityInfoCards))
}

func TestSecurityAuditSeverityAlternates(t *testing.T) {
	for i, e := range FacilityEntries(FacilitySecurityAudit) {
		want := SeverityInformational
		if i%2 == 1 {
			want = SeverityError
		}
		assert.Equal(t, want, e.Severity(), e.Name)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, e := range Entries() {
		sev, fac, seq := Decode(e.ID)
		assert.Equal(t, e.ID, Encode(sev, fac, seq), e.Name)
	}
	for sev := SeveritySuccess; sev <= SeverityError; sev++ {
		id := Encode(sev, FacilityInfoCards, 0xffff)
		s, f, q := Decode(id)
		assert.Equal(t, sev, s)
		assert.Equal(t, FacilityInfoCards, f)
		assert.Equal(t, uint16(0xffff), q)
	}
}

func TestEventIDBitLayout(t *testing.T) {
	assert.Equal(t, EventID(0xCFFF0000), Encode(SeverityError, Facility(0xfff), 0))
	// The facility field is 12 bits; bits 28 and 29 stay reserved.
	assert.Equal(t, EventID(0x0FFF0001), Encode(SeveritySuccess, Facility(0x3fff), 1))
	for _, e := range Entries() {
		assert.Zero(t, uint32(e.ID)&0x30000000, e.Name)
	}
}

func TestLookup(t *testing.T) {
	e, ok := Lookup(0x8002001C)
	require.True(t, ok)
	assert.Equal(t, SeverityWarning, e.Severity())
	assert.Equal(t, FacilityServiceModel, e.Facility())

	_, ok = Lookup(0xC00200FF)
	assert.False(t, ok)
	assert.Equal(t, "0xc00200ff", EventID(0xC00200FF).String())

	e, ok = LookupName("MessageLoggingOn")
	require.True(t, ok)
	assert.Equal(t, MessageLoggingOn, e.ID)
	assert.Len(t, Entries(), 9+28+22+10+10)
}

func TestParseEventID(t *testing.T) {
	id, err := ParseEventID("0xc0020001")
	require.NoError(t, err)
	assert.Equal(t, WebHostUnhandledException, id)

	id, err = ParseEventID("1074135041")
	require.NoError(t, err)
	assert.Equal(t, ServiceAuthorizationSuccess, id)

	_, err = ParseEventID("nope")
	assert.Error(t, err)
}

func TestSinks(t *testing.T) {
	var buf bytes.Buffer
	slogSink := NewSlogSink(slog.New(slog.NewTextHandler(&buf, nil)))
	rec := &log.Recorder{}
	sink := MultiSink{slogSink, &ProtocolSink{Logger: rec, Layer: log.LayerSecurity, Role: log.RoleService}, OrNoop(nil)}

	sink.Emit(context.Background(), TransportAuthenticationFailure, "basic auth rejected", slog.String("user", "bob"))

	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "event=TransportAuthenticationFailure")
	assert.Contains(t, buf.String(), "event_id=0xc0060008")

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, uint32(TransportAuthenticationFailure), events[0].Error.EventID)
	assert.Equal(t, "user=bob", events[0].Error.Context)
}
