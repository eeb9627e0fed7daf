package fault

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsHierarchy(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		matches []error
		not     []error
	}{
		{
			name:    "unsupported shape is configuration",
			err:     New(KindUnsupportedShape, "binding.Build", "duplex only"),
			matches: []error{ErrUnsupportedShape, ErrConfiguration},
			not:     []error{ErrAddress, ErrProtocol},
		},
		{
			name:    "scheme mismatch is address",
			err:     New(KindAddressSchemeMismatch, "factory.CreateChannel", "https on http"),
			matches: []error{ErrAddressSchemeMismatch, ErrAddress},
			not:     []error{ErrConfiguration},
		},
		{
			name:    "protocol violation is protocol",
			err:     New(KindProtocolViolation, "channel.Request", "bad relatesTo"),
			matches: []error{ErrProtocolViolation, ErrProtocol},
			not:     []error{ErrCommunication},
		},
		{
			name:    "plain protocol is not a violation",
			err:     New(KindProtocol, "channel.Request", "garbage"),
			matches: []error{ErrProtocol},
			not:     []error{ErrProtocolViolation},
		},
		{
			name:    "wrapped with fmt",
			err:     fmt.Errorf("outer: %w", Wrap(KindCommunication, "dial", io.EOF)),
			matches: []error{ErrCommunication, io.EOF},
			not:     []error{ErrTimedOut},
		},
		{
			name:    "remote fault",
			err:     &RemoteFault{Code: CodeActionNotSupported},
			matches: []error{ErrRemoteFault},
			not:     []error{ErrProtocol},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, target := range tt.matches {
				assert.True(t, errors.Is(tt.err, target), "expected match with %v", target)
			}
			for _, target := range tt.not {
				assert.False(t, errors.Is(tt.err, target), "unexpected match with %v", target)
			}
		})
	}
}

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := New(KindTimedOut, "transport.Receive", "no reply")
	wrapped := Wrap(KindCommunication, "channel.Request", inner)

	assert.Equal(t, KindTimedOut, KindOf(wrapped))
	assert.Nil(t, Wrap(KindCommunication, "op", nil))
}

func TestFaults(t *testing.T) {
	assert.True(t, Faults(New(KindCommunication, "op", "reset")))
	assert.True(t, Faults(New(KindTimedOut, "op", "slow")))
	assert.True(t, Faults(New(KindProtocolViolation, "op", "id")))
	assert.False(t, Faults(New(KindInvalidOperation, "op", "state")))
	assert.False(t, Faults(&RemoteFault{Code: CodeActionNotSupported}))
	assert.False(t, Faults(io.EOF))
}

func TestErrorString(t *testing.T) {
	err := Wrapf(KindCommunication, "tcp.Dial", io.EOF, "connect to %s", "127.0.0.1:1")
	assert.Equal(t, "tcp.Dial: connect to 127.0.0.1:1: EOF", err.Error())
	assert.Equal(t, "TIMED_OUT", ErrTimedOut.Error())
	assert.Equal(t, "remote fault ActionNotSupported: no handler",
		(&RemoteFault{Code: CodeActionNotSupported, Reason: "no handler"}).Error())
}
