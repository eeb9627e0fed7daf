package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error raised by the channel stack.
type Kind uint8

const (
	// KindUnknown is the zero value and never produced by this module.
	KindUnknown Kind = iota

	// KindConfiguration indicates an invalid layer composition or setting.
	KindConfiguration

	// KindUnsupportedShape indicates a binding cannot produce the requested
	// channel shape. It is a configuration error.
	KindUnsupportedShape

	// KindAddress indicates a malformed or unusable endpoint address.
	KindAddress

	// KindAddressSchemeMismatch indicates the address scheme does not match
	// the transport. It is an address error.
	KindAddressSchemeMismatch

	// KindCommunication indicates a transport-level failure.
	KindCommunication

	// KindSecurityValidation indicates a credential, certificate or
	// signature was rejected.
	KindSecurityValidation

	// KindProtocol indicates a malformed reply or protocol misuse by the peer.
	KindProtocol

	// KindProtocolViolation indicates a reply that does not belong to the
	// outstanding request. It is a protocol error.
	KindProtocolViolation

	// KindTimedOut indicates an operation exceeded its timeout.
	KindTimedOut

	// KindAborted indicates the operation was interrupted by Abort.
	KindAborted

	// KindInvalidOperation indicates a lifecycle misuse by the caller.
	KindInvalidOperation

	// KindRemoteFault indicates the remote returned a well-formed fault.
	KindRemoteFault
)

var kindNames = map[Kind]string{
	KindUnknown:               "UNKNOWN",
	KindConfiguration:         "CONFIGURATION",
	KindUnsupportedShape:      "UNSUPPORTED_SHAPE",
	KindAddress:               "ADDRESS",
	KindAddressSchemeMismatch: "ADDRESS_SCHEME_MISMATCH",
	KindCommunication:         "COMMUNICATION",
	KindSecurityValidation:    "SECURITY_VALIDATION",
	KindProtocol:              "PROTOCOL",
	KindProtocolViolation:     "PROTOCOL_VIOLATION",
	KindTimedOut:              "TIMED_OUT",
	KindAborted:               "ABORTED",
	KindInvalidOperation:      "INVALID_OPERATION",
	KindRemoteFault:           "REMOTE_FAULT",
}

// String returns the kind name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// parent returns the broader kind a specialised kind belongs to.
func (k Kind) parent() Kind {
	switch k {
	case KindUnsupportedShape:
		return KindConfiguration
	case KindAddressSchemeMismatch:
		return KindAddress
	case KindProtocolViolation:
		return KindProtocol
	default:
		return KindUnknown
	}
}

// matches reports whether k is target or a specialisation of target.
func (k Kind) matches(target Kind) bool {
	for cur := k; cur != KindUnknown; cur = cur.parent() {
		if cur == target {
			return true
		}
	}
	return false
}

// Error is the error type returned by every layer of the stack.
// Use errors.Is against the Err* sentinels to classify it.
type Error struct {
	Kind Kind

	// Op names the operation that failed (e.g. "channel.Request").
	Op string

	// Msg is a human-readable description.
	Msg string

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	var s string
	switch {
	case e.Op != "" && e.Msg != "":
		s = e.Op + ": " + e.Msg
	case e.Op != "":
		s = e.Op + ": " + e.Kind.String()
	case e.Msg != "":
		s = e.Msg
	default:
		s = e.Kind.String()
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors of the same kind or of a broader kind,
// so errors.Is(err, ErrProtocol) holds for protocol violations.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || !t.isSentinel() {
		return false
	}
	return e.Kind.matches(t.Kind)
}

func (e *Error) isSentinel() bool {
	return e.Op == "" && e.Msg == "" && e.Err == nil
}

// Sentinels for errors.Is classification.
var (
	ErrConfiguration         = &Error{Kind: KindConfiguration}
	ErrUnsupportedShape      = &Error{Kind: KindUnsupportedShape}
	ErrAddress               = &Error{Kind: KindAddress}
	ErrAddressSchemeMismatch = &Error{Kind: KindAddressSchemeMismatch}
	ErrCommunication         = &Error{Kind: KindCommunication}
	ErrSecurityValidation    = &Error{Kind: KindSecurityValidation}
	ErrProtocol              = &Error{Kind: KindProtocol}
	ErrProtocolViolation     = &Error{Kind: KindProtocolViolation}
	ErrTimedOut              = &Error{Kind: KindTimedOut}
	ErrAborted               = &Error{Kind: KindAborted}
	ErrInvalidOperation      = &Error{Kind: KindInvalidOperation}
	ErrRemoteFault           = &Error{Kind: KindRemoteFault}
)

// New creates an error of the given kind.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around cause.
// A cause that is already an *Error keeps its own kind.
func Wrap(kind Kind, op string, cause error) error {
	if cause == nil {
		return nil
	}
	var fe *Error
	if errors.As(cause, &fe) {
		return cause
	}
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Wrapf creates an error of the given kind around cause with a message.
func Wrapf(kind Kind, op string, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the kind of err, or KindUnknown when err is not produced
// by this module.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var rf *RemoteFault
	if errors.As(err, &rf) {
		return KindRemoteFault
	}
	return KindUnknown
}

// Faults reports whether err leaves a channel in the Faulted state.
// Remote faults are complete exchanges and do not fault the channel.
func Faults(err error) bool {
	switch KindOf(err) {
	case KindCommunication, KindSecurityValidation, KindProtocol,
		KindProtocolViolation, KindTimedOut, KindAborted:
		return true
	default:
		return false
	}
}
