// Package fault defines the error taxonomy shared by every layer of the
// channel stack.
//
// All errors produced by the stack are *Error values carrying a Kind, or
// *RemoteFault values for faults reported by the peer. Classify them with
// errors.Is against the sentinels:
//
//	if errors.Is(err, fault.ErrTimedOut) {
//	    // channel is now Faulted; build a new one to retry
//	}
//
// Some kinds specialise a broader one:
//   - UnsupportedShape is a Configuration error
//   - AddressSchemeMismatch is an Address error
//   - ProtocolViolation is a Protocol error
package fault
