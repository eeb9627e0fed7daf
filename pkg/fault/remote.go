package fault

// Well-known remote fault codes.
const (
	CodeActionNotSupported   = "ActionNotSupported"
	CodeFailedAuthentication = "FailedAuthentication"
	CodeInvalidSecurity      = "InvalidSecurity"
	CodeInternalServiceFault = "InternalServiceFault"
	CodeMalformedMessage     = "MalformedMessage"
)

// RemoteFault is a fault reported by the remote service in a reply.
type RemoteFault struct {
	// Code is the fault code (e.g. ActionNotSupported).
	Code string

	// Reason is the human-readable reason supplied by the remote.
	Reason string

	// Action is the request action the fault refers to.
	Action string
}

func (e *RemoteFault) Error() string {
	if e.Reason != "" {
		return "remote fault " + e.Code + ": " + e.Reason
	}
	return "remote fault " + e.Code
}

// Is makes errors.Is(err, ErrRemoteFault) hold for remote faults.
func (e *RemoteFault) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.isSentinel() && t.Kind == KindRemoteFault
}
