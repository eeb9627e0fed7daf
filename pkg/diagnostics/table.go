package diagnostics

// Facility bases. Codes within a facility continue from its base without
// gaps. Tracing historically starts at 0x0064; every other facility at 1.
const (
	tracingBase           = EventID(SeverityError)<<severityShift | EventID(FacilityTracing)<<facilityShift | 0x0064
	serviceModelBase      = EventID(SeverityError)<<severityShift | EventID(FacilityServiceModel)<<facilityShift | 0x0001
	transactionBridgeBase = EventID(SeverityError)<<severityShift | EventID(FacilityTransactionBridge)<<facilityShift | 0x0001
	smSvcHostBase         = EventID(SeverityError)<<severityShift | EventID(FacilitySMSvcHost)<<facilityShift | 0x0001
)

// Tracing.
const (
	FailedToSetupTracing EventID = tracingBase + iota
	FailedToInitializeTraceSource
	FailFast
	FailFastException
	FailedToTraceEvent
	FailedToTraceEventWithException
	InvariantAssertionFailed
	PiiLoggingOn
	PiiLoggingNotAllowed
)

// ServiceModel.
const (
	WebHostUnhandledException EventID = serviceModelBase + iota
	WebHostHttpError
	WebHostFailedToProcessRequest
	WebHostFailedToListen
	FailedToLogMessage
	RemovedBadFilter
	FailedToCreateMessageLoggingTraceSource
	MessageLoggingOn
	MessageLoggingOff
	FailedToLoadPerformanceCounter
	FailedToRemovePerformanceCounter
	WmiGetObjectFailed
	WmiPutInstanceFailed
	WmiDeleteInstanceFailed
	WmiCreateInstanceFailed
	WmiExecQueryFailed
	WmiExecMethodFailed
	WmiRegistrationFailed
	WmiUnregistrationFailed
	WmiAdminTypeMismatch
	WmiPropertyMissing
	ComPlusServiceHostStartingServiceError
	ComPlusDllHostInitializerStartingError
	ComPlusTLBImportError
	ComPlusInvokingMethodFailed
	ComPlusInstanceCreationError
	ComPlusInvokingMethodFailedMismatchedTransactions
)

// WebHostNotLoggingInsufficientMemoryExceptionsOnActivationForNextTimeInterval
// is the 28th ServiceModel event. It is a warning, so it cannot inherit the
// error severity of its predecessors.
const WebHostNotLoggingInsufficientMemoryExceptionsOnActivationForNextTimeInterval EventID = EventID(SeverityWarning)<<severityShift | EventID(FacilityServiceModel)<<facilityShift | 0x001c

// TransactionBridge.
const (
	UnhandledStateMachineExceptionRecordDescription EventID = transactionBridgeBase + iota
	FatalUnexpectedStateMachineEvent
	ParticipantRecoveryLogEntryCorrupt
	CoordinatorRecoveryLogEntryCorrupt
	CoordinatorRecoveryLogEntryCreationFailure
	ParticipantRecoveryLogEntryCreationFailure
	ProtocolInitializationFailure
	ProtocolStartFailure
	ProtocolRecoveryBeginningFailure
	ProtocolRecoveryCompleteFailure
	TransactionBridgeRecoveryFailure
	ProtocolStopFailure
	NonFatalUnexpectedStateMachineEvent
	PerformanceCounterInitializationFailure
	ProtocolRecoveryComplete
	ProtocolStopped
	ThumbPrintNotFound
	ThumbPrintNotValidated
	SslNoPrivateKey
	SslNoAccessiblePrivateKey
	MissingNecessaryKeyUsage
	MissingNecessaryEnhancedKeyUsage
)

// SMSvcHost.
const (
	StartErrorPublish EventID = smSvcHostBase + iota
	BindingError
	LAFailedToListenForApp
	UnknownListenerAdapterError
	WasDisconnected
	WasConnectionTimedout
	ServiceStartFailed
	MessageQueueDuplicatedSocketLeak
	MessageQueueDuplicatedPipeLeak
	SharingUnhandledException
)

// SecurityAudit. Success and failure events alternate in severity.
var (
	ServiceAuthorizationSuccess    = Encode(SeverityInformational, FacilitySecurityAudit, 0x0001)
	ServiceAuthorizationFailure    = Encode(SeverityError, FacilitySecurityAudit, 0x0002)
	MessageAuthenticationSuccess   = Encode(SeverityInformational, FacilitySecurityAudit, 0x0003)
	MessageAuthenticationFailure   = Encode(SeverityError, FacilitySecurityAudit, 0x0004)
	SecurityNegotiationSuccess     = Encode(SeverityInformational, FacilitySecurityAudit, 0x0005)
	SecurityNegotiationFailure     = Encode(SeverityError, FacilitySecurityAudit, 0x0006)
	TransportAuthenticationSuccess = Encode(SeverityInformational, FacilitySecurityAudit, 0x0007)
	TransportAuthenticationFailure = Encode(SeverityError, FacilitySecurityAudit, 0x0008)
	ImpersonationSuccess           = Encode(SeverityInformational, FacilitySecurityAudit, 0x0009)
	ImpersonationFailure           = Encode(SeverityError, FacilitySecurityAudit, 0x000a)
)

// Entry describes one registered event.
type Entry struct {
	ID   EventID
	Name string
}

// Severity returns the entry severity.
func (e Entry) Severity() Severity { return e.ID.Severity() }

// Facility returns the entry facility.
func (e Entry) Facility() Facility { return e.ID.Facility() }

// Sequence returns the entry sequence number.
func (e Entry) Sequence() uint16 { return e.ID.Sequence() }

// entries is the append-only table in registration order. Never renumber:
// external viewers bind display strings to the exact id.
var entries = []Entry{
	{FailedToSetupTracing, "FailedToSetupTracing"},
	{FailedToInitializeTraceSource, "FailedToInitializeTraceSource"},
	{FailFast, "FailFast"},
	{FailFastException, "FailFastException"},
	{FailedToTraceEvent, "FailedToTraceEvent"},
	{FailedToTraceEventWithException, "FailedToTraceEventWithException"},
	{InvariantAssertionFailed, "InvariantAssertionFailed"},
	{PiiLoggingOn, "PiiLoggingOn"},
	{PiiLoggingNotAllowed, "PiiLoggingNotAllowed"},

	{WebHostUnhandledException, "WebHostUnhandledException"},
	{WebHostHttpError, "WebHostHttpError"},
	{WebHostFailedToProcessRequest, "WebHostFailedToProcessRequest"},
	{WebHostFailedToListen, "WebHostFailedToListen"},
	{FailedToLogMessage, "FailedToLogMessage"},
	{RemovedBadFilter, "RemovedBadFilter"},
	{FailedToCreateMessageLoggingTraceSource, "FailedToCreateMessageLoggingTraceSource"},
	{MessageLoggingOn, "MessageLoggingOn"},
	{MessageLoggingOff, "MessageLoggingOff"},
	{FailedToLoadPerformanceCounter, "FailedToLoadPerformanceCounter"},
	{FailedToRemovePerformanceCounter, "FailedToRemovePerformanceCounter"},
	{WmiGetObjectFailed, "WmiGetObjectFailed"},
	{WmiPutInstanceFailed, "WmiPutInstanceFailed"},
	{WmiDeleteInstanceFailed, "WmiDeleteInstanceFailed"},
	{WmiCreateInstanceFailed, "WmiCreateInstanceFailed"},
	{WmiExecQueryFailed, "WmiExecQueryFailed"},
	{WmiExecMethodFailed, "WmiExecMethodFailed"},
	{WmiRegistrationFailed, "WmiRegistrationFailed"},
	{WmiUnregistrationFailed, "WmiUnregistrationFailed"},
	{WmiAdminTypeMismatch, "WmiAdminTypeMismatch"},
	{WmiPropertyMissing, "WmiPropertyMissing"},
	{ComPlusServiceHostStartingServiceError, "ComPlusServiceHostStartingServiceError"},
	{ComPlusDllHostInitializerStartingError, "ComPlusDllHostInitializerStartingError"},
	{ComPlusTLBImportError, "ComPlusTLBImportError"},
	{ComPlusInvokingMethodFailed, "ComPlusInvokingMethodFailed"},
	{ComPlusInstanceCreationError, "ComPlusInstanceCreationError"},
	{ComPlusInvokingMethodFailedMismatchedTransactions, "ComPlusInvokingMethodFailedMismatchedTransactions"},
	{WebHostNotLoggingInsufficientMemoryExceptionsOnActivationForNextTimeInterval, "WebHostNotLoggingInsufficientMemoryExceptionsOnActivationForNextTimeInterval"},

	{UnhandledStateMachineExceptionRecordDescription, "UnhandledStateMachineExceptionRecordDescription"},
	{FatalUnexpectedStateMachineEvent, "FatalUnexpectedStateMachineEvent"},
	{ParticipantRecoveryLogEntryCorrupt, "ParticipantRecoveryLogEntryCorrupt"},
	{CoordinatorRecoveryLogEntryCorrupt, "CoordinatorRecoveryLogEntryCorrupt"},
	{CoordinatorRecoveryLogEntryCreationFailure, "CoordinatorRecoveryLogEntryCreationFailure"},
	{ParticipantRecoveryLogEntryCreationFailure, "ParticipantRecoveryLogEntryCreationFailure"},
	{ProtocolInitializationFailure, "ProtocolInitializationFailure"},
	{ProtocolStartFailure, "ProtocolStartFailure"},
	{ProtocolRecoveryBeginningFailure, "ProtocolRecoveryBeginningFailure"},
	{ProtocolRecoveryCompleteFailure, "ProtocolRecoveryCompleteFailure"},
	{TransactionBridgeRecoveryFailure, "TransactionBridgeRecoveryFailure"},
	{ProtocolStopFailure, "ProtocolStopFailure"},
	{NonFatalUnexpectedStateMachineEvent, "NonFatalUnexpectedStateMachineEvent"},
	{PerformanceCounterInitializationFailure, "PerformanceCounterInitializationFailure"},
	{ProtocolRecoveryComplete, "ProtocolRecoveryComplete"},
	{ProtocolStopped, "ProtocolStopped"},
	{ThumbPrintNotFound, "ThumbPrintNotFound"},
	{ThumbPrintNotValidated, "ThumbPrintNotValidated"},
	{SslNoPrivateKey, "SslNoPrivateKey"},
	{SslNoAccessiblePrivateKey, "SslNoAccessiblePrivateKey"},
	{MissingNecessaryKeyUsage, "MissingNecessaryKeyUsage"},
	{MissingNecessaryEnhancedKeyUsage, "MissingNecessaryEnhancedKeyUsage"},

	{StartErrorPublish, "StartErrorPublish"},
	{BindingError, "BindingError"},
	{LAFailedToListenForApp, "LAFailedToListenForApp"},
	{UnknownListenerAdapterError, "UnknownListenerAdapterError"},
	{WasDisconnected, "WasDisconnected"},
	{WasConnectionTimedout, "WasConnectionTimedout"},
	{ServiceStartFailed, "ServiceStartFailed"},
	{MessageQueueDuplicatedSocketLeak, "MessageQueueDuplicatedSocketLeak"},
	{MessageQueueDuplicatedPipeLeak, "MessageQueueDuplicatedPipeLeak"},
	{SharingUnhandledException, "SharingUnhandledException"},

	{ServiceAuthorizationSuccess, "ServiceAuthorizationSuccess"},
	{ServiceAuthorizationFailure, "ServiceAuthorizationFailure"},
	{MessageAuthenticationSuccess, "MessageAuthenticationSuccess"},
	{MessageAuthenticationFailure, "MessageAuthenticationFailure"},
	{SecurityNegotiationSuccess, "SecurityNegotiationSuccess"},
	{SecurityNegotiationFailure, "SecurityNegotiationFailure"},
	{TransportAuthenticationSuccess, "TransportAuthenticationSuccess"},
	{TransportAuthenticationFailure, "TransportAuthenticationFailure"},
	{ImpersonationSuccess, "ImpersonationSuccess"},
	{ImpersonationFailure, "ImpersonationFailure"},
}

var (
	byID   map[EventID]Entry
	byName map[string]Entry
)

func init() {
	byID = make(map[EventID]Entry, len(entries))
	byName = make(map[string]Entry, len(entries))
	for _, e := range entries {
		if _, dup := byID[e.ID]; dup {
			panic("diagnostics: duplicate event id " + e.Name)
		}
		byID[e.ID] = e
		byName[e.Name] = e
	}
}

// Lookup returns the entry registered for id.
func Lookup(id EventID) (Entry, bool) {
	e, ok := byID[id]
	return e, ok
}

// LookupName returns the entry registered under name.
func LookupName(name string) (Entry, bool) {
	e, ok := byName[name]
	return e, ok
}

// Entries returns every registered entry in registration order.
func Entries() []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// FacilityEntries returns the entries of one facility in registration order.
func FacilityEntries(f Facility) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Facility() == f {
			out = append(out, e)
		}
	}
	return out
}

// FacilityBase returns the first sequence number of a facility.
func FacilityBase(f Facility) uint16 {
	if f == FacilityTracing {
		return 0x0064
	}
	return 0x0001
}
