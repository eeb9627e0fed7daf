package diagnostics

import (
	"fmt"
	"strconv"
	"strings"
)

// Severity is the top two bits of an EventID.
type Severity uint8

const (
	SeveritySuccess       Severity = 0
	SeverityInformational Severity = 1
	SeverityWarning       Severity = 2
	SeverityError         Severity = 3
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "Success"
	case SeverityInformational:
		return "Informational"
	case SeverityWarning:
		return "Warning"
	case SeverityError:
		return "Error"
	default:
		return fmt.Sprintf("Severity(%d)", uint8(s))
	}
}

// Facility identifies the subsystem that emits an event.
type Facility uint16

const (
	FacilityTracing           Facility = 0x001
	FacilityServiceModel      Facility = 0x002
	FacilityTransactionBridge Facility = 0x003
	FacilitySMSvcHost         Facility = 0x004
	FacilityInfoCards         Facility = 0x005
	FacilitySecurityAudit     Facility = 0x006
)

// String returns the facility name.
func (f Facility) String() string {
	switch f {
	case FacilityTracing:
		return "Tracing"
	case FacilityServiceModel:
		return "ServiceModel"
	case FacilityTransactionBridge:
		return "TransactionBridge"
	case FacilitySMSvcHost:
		return "SMSvcHost"
	case FacilityInfoCards:
		return "InfoCards"
	case FacilitySecurityAudit:
		return "SecurityAudit"
	default:
		return fmt.Sprintf("Facility(0x%03x)", uint16(f))
	}
}

// EventID is a diagnostic event code laid out as
// severity(2 bits) | reserved(2 bits) | facility(12 bits) | sequence(16 bits).
type EventID uint32

const (
	severityShift = 30
	facilityShift = 16
	facilityMask  = 0x0fff
	sequenceMask  = 0xffff
)

// Encode builds an EventID from its parts.
func Encode(sev Severity, fac Facility, seq uint16) EventID {
	return EventID(sev&0x3)<<severityShift | EventID(fac&facilityMask)<<facilityShift | EventID(seq)
}

// Decode splits an EventID into its parts.
func Decode(id EventID) (Severity, Facility, uint16) {
	return id.Severity(), id.Facility(), id.Sequence()
}

// Severity returns the severity bits.
func (id EventID) Severity() Severity {
	return Severity(id >> severityShift)
}

// Facility returns the facility bits.
func (id EventID) Facility() Facility {
	return Facility((id >> facilityShift) & facilityMask)
}

// Sequence returns the per-facility sequence number.
func (id EventID) Sequence() uint16 {
	return uint16(id & sequenceMask)
}

// String returns the registered name, or the hex code for unknown ids.
func (id EventID) String() string {
	if e, ok := Lookup(id); ok {
		return e.Name
	}
	return fmt.Sprintf("0x%08x", uint32(id))
}

// ParseEventID parses a decimal or 0x-prefixed hexadecimal event id.
func ParseEventID(s string) (EventID, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid event id %q: %w", s, err)
	}
	return EventID(v), nil
}
