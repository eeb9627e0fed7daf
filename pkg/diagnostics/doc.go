// Package diagnostics holds the diagnostic event-code table and the sinks
// that consume it.
//
// Every event has a stable 32-bit id:
//
//	bits 31-30  severity (Success, Informational, Warning, Error)
//	bits 27-16  facility (Tracing, ServiceModel, TransactionBridge, ...)
//	bits 15-0   sequence within the facility
//
// The table is append-only. Within a facility, sequences increase by one
// from the facility base in registration order, regardless of severity.
// Log viewers bind display strings to the exact id, so existing entries
// must never be renumbered.
package diagnostics
