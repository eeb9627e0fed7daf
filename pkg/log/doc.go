// Package log provides protocol capture for the channel stack.
//
// It is separate from operational logging (slog): channels, transports and
// service hosts emit Events describing frames, decoded messages, lifecycle
// transitions and errors. Configure it through the ProtocolLogger field of
// the binding parameters or host config:
//
//	params.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	fl, _ := log.NewFileLogger("/var/log/svcmodel/client.svclog")
//	params.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// Log files are CBOR sequences and can be inspected with "svcctl log view".
package log
