// Package transport moves encoded messages between a channel and a service.
//
// Supported schemes:
//
//	http, https   one POST per request; request and one-way channels
//	net.tcp       length-prefixed frames over TCP, optionally TLS
//	net.pipe      length-prefixed frames over a unix socket on this host
//	ws, wss       one frame per websocket message; duplex channels only
//
// # Framed transports
//
// Each frame is a CBOR-encoded wire.Frame preceded by a 4-byte big-endian
// length. Request frames carry an ID; the matching reply carries the same
// ID, so channels to the same target share one pooled connection and
// replies are dispatched to the waiting caller by the connection's read
// loop. Duplex channels get a connection of their own.
//
// Connections are pooled process-wide by network, address and TLS
// identity. Concurrent channels opening to an unconnected target wait for
// a single dial. A request that times out evicts its connection so new
// channels never inherit a connection in doubt.
//
// # Keep-alive
//
// Pooled connections may be probed with ping frames. After MaxMissedPongs
// consecutive unanswered pings the connection is dropped and every waiting
// caller fails with a communication error.
//
// # Errors
//
// Connection failures surface as fault.KindCommunication, certificate and
// credential rejections as fault.KindSecurityValidation, and undecodable
// replies as fault.KindProtocol.
package transport
