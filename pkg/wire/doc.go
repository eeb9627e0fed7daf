// Package wire defines how messages and transport frames are encoded.
//
// # Encoders
//
// An Encoder turns a *message.Message into bytes and back. Three encodings
// are provided:
//   - Text: a JSON envelope (content type application/soap+json)
//   - Binary: a CBOR envelope with integer keys (application/soap+cbor)
//   - MTOM: a msgpack envelope followed by the body as a raw binary
//     attachment (multipart/related; type="application/msgpack")
//
// # Frames
//
// Connection-oriented transports (tcp, pipe, websocket) exchange CBOR
// Frames. Each frame carries a kind, a correlation id local to the
// connection, the encoder content type and the encoded envelope. Frames are
// length-prefixed by the transport framer.
package wire
