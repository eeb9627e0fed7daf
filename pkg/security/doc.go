// Package security implements the security layer of a binding.
//
// A Settings value selects a Mode and a client CredentialKind:
//
//   - ModeNone sends messages as they are. Basic credentials may still be
//     sent by the transport (transport credential only).
//   - ModeTransport relies on TLS. The transport receives the client
//     certificate or basic credentials.
//   - ModeMessage protects every message body with a key shared with the
//     service (see Protector) and may carry a UsernameToken.
//   - ModeTransportWithMessageCredential runs over TLS and carries the
//     client credential as a UsernameToken header.
//
// Windows credentials are not available and fail validation with a
// configuration error.
//
// Services authenticate username/password pairs through a
// CredentialValidator supplied by the host.
package security
