// Package servicehost is a loopback service host for tests, demos and the
// svcctl CLI. It serves an echo service over every transport of the stack:
//
//	http://host:port/basic          SOAP 1.1 text
//	http://host:port/custom         SOAP 1.2 + WS-Addressing text
//	https://host:port/https-basic   SOAP 1.1 text, basic auth checked by a CredentialValidator
//	net.tcp://host:port/echo        binary
//	net.tcp://host:port/message     binary, message security with a shared key
//	net.pipe:///dir/svcmodel-N.sock/echo
//	ws://host:port/duplex           binary, replies pushed back on the socket
//
// Requests for an unknown action are answered with an ActionNotSupported
// fault. Compressed requests get compressed replies.
package servicehost
