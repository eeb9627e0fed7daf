// Package config loads client configuration files.
//
// A file names bindings and endpoints. Bindings describe the element stack
// (transport, encoding, security, compression) and endpoints pair a binding
// with an address, either a literal URI or a resource resolved at open time.
// YAML (.yaml, .yml) and TOML (.toml) are accepted; durations are strings
// such as "30s".
//
//	bindings:
//	  secure-tcp:
//	    transport: net.tcp
//	    encoding: binary
//	    security:
//	      mode: transport
//	      caFile: ca.pem
//	endpoints:
//	  echo:
//	    binding: secure-tcp
//	    address: net.tcp://localhost:8808/echo
//	    identity: {kind: dns, value: localhost}
package config
