// Package cert generates and loads the X.509 material used by TLS
// transports: self-signed certificate authorities, issued leaf
// certificates, PEM files and SHA-256 thumbprints for certificate
// identities.
package cert
