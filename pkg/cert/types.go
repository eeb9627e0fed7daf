package cert

import (
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"time"
)

// Default validity periods.
const (
	// CAValidity is the validity of generated CA certificates.
	CAValidity = 5 * 365 * 24 * time.Hour

	// LeafValidity is the validity of generated leaf certificates.
	LeafValidity = 365 * 24 * time.Hour
)

// KeyPair holds an ECDSA P-256 key pair.
type KeyPair struct {
	PrivateKey *ecdsa.PrivateKey
	PublicKey  *ecdsa.PublicKey
}

// CA is a certificate authority able to issue leaf certificates.
type CA struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// Pool returns a pool holding only the CA certificate.
func (ca *CA) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(ca.Certificate)
	return pool
}

// Leaf is an issued certificate with its private key.
type Leaf struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// TLSCertificate returns the leaf as a tls.Certificate.
func (l *Leaf) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{l.Certificate.Raw},
		PrivateKey:  l.PrivateKey,
		Leaf:        l.Certificate,
	}
}

// LeafOptions describes a leaf certificate to issue.
type LeafOptions struct {
	// CommonName is the subject common name.
	CommonName string

	// Hosts are DNS names or IP addresses added as SANs.
	Hosts []string

	// Emails are e-mail SANs, used for UPN-style identities.
	Emails []string

	// Client adds the client-auth extended key usage.
	Client bool

	// Server adds the server-auth extended key usage.
	Server bool

	// Validity overrides LeafValidity.
	Validity time.Duration
}
