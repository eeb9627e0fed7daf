package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/svcmodel/svcmodel-go/pkg/cert"
	"github.com/svcmodel/svcmodel-go/pkg/endpoint"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
)

// TLSConfig holds the certificates used by https, wss and TLS-secured tcp.
type TLSConfig struct {
	// Certificates are presented to the peer. Clients only need one when
	// the service requires certificate credentials.
	Certificates []tls.Certificate

	// RootCAs verifies service certificates. Nil uses the system pool.
	RootCAs *x509.CertPool

	// ClientCAs verifies client certificates on the service side.
	ClientCAs *x509.CertPool

	// RequireClientCert makes the service demand a verified client
	// certificate.
	RequireClientCert bool

	// InsecureSkipVerify disables chain verification. An endpoint
	// certificate identity is still enforced. Only for tests.
	InsecureSkipVerify bool
}

// NewClientTLSConfig creates the client TLS configuration for addr. The
// address identity decides what the service must prove: a DNS identity
// replaces the host name used for verification, a certificate identity pins
// the leaf thumbprint.
func NewClientTLSConfig(cfg *TLSConfig, addr *endpoint.Address) (*tls.Config, error) {
	if addr == nil {
		return nil, fault.New(fault.KindConfiguration, "transport.NewClientTLSConfig", "address is required")
	}
	if cfg == nil {
		cfg = &TLSConfig{}
	}

	id := addr.Identity()
	serverName := addr.Hostname()
	if id.Kind == endpoint.IdentityDNS && id.Value != "" {
		serverName = id.Value
	}

	tc := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		Certificates:       cfg.Certificates,
		RootCAs:            cfg.RootCAs,
		ServerName:         serverName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if id.Kind == endpoint.IdentityCertificate {
		thumbprint := id.Value
		tc.VerifyConnection = func(cs tls.ConnectionState) error {
			return VerifyIdentity(cs, thumbprint)
		}
	}
	return tc, nil
}

// NewServerTLSConfig creates the service-side TLS configuration.
func NewServerTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil || len(cfg.Certificates) == 0 {
		return nil, fault.New(fault.KindConfiguration, "transport.NewServerTLSConfig", "server certificate is required")
	}

	tc := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: cfg.Certificates,
		ClientCAs:    cfg.ClientCAs,
		ClientAuth:   tls.NoClientCert,
	}
	switch {
	case cfg.RequireClientCert:
		tc.ClientAuth = tls.RequireAndVerifyClientCert
	case cfg.ClientCAs != nil:
		tc.ClientAuth = tls.VerifyClientCertIfGiven
	}
	return tc, nil
}

// ErrIdentityMismatch indicates the service certificate does not match the
// endpoint certificate identity.
var ErrIdentityMismatch = errors.New("certificate identity mismatch")

// VerifyIdentity checks that the peer leaf certificate has the expected
// SHA-256 thumbprint.
func VerifyIdentity(cs tls.ConnectionState, thumbprint string) error {
	if len(cs.PeerCertificates) == 0 {
		return errors.New("peer presented no certificate")
	}
	leaf := cs.PeerCertificates[0]
	if !cert.MatchThumbprint(leaf, thumbprint) {
		return fmt.Errorf("%w: got %s, want %s", ErrIdentityMismatch,
			cert.Thumbprint(leaf), cert.NormalizeThumbprint(thumbprint))
	}
	return nil
}

// tlsKey identifies the TLS identity of a pooled connection. Connections with
// different client certificates or expected identities are never shared.
func tlsKey(cfg *tls.Config) string {
	if cfg == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(cfg.ServerName)
	for _, c := range cfg.Certificates {
		if c.Leaf != nil {
			b.WriteString("|" + cert.Thumbprint(c.Leaf))
		} else if len(c.Certificate) > 0 {
			if leaf, err := x509.ParseCertificate(c.Certificate[0]); err == nil {
				b.WriteString("|" + cert.Thumbprint(leaf))
			}
		}
	}
	if cfg.InsecureSkipVerify {
		b.WriteString("|insecure")
	}
	if cfg.VerifyConnection != nil {
		b.WriteString("|pinned")
	}
	return b.String()
}

// classifyDialError maps a dial or handshake failure onto the fault taxonomy.
// Certificate rejections are security failures; everything else is a
// communication failure.
func classifyDialError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isCertificateError(err) {
		return fault.Wrapf(fault.KindSecurityValidation, op, err, "certificate rejected")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fault.Wrapf(fault.KindTimedOut, op, err, "connect timed out")
	}
	return fault.Wrap(fault.KindCommunication, op, err)
}

func isCertificateError(err error) bool {
	var (
		unknownAuth x509.UnknownAuthorityError
		hostname    x509.HostnameError
		invalid     x509.CertificateInvalidError
		verifyErr   *tls.CertificateVerificationError
		alert       tls.AlertError
	)
	switch {
	case errors.As(err, &unknownAuth), errors.As(err, &hostname),
		errors.As(err, &invalid), errors.As(err, &verifyErr):
		return true
	case errors.As(err, &alert):
		// bad_certificate, unsupported_certificate, certificate_revoked,
		// certificate_expired, certificate_unknown, unknown_ca,
		// certificate_required
		switch alert {
		case 42, 43, 44, 45, 46, 48, 116:
			return true
		}
	}
	return errors.Is(err, ErrIdentityMismatch)
}
