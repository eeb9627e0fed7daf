package cert

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"strings"
)

// Thumbprint returns the upper-case hex SHA-256 digest of the DER
// certificate.
func Thumbprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// NormalizeThumbprint strips separators and upper-cases a thumbprint so
// "ab:cd" and "ABCD" compare equal.
func NormalizeThumbprint(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ':', ' ', '-':
			return -1
		}
		return r
	}, s)
	return strings.ToUpper(s)
}

// MatchThumbprint reports whether cert has the given thumbprint.
func MatchThumbprint(cert *x509.Certificate, thumbprint string) bool {
	return cert != nil && Thumbprint(cert) == NormalizeThumbprint(thumbprint)
}
