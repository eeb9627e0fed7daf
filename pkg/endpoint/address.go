// Package endpoint defines the immutable address of a remote service.
package endpoint

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/svcmodel/svcmodel-go/pkg/fault"
)

// IdentityKind names the form of an expected service identity.
type IdentityKind uint8

const (
	// IdentityNone means the address carries no identity claim.
	IdentityNone IdentityKind = iota

	// IdentityDNS expects the server certificate to be issued for Value.
	IdentityDNS

	// IdentityUPN is a user principal name. It is carried but not enforced.
	IdentityUPN

	// IdentityCertificate expects the server leaf certificate to have the
	// SHA-256 fingerprint in Value (hex).
	IdentityCertificate
)

// String returns the identity kind name.
func (k IdentityKind) String() string {
	switch k {
	case IdentityDNS:
		return "dns"
	case IdentityUPN:
		return "upn"
	case IdentityCertificate:
		return "certificate"
	default:
		return "none"
	}
}

// ParseIdentityKind parses the textual identity kind used in configuration.
func ParseIdentityKind(s string) (IdentityKind, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return IdentityNone, nil
	case "dns":
		return IdentityDNS, nil
	case "upn":
		return IdentityUPN, nil
	case "certificate", "cert":
		return IdentityCertificate, nil
	}
	return IdentityNone, fault.New(fault.KindConfiguration, "endpoint.ParseIdentityKind", "unknown identity kind %q", s)
}

// Identity is the identity the client expects the service to prove.
type Identity struct {
	Kind  IdentityKind
	Value string
}

// Address is an endpoint address. It is immutable once created.
type Address struct {
	uri      *url.URL
	identity Identity
}

// Parse creates an address from a URI string.
func Parse(raw string) (*Address, error) {
	return ParseWithIdentity(raw, Identity{})
}

// ParseWithIdentity creates an address from a URI string and an identity.
func ParseWithIdentity(raw string, id Identity) (*Address, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fault.Wrapf(fault.KindAddress, "endpoint.Parse", err, "invalid uri %q", raw)
	}
	if u.Scheme == "" {
		return nil, fault.New(fault.KindAddress, "endpoint.Parse", "uri %q has no scheme", raw)
	}
	if u.Host == "" && u.Scheme != "net.pipe" {
		return nil, fault.New(fault.KindAddress, "endpoint.Parse", "uri %q has no host", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	return &Address{uri: u, identity: id}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level values.
func MustParse(raw string) *Address {
	a, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return a
}

// URI returns a copy of the address URI.
func (a *Address) URI() *url.URL {
	u := *a.uri
	return &u
}

// Scheme returns the lower-case URI scheme.
func (a *Address) Scheme() string {
	return a.uri.Scheme
}

// Host returns host:port. When the URI has no port, the scheme default is
// used.
func (a *Address) Host() string {
	if a.uri.Port() != "" {
		return a.uri.Host
	}
	if port := DefaultPort(a.uri.Scheme); port != "" {
		return net.JoinHostPort(a.uri.Hostname(), port)
	}
	return a.uri.Host
}

// Hostname returns the host without port.
func (a *Address) Hostname() string {
	return a.uri.Hostname()
}

// Path returns the URI path.
func (a *Address) Path() string {
	return a.uri.Path
}

// Identity returns the expected service identity.
func (a *Address) Identity() Identity {
	return a.identity
}

// String returns the URI string.
func (a *Address) String() string {
	return a.uri.String()
}

// WithIdentity returns a copy of a with the given identity.
func (a *Address) WithIdentity(id Identity) *Address {
	u := *a.uri
	return &Address{uri: &u, identity: id}
}

// Equal compares URI and identity.
func (a *Address) Equal(b *Address) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.uri.String() == b.uri.String() && a.identity == b.identity
}

// DefaultPort returns the default port for a scheme, or "" when none.
func DefaultPort(scheme string) string {
	switch scheme {
	case "http", "ws":
		return "80"
	case "https", "wss":
		return "443"
	case "net.tcp":
		return "808"
	default:
		return ""
	}
}

// Join returns base with path appended.
func Join(base *Address, path string) (*Address, error) {
	u := base.URI().JoinPath(path)
	return ParseWithIdentity(u.String(), base.identity)
}

// Format builds a scheme://host:port/path address.
func Format(scheme, host string, port int, path string) string {
	if !strings.HasPrefix(path, "/") && path != "" {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s%s", scheme, net.JoinHostPort(host, fmt.Sprint(port)), path)
}
