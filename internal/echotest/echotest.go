// Package echotest starts a loopback echo host for tests.
package echotest

import (
	"context"
	"crypto/tls"
	"path/filepath"
	"testing"
	"time"

	"github.com/svcmodel/svcmodel-go/pkg/cert"
	"github.com/svcmodel/svcmodel-go/pkg/endpoint"
	"github.com/svcmodel/svcmodel-go/pkg/security"
	"github.com/svcmodel/svcmodel-go/pkg/servicehost"
	"github.com/svcmodel/svcmodel-go/pkg/transport"
)

// Test credentials accepted by the https-basic endpoint.
const (
	Username = "testuser"
	Password = "testpassword"
)

// MessageKey is the shared key of the message security endpoint.
var MessageKey = []byte("echotest-message-security-key-32")

// Env is a running echo host with its certificates.
type Env struct {
	Host   *servicehost.Host
	Bundle *cert.Bundle
}

// Option adjusts the host configuration before it starts.
type Option func(*servicehost.Config)

// WithService replaces the echo service.
func WithService(s *servicehost.Service) Option {
	return func(c *servicehost.Config) { c.Service = s }
}

// WithConfig applies fn to the configuration.
func WithConfig(fn func(*servicehost.Config)) Option {
	return func(c *servicehost.Config) { fn(c) }
}

// Start runs a host with every listener on loopback and stops it when the
// test ends.
func Start(t testing.TB, opts ...Option) *Env {
	t.Helper()
	bundle, err := cert.NewBundle([]string{"127.0.0.1", "localhost"}, "echotest-client")
	if err != nil {
		t.Fatalf("NewBundle failed: %v", err)
	}

	cfg := servicehost.DefaultConfig()
	cfg.HTTPSAddr = "127.0.0.1:0"
	cfg.PipeDir = shortDir(t)
	cfg.PipeResource = 1
	cfg.TLS = &transport.TLSConfig{Certificates: []tls.Certificate{bundle.Server.TLSCertificate()}}
	cfg.Validator = security.StaticCredentials{Username: Password}
	cfg.MessageKey = MessageKey
	for _, opt := range opts {
		opt(&cfg)
	}

	host, err := servicehost.New(cfg)
	if err != nil {
		t.Fatalf("servicehost.New failed: %v", err)
	}
	if err := host.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = host.Stop(ctx)
	})
	return &Env{Host: host, Bundle: bundle}
}

// Address returns the endpoint address for scheme and path.
func (e *Env) Address(t testing.TB, scheme transport.Scheme, path string) *endpoint.Address {
	t.Helper()
	addr, err := e.Host.Address(scheme, path)
	if err != nil {
		t.Fatalf("Address(%s, %s) failed: %v", scheme, path, err)
	}
	return addr
}

// ClientTLS trusts the host certificate.
func (e *Env) ClientTLS() *transport.TLSConfig {
	return &transport.TLSConfig{RootCAs: e.Bundle.CA.Pool()}
}

// shortDir returns a temp dir whose paths fit a unix socket address.
func shortDir(t testing.TB) string {
	dir := t.TempDir()
	if len(filepath.Join(dir, "svcmodel-1.sock")) < 100 {
		return dir
	}
	return ""
}
