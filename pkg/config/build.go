package config

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/svcmodel/svcmodel-go/pkg/binding"
	"github.com/svcmodel/svcmodel-go/pkg/cert"
	"github.com/svcmodel/svcmodel-go/pkg/channel"
	"github.com/svcmodel/svcmodel-go/pkg/endpoint"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/message"
	"github.com/svcmodel/svcmodel-go/pkg/resolve"
	"github.com/svcmodel/svcmodel-go/pkg/retry"
	"github.com/svcmodel/svcmodel-go/pkg/security"
	"github.com/svcmodel/svcmodel-go/pkg/transport"
	"github.com/svcmodel/svcmodel-go/pkg/wire"
)

// Endpoint is a configured endpoint ready to build a channel factory.
type Endpoint struct {
	Name    string
	Binding *binding.Binding

	// Address is set for literal addresses.
	Address *endpoint.Address

	// Target is set for resource endpoints.
	Target   *resolve.ResourceRequest
	Resolver resolve.Resolver

	identity endpoint.Identity
}

// Parameters returns base with the endpoint's target and resolver filled in.
func (e *Endpoint) Parameters(base binding.Parameters) binding.Parameters {
	if e.Target != nil {
		base.Target = e.Target
		base.Resolver = e.Resolver
	}
	return base
}

// Resolve returns the endpoint address, resolving the resource if needed.
func (e *Endpoint) Resolve(ctx context.Context) (*endpoint.Address, error) {
	if e.Address != nil {
		return e.Address, nil
	}
	addr, err := e.Resolver.Resolve(ctx, *e.Target)
	if err != nil {
		return nil, fault.Wrapf(fault.KindAddress, "config.Endpoint.Resolve", err, "endpoint %q", e.Name)
	}
	if e.identity.Kind != endpoint.IdentityNone {
		addr = addr.WithIdentity(e.identity)
	}
	return addr, nil
}

// Endpoint builds the named endpoint and its binding.
func (c *Config) Endpoint(name string) (*Endpoint, error) {
	const op = "config.Endpoint"
	ec, ok := c.Endpoints[name]
	if !ok {
		return nil, fault.New(fault.KindConfiguration, op, "unknown endpoint %q", name)
	}
	b, err := c.Binding(ec.Binding)
	if err != nil {
		return nil, err
	}

	kind, err := endpoint.ParseIdentityKind(ec.Identity.Kind)
	if err != nil {
		return nil, err
	}
	if kind != endpoint.IdentityNone && ec.Identity.Value == "" {
		return nil, fault.New(fault.KindConfiguration, op, "endpoint %q: identity %s needs a value", name, kind)
	}
	id := endpoint.Identity{Kind: kind, Value: ec.Identity.Value}

	ep := &Endpoint{Name: name, Binding: b, identity: id}
	if ec.Resource != nil {
		ep.Target = &resolve.ResourceRequest{
			Protocol: ec.Resource.Protocol,
			Port:     ec.Resource.Port,
			Path:     ec.Resource.Path,
		}
		ep.Resolver = c.NewResolver()
		return ep, nil
	}

	ep.Address, err = endpoint.ParseWithIdentity(ec.Address, id)
	if err != nil {
		return nil, err
	}
	return ep, nil
}

// Binding builds the named binding.
func (c *Config) Binding(name string) (*binding.Binding, error) {
	const op = "config.Binding"
	bc, ok := c.Bindings[name]
	if !ok {
		return nil, fault.New(fault.KindConfiguration, op, "unknown binding %q", name)
	}

	scheme, err := transport.ParseScheme(bc.Transport)
	if err != nil {
		return nil, err
	}
	te := &binding.TransportElement{
		Scheme:         scheme,
		MaxMessageSize: bc.MaxMessageSize,
		KeepAlive:      bc.KeepAlive,
	}

	var elements []binding.Element
	if bc.Compression != "" {
		ok, level := zstd.EncoderLevelFromString(bc.Compression)
		if !ok {
			return nil, fault.New(fault.KindConfiguration, op, "binding %q: unknown compression level %q", name, bc.Compression)
		}
		elements = append(elements, &binding.CompressionElement{Level: level})
	}
	if bc.Security != nil {
		settings, insecure, err := bc.Security.settings()
		if err != nil {
			return nil, fault.Wrapf(fault.KindConfiguration, op, err, "binding %q", name)
		}
		if insecure {
			te.TLS = &transport.TLSConfig{InsecureSkipVerify: true}
		}
		elements = append(elements, &binding.SecurityElement{Settings: settings})
	}
	if bc.Encoding != "" || bc.Version != "" {
		kind := wire.KindText
		if bc.Encoding != "" {
			if kind, err = wire.ParseKind(bc.Encoding); err != nil {
				return nil, err
			}
		}
		version, err := message.ParseVersion(bc.Version)
		if err != nil {
			return nil, err
		}
		elements = append(elements, &binding.EncodingElement{Encoding: kind, Version: version})
	}
	elements = append(elements, te)

	return binding.New(name, elements,
		binding.WithTimeouts(channel.Timeouts{
			Open:  bc.Timeouts.Open.Duration,
			Close: bc.Timeouts.Close.Duration,
			Send:  bc.Timeouts.Send.Duration,
		}),
		binding.WithConcurrentRequests(bc.ConcurrentRequests))
}

func (s *SecurityConfig) settings() (security.Settings, bool, error) {
	var out security.Settings
	var err error
	if out.Mode, err = security.ParseMode(s.Mode); err != nil {
		return out, false, err
	}
	if out.Credential, err = security.ParseCredentialKind(s.Credential); err != nil {
		return out, false, err
	}
	out.Credentials.Username = s.Username
	out.Credentials.Password = s.Password
	if s.MessageKey != "" {
		if out.Credentials.MessageKey, err = base64.StdEncoding.DecodeString(s.MessageKey); err != nil {
			return out, false, err
		}
	}
	if s.CAFile != "" {
		if out.Credentials.RootCAs, err = cert.LoadPool(s.CAFile); err != nil {
			return out, false, err
		}
	}
	if s.CertFile != "" {
		tc, err := cert.LoadTLSCertificate(s.CertFile, s.KeyFile)
		if err != nil {
			return out, false, err
		}
		out.Credentials.Certificate = &tc
	}
	return out, s.InsecureSkipVerify, nil
}

// NewResolver builds the configured resolver.
func (c *Config) NewResolver() resolve.Resolver {
	static := &resolve.Static{Host: c.Resolver.Host, PipeDir: c.Resolver.PipeDir}
	if !c.Resolver.MDNS {
		return static
	}
	return resolve.NewMDNS(resolve.MDNSConfig{
		Instance:      c.Resolver.Instance,
		Interface:     c.Resolver.Interface,
		BrowseTimeout: c.Resolver.BrowseTimeout.Duration,
		Fallback:      static,
	})
}

// RetryPolicy returns the configured retry policy. Attempts of zero means
// a single attempt.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.Attempts,
		Backoff: retry.BackoffConfig{
			Initial: c.Retry.Initial.Duration,
			Max:     c.Retry.Max.Duration,
		},
	}
}

// Timeout returns the send timeout of the endpoint's binding.
func (e *Endpoint) Timeout() time.Duration {
	return e.Binding.Timeouts().Send
}
