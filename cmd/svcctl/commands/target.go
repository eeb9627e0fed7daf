package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/svcmodel/svcmodel-go/pkg/binding"
	"github.com/svcmodel/svcmodel-go/pkg/cert"
	"github.com/svcmodel/svcmodel-go/pkg/channel"
	"github.com/svcmodel/svcmodel-go/pkg/config"
	"github.com/svcmodel/svcmodel-go/pkg/endpoint"
	"github.com/svcmodel/svcmodel-go/pkg/retry"
	"github.com/svcmodel/svcmodel-go/pkg/security"
	"github.com/svcmodel/svcmodel-go/pkg/transport"
)

// targetOptions select the endpoint a client command talks to: a named
// endpoint from a config file, or an ad hoc address with a preset binding.
type targetOptions struct {
	configPath string
	endpoint   string

	address  string
	preset   string
	caFile   string
	username string
	password string

	timeout time.Duration
}

func (o *targetOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.configPath, "config", "c", "", "Client configuration file (.yaml, .yml or .toml)")
	f.StringVarP(&o.endpoint, "endpoint", "e", "", "Endpoint name from the configuration file")
	f.StringVarP(&o.address, "address", "a", "", "Endpoint address when no configuration file is used")
	f.StringVarP(&o.preset, "binding", "b", "", "Preset binding for --address: basic-http, basic-https, text-http, net-tcp, net-pipe (default: by scheme)")
	f.StringVar(&o.caFile, "ca", "", "CA certificate (PEM) that signs the service certificate")
	f.StringVarP(&o.username, "user", "u", "", "Username for basic credentials")
	f.StringVarP(&o.password, "password", "p", "", "Password for basic credentials")
	f.DurationVarP(&o.timeout, "timeout", "t", 0, "Send timeout (default: the binding's send timeout)")
}

// target is a resolved endpoint ready to build a factory.
type target struct {
	binding *binding.Binding
	address *endpoint.Address
	params  binding.Parameters
	policy  retry.Policy
	timeout time.Duration
}

func (o *targetOptions) resolve(ctx context.Context, obs *observability) (*target, error) {
	params := binding.Parameters{
		Logger:         obs.logger,
		ProtocolLogger: obs.protocol,
		Diagnostics:    obs.diag,
	}

	switch {
	case o.configPath != "":
		if o.endpoint == "" {
			return nil, fmt.Errorf("--endpoint is required with --config")
		}
		cfg, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		ep, err := cfg.Endpoint(o.endpoint)
		if err != nil {
			return nil, err
		}
		addr, err := ep.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		t := &target{
			binding: ep.Binding,
			address: addr,
			params:  ep.Parameters(params),
			policy:  cfg.RetryPolicy(),
			timeout: o.timeout,
		}
		t.policy.Logger = obs.logger
		return t, nil

	case o.address != "":
		addr, err := endpoint.Parse(o.address)
		if err != nil {
			return nil, err
		}
		b, err := o.presetBinding(addr)
		if err != nil {
			return nil, err
		}
		return &target{
			binding: b,
			address: addr,
			params:  params,
			policy:  retry.Policy{MaxAttempts: 1, Logger: obs.logger},
			timeout: o.timeout,
		}, nil
	}
	return nil, fmt.Errorf("either --config with --endpoint or --address is required")
}

func (o *targetOptions) presetBinding(addr *endpoint.Address) (*binding.Binding, error) {
	preset := o.preset
	if preset == "" {
		switch transport.Scheme(addr.Scheme()) {
		case transport.SchemeHTTP:
			preset = "text-http"
		case transport.SchemeHTTPS:
			preset = "basic-https"
		case transport.SchemeTCP:
			preset = "net-tcp"
		case transport.SchemePipe:
			preset = "net-pipe"
		default:
			return nil, fmt.Errorf("no preset binding for scheme %q; use --config", addr.Scheme())
		}
	}

	switch preset {
	case "basic-http":
		return binding.BasicHTTPBinding(security.Settings{})
	case "text-http":
		return binding.TextHTTPBinding()
	case "net-pipe":
		return binding.NetPipeBinding()
	case "basic-https", "net-tcp":
		sec, err := o.transportSecurity(preset == "basic-https")
		if err != nil {
			return nil, err
		}
		if preset == "net-tcp" {
			return binding.NetTCPBinding(sec)
		}
		return binding.BasicHTTPBinding(sec)
	}
	return nil, fmt.Errorf("unknown binding preset %q", preset)
}

// transportSecurity builds TLS settings from --ca and --user. net.tcp only
// turns TLS on when a CA is given.
func (o *targetOptions) transportSecurity(required bool) (security.Settings, error) {
	if !required && o.caFile == "" {
		return security.Settings{}, nil
	}
	sec := security.Settings{Mode: security.ModeTransport}
	if o.caFile != "" {
		pool, err := cert.LoadPool(o.caFile)
		if err != nil {
			return sec, err
		}
		sec.Credentials.RootCAs = pool
	}
	if o.username != "" {
		sec.Credential = security.CredentialBasic
		sec.Credentials.Username = o.username
		sec.Credentials.Password = o.password
	}
	return sec, nil
}

// openFactory builds and opens a request factory for t.
func (t *target) openFactory(ctx context.Context) (*channel.Factory, error) {
	f, err := t.binding.BuildChannelFactory(channel.ShapeRequest, t.params)
	if err != nil {
		return nil, err
	}
	if err := f.Open(ctx); err != nil {
		f.Abort()
		return nil, err
	}
	return f, nil
}
