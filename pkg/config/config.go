package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/svcmodel/svcmodel-go/pkg/fault"
	"github.com/svcmodel/svcmodel-go/pkg/transport"
)

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Config is a client configuration file.
type Config struct {
	Bindings  map[string]BindingConfig  `yaml:"bindings" toml:"bindings" validate:"dive"`
	Endpoints map[string]EndpointConfig `yaml:"endpoints" toml:"endpoints" validate:"dive"`
	Resolver  ResolverConfig            `yaml:"resolver" toml:"resolver"`
	Retry     RetryConfig               `yaml:"retry" toml:"retry"`
}

// BindingConfig describes one binding.
type BindingConfig struct {
	// Transport is the address scheme: http, https, net.tcp, net.pipe, ws or wss.
	Transport string `yaml:"transport" toml:"transport" validate:"required,scheme"`

	// Encoding is text, binary or mtom. Empty uses the transport default.
	Encoding string `yaml:"encoding" toml:"encoding" validate:"omitempty,oneof=text binary mtom"`

	// Version is soap11, soap12 or soap12-wsa10. Setting it without an
	// encoding selects the text encoding.
	Version string `yaml:"version" toml:"version" validate:"omitempty,oneof=soap11 soap12 soap12-wsa10"`

	// Compression is a zstd level: fastest, default, better or best.
	Compression string `yaml:"compression" toml:"compression" validate:"omitempty,oneof=fastest default better best"`

	Security *SecurityConfig `yaml:"security" toml:"security"`

	Timeouts           TimeoutsConfig `yaml:"timeouts" toml:"timeouts"`
	ConcurrentRequests bool           `yaml:"concurrentRequests" toml:"concurrent_requests"`
	MaxMessageSize     uint32         `yaml:"maxMessageSize" toml:"max_message_size"`
	KeepAlive          transport.KeepAliveConfig `yaml:"keepAlive" toml:"keep_alive"`
}

// SecurityConfig describes the security element of a binding.
type SecurityConfig struct {
	Mode       string `yaml:"mode" toml:"mode" validate:"omitempty,oneof=none transport message transport-with-message-credential"`
	Credential string `yaml:"credential" toml:"credential" validate:"omitempty,oneof=none basic windows certificate username custom-validator"`

	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`

	// MessageKey is the base64 pre-shared key for message security.
	MessageKey string `yaml:"messageKey" toml:"message_key" validate:"omitempty,base64"`

	CAFile   string `yaml:"caFile" toml:"ca_file"`
	CertFile string `yaml:"certFile" toml:"cert_file" validate:"required_with=KeyFile"`
	KeyFile  string `yaml:"keyFile" toml:"key_file" validate:"required_with=CertFile"`

	// InsecureSkipVerify disables server certificate checks. Tests only.
	InsecureSkipVerify bool `yaml:"insecureSkipVerify" toml:"insecure_skip_verify"`
}

// TimeoutsConfig overrides binding timeouts. Zero values keep the defaults.
type TimeoutsConfig struct {
	Open  Duration `yaml:"open" toml:"open"`
	Close Duration `yaml:"close" toml:"close"`
	Send  Duration `yaml:"send" toml:"send"`
}

// EndpointConfig pairs a binding with an address.
type EndpointConfig struct {
	Binding string `yaml:"binding" toml:"binding" validate:"required"`

	// Address is a literal endpoint URI.
	Address string `yaml:"address" toml:"address" validate:"required_without=Resource,excluded_with=Resource"`

	// Resource is resolved through the configured resolver when the
	// factory opens.
	Resource *ResourceConfig `yaml:"resource" toml:"resource"`

	Identity IdentityConfig `yaml:"identity" toml:"identity"`
}

// ResourceConfig is a {protocol, port} resource request.
type ResourceConfig struct {
	Protocol string `yaml:"protocol" toml:"protocol" validate:"required,scheme"`
	Port     int    `yaml:"port" toml:"port" validate:"min=0,max=65535"`
	Path     string `yaml:"path" toml:"path"`
}

// IdentityConfig is the identity the service must prove.
type IdentityConfig struct {
	Kind  string `yaml:"kind" toml:"kind" validate:"omitempty,oneof=none dns upn certificate cert"`
	Value string `yaml:"value" toml:"value"`
}

// ResolverConfig selects how resources are resolved.
type ResolverConfig struct {
	// Host is used by the static resolver. Default: localhost.
	Host    string `yaml:"host" toml:"host"`
	PipeDir string `yaml:"pipeDir" toml:"pipe_dir"`

	// MDNS browses for advertised services first and falls back to the
	// static resolver.
	MDNS          bool     `yaml:"mdns" toml:"mdns"`
	Instance      string   `yaml:"instance" toml:"instance"`
	Interface     string   `yaml:"interface" toml:"interface"`
	BrowseTimeout Duration `yaml:"browseTimeout" toml:"browse_timeout"`
}

// RetryConfig is the caller-side retry policy.
type RetryConfig struct {
	Attempts int      `yaml:"attempts" toml:"attempts" validate:"min=0,max=100"`
	Initial  Duration `yaml:"initial" toml:"initial"`
	Max      Duration `yaml:"max" toml:"max"`
}

// Duration is a time.Duration written as a string ("30s") in files.
type Duration struct {
	time.Duration
}

// UnmarshalText parses the duration from a string.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText formats the duration as a string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fault.New(fault.KindConfiguration, "config.FormatOf", "unsupported config file extension %q", filepath.Ext(path))
}

// Load reads, parses and validates a configuration file. Relative
// certificate paths are resolved against the file's directory.
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.KindConfiguration, "config.Load", err)
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes and validates configuration data.
func Parse(data []byte, format Format) (*Config, error) {
	const op = "config.Parse"
	var cfg Config
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return nil, fault.Wrapf(fault.KindConfiguration, op, err, "decode yaml")
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, fault.Wrapf(fault.KindConfiguration, op, err, "decode toml")
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fault.New(fault.KindConfiguration, op, "unknown keys: %v", undecoded)
		}
	default:
		return nil, fault.New(fault.KindConfiguration, op, "unknown format %q", format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolvePaths(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	for name, b := range c.Bindings {
		if b.Security == nil {
			continue
		}
		sec := *b.Security
		sec.CAFile = abs(sec.CAFile)
		sec.CertFile = abs(sec.CertFile)
		sec.KeyFile = abs(sec.KeyFile)
		b.Security = &sec
		c.Bindings[name] = b
	}
}
