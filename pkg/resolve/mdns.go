package resolve

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"

	"github.com/svcmodel/svcmodel-go/pkg/endpoint"
	"github.com/svcmodel/svcmodel-go/pkg/fault"
)

// mDNS service parameters.
const (
	ServiceType = "_svcmodel._tcp"
	Domain      = "local."

	// DefaultBrowseTimeout bounds a single mDNS lookup.
	DefaultBrowseTimeout = 5 * time.Second
)

// Service is an endpoint resource announced over mDNS.
type Service struct {
	// Protocol is the address scheme served.
	Protocol string

	// Resource is the logical port clients ask for in a ResourceRequest.
	Resource int

	// Port is the port the service actually listens on.
	Port int

	// Path is the base path of the service.
	Path string
}

// AdvertiserConfig configures the mDNS advertiser.
type AdvertiserConfig struct {
	// Instance prefixes every advertised instance name.
	Instance string

	// Interface restricts advertising to one network interface.
	// Empty string means all interfaces.
	Interface string

	// TTL is the record time-to-live. Zero uses the zeroconf default.
	TTL time.Duration
}

// MDNSAdvertiser announces service host endpoints using zeroconf.
type MDNSAdvertiser struct {
	config AdvertiserConfig

	mu      sync.Mutex
	servers map[string]*zeroconf.Server // keyed by instance name
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) *MDNSAdvertiser {
	if config.Instance == "" {
		config.Instance = "svcmodel"
	}
	return &MDNSAdvertiser{
		config:  config,
		servers: make(map[string]*zeroconf.Server),
	}
}

// InstanceName returns the instance name used for svc.
func (a *MDNSAdvertiser) InstanceName(svc Service) string {
	return fmt.Sprintf("%s-%s-%d", a.config.Instance, strings.ReplaceAll(svc.Protocol, ".", "-"), svc.Resource)
}

// Advertise starts announcing svc, replacing a previous announcement of
// the same resource.
func (a *MDNSAdvertiser) Advertise(_ context.Context, svc Service) error {
	if svc.Protocol == ProtocolPipe {
		return fault.New(fault.KindConfiguration, "resolve.Advertise", "named pipes are not reachable over the network")
	}
	if svc.Port <= 0 {
		return fault.New(fault.KindConfiguration, "resolve.Advertise", "invalid port %d", svc.Port)
	}
	if svc.Resource == 0 {
		svc.Resource = svc.Port
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	name := a.InstanceName(svc)
	if existing, ok := a.servers[name]; ok {
		existing.Shutdown()
		delete(a.servers, name)
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		name,
		ServiceType,
		Domain,
		svc.Port,
		EncodeTXT(svc).ToStrings(),
		selectInterfaces(a.config.Interface),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register %s: %w", name, err)
	}
	a.servers[name] = server
	return nil
}

// Stop withdraws the announcement of svc.
func (a *MDNSAdvertiser) Stop(svc Service) {
	if svc.Resource == 0 {
		svc.Resource = svc.Port
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	name := a.InstanceName(svc)
	if server, ok := a.servers[name]; ok {
		server.Shutdown()
		delete(a.servers, name)
	}
}

// StopAll withdraws every announcement.
func (a *MDNSAdvertiser) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for name, server := range a.servers {
		server.Shutdown()
		delete(a.servers, name)
	}
}

// Count returns the number of active announcements.
func (a *MDNSAdvertiser) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.servers)
}

// MDNSConfig configures the mDNS resolver.
type MDNSConfig struct {
	// Instance restricts resolution to services whose instance name starts
	// with this prefix. Empty matches any instance.
	Instance string

	// Interface restricts browsing to one network interface.
	Interface string

	// BrowseTimeout bounds a lookup when ctx has no earlier deadline.
	// Default: 5 seconds.
	BrowseTimeout time.Duration

	// Fallback resolves requests mDNS cannot answer, such as named pipes.
	// Optional.
	Fallback Resolver
}

// browseFunc matches zeroconf.Browse.
type browseFunc func(ctx context.Context, service, domain string, entries, removed chan<- *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error

// MDNS resolves resource requests by browsing for advertised services.
type MDNS struct {
	config MDNSConfig
	browse browseFunc
}

// NewMDNS creates an mDNS resolver.
func NewMDNS(config MDNSConfig) *MDNS {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = DefaultBrowseTimeout
	}
	return &MDNS{config: config, browse: zeroconf.Browse}
}

// Resolve browses until a service matching req is seen or the browse
// timeout elapses.
func (r *MDNS) Resolve(ctx context.Context, req ResourceRequest) (*endpoint.Address, error) {
	const op = "resolve.MDNS"
	if err := validate(req); err != nil {
		return nil, err
	}
	if req.Protocol == ProtocolPipe {
		if r.config.Fallback != nil {
			return r.config.Fallback.Resolve(ctx, req)
		}
		return nil, fault.New(fault.KindConfiguration, op, "named pipes cannot be resolved over mDNS")
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, r.config.BrowseTimeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	browseDone := make(chan struct{})

	var opts []zeroconf.ClientOption
	if ifaces := selectInterfaces(r.config.Interface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}

	go func() {
		defer close(browseDone)
		_ = r.browse(ctx, ServiceType, Domain, entries, removed, opts...)
	}()
	defer func() {
		cancel()
		// zeroconf delivers entries with a blocking send; keep draining
		// so Browse can observe the cancellation and return.
		for {
			select {
			case <-entries:
			case <-removed:
			case <-browseDone:
				return
			}
		}
	}()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return r.fallback(parent, req)
			}
			if addr := r.match(entry, req); addr != nil {
				return addr, nil
			}
		case <-removed:
		case <-ctx.Done():
			return r.fallback(parent, req)
		}
	}
}

// match returns the address of entry if it serves req.
func (r *MDNS) match(entry *zeroconf.ServiceEntry, req ResourceRequest) *endpoint.Address {
	if r.config.Instance != "" && !strings.HasPrefix(entry.Instance, r.config.Instance) {
		return nil
	}
	svc, err := DecodeTXT(ParseTXT(entry.Text))
	if err != nil || svc.Protocol != req.Protocol || svc.Resource != req.Port {
		return nil
	}
	host := entryHost(entry)
	if host == "" {
		return nil
	}
	path := svc.Path
	if req.Path != "" {
		path = strings.TrimSuffix(path, "/") + normalizePath(req.Path)
	}
	addr, err := endpoint.Parse(req.Protocol + "://" + net.JoinHostPort(host, strconv.Itoa(entry.Port)) + normalizePath(path))
	if err != nil {
		return nil
	}
	return addr
}

// fallback answers a request no advertised service matched.
func (r *MDNS) fallback(ctx context.Context, req ResourceRequest) (*endpoint.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, fault.Wrapf(fault.KindTimedOut, "resolve.MDNS", err, "resolve %s", req)
	}
	if r.config.Fallback != nil {
		return r.config.Fallback.Resolve(ctx, req)
	}
	return nil, fault.Wrapf(fault.KindCommunication, "resolve.MDNS", ErrNotFound, "no service for %s", req)
}

// entryHost prefers an IPv4 address, then IPv6, then the host name.
func entryHost(entry *zeroconf.ServiceEntry) string {
	if len(entry.AddrIPv4) > 0 {
		return entry.AddrIPv4[0].String()
	}
	if len(entry.AddrIPv6) > 0 {
		return entry.AddrIPv6[0].String()
	}
	return strings.TrimSuffix(entry.HostName, ".")
}

// selectInterfaces returns the named interface, or nil for all.
func selectInterfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

var _ Resolver = (*MDNS)(nil)
