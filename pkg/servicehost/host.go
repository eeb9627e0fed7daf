package servicehost

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/svcmodel/svcmodel-go/pkg/diagnostics"
	"github.com/svcmodel/svcmodel-go/pkg/endpoint"
	"github.com/svcmodel/svcmodel-go/pkg/log"
	"github.com/svcmodel/svcmodel-go/pkg/message"
	"github.com/svcmodel/svcmodel-go/pkg/resolve"
	"github.com/svcmodel/svcmodel-go/pkg/security"
	"github.com/svcmodel/svcmodel-go/pkg/transport"
	"github.com/svcmodel/svcmodel-go/pkg/wire"
)

const readHeaderTimeout = 10 * time.Second

// Host runs the configured listeners.
type Host struct {
	config Config
	diag   diagnostics.Sink
	plog   log.Logger

	mu       sync.Mutex
	state    State
	bases    map[transport.Scheme]*endpoint.Address
	https    []*http.Server
	framed   []*transport.Server
	ws       *transport.WebSocketHandler
	adverts  []resolve.Service
	pipePath string
}

// New validates config and returns an idle host.
func New(config Config) (*Host, error) {
	if config.HTTPSAddr != "" && config.TLS == nil {
		return nil, errors.New("https listener requires a TLS configuration")
	}
	if config.HTTPSAddr != "" && config.Validator == nil {
		return nil, errors.New("https-basic endpoint requires a credential validator")
	}
	if config.Service == nil {
		config.Service = Echo()
	}
	return &Host{
		config: config,
		diag:   diagnostics.OrNoop(config.Diagnostics),
		plog:   log.OrNoop(config.ProtocolLogger),
		bases:  make(map[transport.Scheme]*endpoint.Address),
	}, nil
}

// State returns the host state.
func (h *Host) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Start opens every configured listener. On failure the listeners already
// started are stopped again.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateIdle {
		return ErrAlreadyStarted
	}
	if err := h.start(ctx); err != nil {
		_ = h.stopLocked(context.Background())
		h.state = StateIdle
		return err
	}
	h.state = StateRunning
	h.emitListener("RUNNING")
	return nil
}

func (h *Host) start(ctx context.Context) error {
	cfg := h.config
	if cfg.HTTPAddr != "" {
		mux := http.NewServeMux()
		mux.Handle(PathBasic, h.httpEndpoint(PathBasic, wire.KindText, message.Soap11, nil))
		mux.Handle(PathCustom, h.httpEndpoint(PathCustom, wire.KindText, message.Soap12WSAddressing10, nil))
		addr, err := h.serveHTTP(cfg.HTTPAddr, mux, nil)
		if err != nil {
			return fmt.Errorf("http listener: %w", err)
		}
		h.addBase(transport.SchemeHTTP, "http://"+addr.String())
	}

	if cfg.HTTPSAddr != "" {
		tc, err := transport.NewServerTLSConfig(cfg.TLS)
		if err != nil {
			return fmt.Errorf("https listener: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle(PathHTTPSBasic, h.httpEndpoint(PathHTTPSBasic, wire.KindText, message.Soap11, cfg.Validator))
		addr, err := h.serveHTTP(cfg.HTTPSAddr, mux, tc)
		if err != nil {
			return fmt.Errorf("https listener: %w", err)
		}
		h.addBase(transport.SchemeHTTPS, "https://"+addr.String())
	}

	if cfg.TCPAddr != "" {
		router := &frameRouter{endpoints: map[string]*Endpoint{
			PathEcho: h.newEndpoint(PathEcho, wire.KindBinary, message.Soap12WSAddressing10),
		}}
		if len(cfg.MessageKey) > 0 {
			sec, err := security.NewServer(security.ServerConfig{Mode: security.ModeMessage, Key: cfg.MessageKey, Diagnostics: cfg.Diagnostics})
			if err != nil {
				return err
			}
			ep := h.newEndpoint(PathMessage, wire.KindBinary, message.Soap12WSAddressing10)
			ep.Security = sec
			router.endpoints[PathMessage] = ep
		}
		srv, err := h.serveFramed(ctx, "tcp", cfg.TCPAddr, router)
		if err != nil {
			return fmt.Errorf("net.tcp listener: %w", err)
		}
		h.addBase(transport.SchemeTCP, "net.tcp://"+srv.Addr().String())
	}

	if cfg.PipeResource != 0 {
		h.pipePath = resolve.PipePath(cfg.PipeDir, cfg.PipeResource)
		router := &frameRouter{endpoints: map[string]*Endpoint{
			PathEcho: h.newEndpoint(PathEcho, wire.KindBinary, message.Soap12WSAddressing10),
		}}
		if _, err := h.serveFramed(ctx, "unix", h.pipePath, router); err != nil {
			return fmt.Errorf("net.pipe listener: %w", err)
		}
		base, err := (&resolve.Static{PipeDir: cfg.PipeDir}).Resolve(ctx, resolve.ResourceRequest{Protocol: resolve.ProtocolPipe, Port: cfg.PipeResource})
		if err != nil {
			return err
		}
		h.bases[transport.SchemePipe] = base
	}

	if cfg.WSAddr != "" {
		h.ws = &transport.WebSocketHandler{
			Handler: &frameRouter{endpoints: map[string]*Endpoint{
				PathDuplex: h.newEndpoint(PathDuplex, wire.KindBinary, message.Soap12WSAddressing10),
			}},
			ProtocolLogger: cfg.ProtocolLogger,
			Logger:         cfg.Logger,
		}
		mux := http.NewServeMux()
		mux.Handle(PathDuplex, h.ws)
		addr, err := h.serveHTTP(cfg.WSAddr, mux, nil)
		if err != nil {
			return fmt.Errorf("ws listener: %w", err)
		}
		h.addBase(transport.SchemeWS, "ws://"+addr.String())
	}

	if cfg.Advertiser != nil {
		for scheme, base := range h.bases {
			if scheme == transport.SchemePipe {
				continue
			}
			port, _ := strconv.Atoi(base.URI().Port())
			svc := resolve.Service{Protocol: string(scheme), Resource: port, Port: port}
			if err := cfg.Advertiser.Advertise(ctx, svc); err != nil {
				return fmt.Errorf("advertise %s: %w", scheme, err)
			}
			h.adverts = append(h.adverts, svc)
		}
	}
	return nil
}

func (h *Host) newEndpoint(path string, kind wire.Kind, version message.Version) *Endpoint {
	// Encoder construction only fails for unknown kinds.
	enc, _ := wire.NewEncoder(kind, version)
	return &Endpoint{
		Path:    path,
		Encoder: enc,
		Service: h.config.Service,
		diag:    h.diag,
		plog:    h.plog,
		logger:  h.config.Logger,
	}
}

func (h *Host) httpEndpoint(path string, kind wire.Kind, version message.Version, basic security.CredentialValidator) http.Handler {
	ep := h.newEndpoint(path, kind, version)
	ep.Basic = basic
	return &httpHandler{ep: ep, maxBody: int64(transport.DefaultMaxMessageSize)}
}

func (h *Host) serveHTTP(addr string, handler http.Handler, tc *tls.Config) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if tc != nil {
		ln = tls.NewListener(ln, tc)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: readHeaderTimeout}
	h.https = append(h.https, srv)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && h.config.Logger != nil {
			h.config.Logger.Error("http server stopped", "addr", ln.Addr().String(), "error", err)
		}
	}()
	return ln.Addr(), nil
}

func (h *Host) serveFramed(ctx context.Context, network, addr string, handler transport.RequestHandler) (*transport.Server, error) {
	srv, err := transport.NewServer(transport.ServerConfig{
		Network:        network,
		Address:        addr,
		Handler:        handler,
		ProtocolLogger: h.config.ProtocolLogger,
		Logger:         h.config.Logger,
	})
	if err != nil {
		return nil, err
	}
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}
	h.framed = append(h.framed, srv)
	return srv, nil
}

func (h *Host) addBase(scheme transport.Scheme, raw string) {
	h.bases[scheme] = endpoint.MustParse(raw)
}

// BaseAddress returns the base address of the listener for scheme.
func (h *Host) BaseAddress(scheme transport.Scheme) (*endpoint.Address, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	base, ok := h.bases[scheme]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrNoListener, scheme)
	}
	return base, nil
}

// Address returns the address of the endpoint at path for scheme.
func (h *Host) Address(scheme transport.Scheme, path string) (*endpoint.Address, error) {
	base, err := h.BaseAddress(scheme)
	if err != nil {
		return nil, err
	}
	return endpoint.Join(base, path)
}

// Resolver returns a resolver mapping {protocol, port} requests to this
// host's listeners. The port is ignored: each protocol has one listener.
func (h *Host) Resolver() resolve.Resolver {
	return resolve.ResolverFunc(func(_ context.Context, req resolve.ResourceRequest) (*endpoint.Address, error) {
		scheme, err := transport.ParseScheme(req.Protocol)
		if err != nil {
			return nil, err
		}
		addr, err := h.Address(scheme, req.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", resolve.ErrNotFound, req)
		}
		return addr, nil
	})
}

// Stop closes every listener and connection.
func (h *Host) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateRunning {
		return ErrNotStarted
	}
	err := h.stopLocked(ctx)
	h.state = StateStopped
	h.emitListener("STOPPED")
	return err
}

func (h *Host) stopLocked(ctx context.Context) error {
	var errs []error
	for _, svc := range h.adverts {
		h.config.Advertiser.Stop(svc)
	}
	h.adverts = nil
	if h.ws != nil {
		h.ws.Shutdown(ctx)
	}
	for _, srv := range h.https {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, srv := range h.framed {
		if err := srv.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	h.https, h.framed, h.ws = nil, nil, nil
	return errors.Join(errs...)
}

func (h *Host) emitListener(state string) {
	h.plog.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerChannel,
		Category:  log.CategoryState,
		LocalRole: log.RoleService,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityListener,
			NewState: state,
		},
	})
}
