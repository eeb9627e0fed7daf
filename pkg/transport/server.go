package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/svcmodel/svcmodel-go/pkg/log"
	"github.com/svcmodel/svcmodel-go/pkg/version"
)

// DefaultHandshakeTimeout bounds the TLS handshake of accepted connections.
const DefaultHandshakeTimeout = 10 * time.Second

// ServerConfig configures a framed listener for net.tcp or net.pipe.
type ServerConfig struct {
	// Network is "tcp" or "unix".
	Network string

	// Address is host:port for tcp or the socket path for unix.
	Address string

	// TLS enables TLS on tcp listeners.
	TLS *TLSConfig

	// Handler serves request, one-way and duplex frames.
	Handler RequestHandler

	MaxMessageSize uint32
	KeepAlive      KeepAliveConfig

	// MaxConnectionAge retires connections older than this. Zero keeps
	// connections until the peer closes them.
	MaxConnectionAge time.Duration

	ProtocolLogger log.Logger
	Logger         *slog.Logger

	// OnConnect is called for every accepted connection.
	OnConnect func(conn *FramedConn)

	// OnError is called for accept and handshake failures.
	OnError func(err error)
}

// Server accepts framed connections.
type Server struct {
	config   ServerConfig
	tlsConf  *tls.Config
	listener net.Listener
	conns    *connTracker

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewServer validates config and creates a stopped server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Handler == nil {
		return nil, errors.New("handler is required")
	}
	switch config.Network {
	case "":
		config.Network = "tcp"
	case "tcp", "unix":
	default:
		return nil, fmt.Errorf("unsupported network %q", config.Network)
	}
	if config.Network == "unix" && config.TLS != nil {
		return nil, errors.New("TLS is not supported on unix sockets")
	}
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}

	s := &Server{config: config, conns: newConnTracker()}
	if config.TLS != nil {
		tc, err := NewServerTLSConfig(config.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		tc.NextProtos = version.SupportedALPNProtocols()
		s.tlsConf = tc
	}
	return s, nil
}

// Start listens and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return errors.New("server already running")
	}
	if s.config.Network == "unix" {
		// A socket left behind by a crashed process blocks the bind.
		_ = os.Remove(s.config.Address)
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, s.config.Network, s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.stopCh = make(chan struct{})
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	if s.config.MaxConnectionAge > 0 {
		s.wg.Add(1)
		go s.reapLoop()
	}
	return nil
}

// Stop closes the listener and gracefully closes every connection, bounded
// by ctx.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.Swap(false) {
		return nil
	}
	close(s.stopCh)
	err := s.listener.Close()

	s.conns.CloseAll(ctx)
	s.wg.Wait()

	if s.config.Network == "unix" {
		_ = os.Remove(s.config.Address)
	}
	return err
}

// Addr returns the listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of open connections.
func (s *Server) ConnectionCount() int {
	return s.conns.Len()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() {
				return
			}
			s.reportError(fmt.Errorf("accept error: %w", err))
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()

	if s.tlsConf != nil {
		tlsConn := tls.Server(conn, s.tlsConf)
		ctx, cancel := context.WithTimeout(context.Background(), DefaultHandshakeTimeout)
		err := tlsConn.HandshakeContext(ctx)
		cancel()
		if err != nil {
			_ = conn.Close()
			s.reportError(fmt.Errorf("TLS handshake failed: %w", err))
			return
		}
		conn = tlsConn
	}

	fc := newFramedConn(newStreamIO(conn, s.config.MaxMessageSize), connConfig{
		role:           log.RoleService,
		handler:        s.config.Handler,
		keepAlive:      s.config.KeepAlive,
		protocolLogger: s.config.ProtocolLogger,
		logger:         s.config.Logger,
	})
	s.conns.Add(fc)
	if !s.running.Load() {
		// Raced with Stop.
		s.conns.Remove(fc)
		fc.Abort()
		return
	}
	if s.config.OnConnect != nil {
		s.config.OnConnect(fc)
	}

	<-fc.Done()
	s.conns.Remove(fc)
}

func (s *Server) reapLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(max(s.config.MaxConnectionAge/2, 10*time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), DefaultHandshakeTimeout)
			if n := s.conns.CloseStale(ctx, s.config.MaxConnectionAge); n > 0 && s.config.Logger != nil {
				s.config.Logger.Debug("retired aged connections", "count", n)
			}
			cancel()
		}
	}
}

func (s *Server) reportError(err error) {
	if s.config.OnError != nil {
		s.config.OnError(err)
	} else if s.config.Logger != nil {
		s.config.Logger.Warn("transport server error", "error", err)
	}
}
