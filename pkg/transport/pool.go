package transport

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// DefaultMaxConcurrentDials bounds simultaneous connection attempts of one
// pool across all targets.
const DefaultMaxConcurrentDials = 64

// PoolConfig configures a Pool.
type PoolConfig struct {
	MaxConcurrentDials int
	Logger             *slog.Logger
}

// Pool shares framed connections between channels to the same target.
// Establishment is collapsed per target: concurrent channels opening to an
// unconnected target wait for a single dial.
type Pool struct {
	logger *slog.Logger
	dials  *semaphore.Weighted
	group  singleflight.Group

	mu    sync.Mutex
	conns map[string]*pooledConn
}

type pooledConn struct {
	key     string
	conn    *FramedConn
	refs    int
	evicted bool
}

var (
	defaultPool     *Pool
	defaultPoolOnce sync.Once
)

// DefaultPool returns the process-wide pool used when a transport is not
// given one.
func DefaultPool() *Pool {
	defaultPoolOnce.Do(func() {
		defaultPool = NewPool(PoolConfig{})
	})
	return defaultPool
}

// NewPool creates an empty pool.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.MaxConcurrentDials <= 0 {
		cfg.MaxConcurrentDials = DefaultMaxConcurrentDials
	}
	return &Pool{
		logger: cfg.Logger,
		dials:  semaphore.NewWeighted(int64(cfg.MaxConcurrentDials)),
		conns:  make(map[string]*pooledConn),
	}
}

// Lease is one channel's hold on a connection.
type Lease struct {
	pool     *Pool
	pc       *pooledConn
	released atomic.Bool
}

// Conn returns the leased connection.
func (l *Lease) Conn() *FramedConn {
	return l.pc.conn
}

// Release gives the connection back. The last release of a connection that
// is no longer shared closes it.
func (l *Lease) Release(ctx context.Context) error {
	if l.released.Swap(true) {
		return nil
	}
	if last := l.pool.drop(l.pc, false); last {
		return l.pc.conn.Close(ctx)
	}
	return nil
}

// Abort releases the lease without a graceful close. A connection still
// shared with other channels stays open.
func (l *Lease) Abort() {
	if l.released.Swap(true) {
		return
	}
	if last := l.pool.drop(l.pc, false); last {
		l.pc.conn.Abort()
	}
}

// Evict stops the connection from being handed to new channels and releases
// this lease. Used after a timeout leaves the connection in doubt.
func (l *Lease) Evict() {
	if l.released.Swap(true) {
		return
	}
	if last := l.pool.drop(l.pc, true); last {
		l.pc.conn.Abort()
	}
}

// Acquire leases a connection to t, dialling one if needed. Exclusive
// leases always get a new connection that is never shared.
func (p *Pool) Acquire(ctx context.Context, d *Dialer, t dialTarget, exclusive bool) (*Lease, error) {
	if exclusive {
		conn, err := p.dial(ctx, d, t)
		if err != nil {
			return nil, err
		}
		pc := &pooledConn{conn: conn, refs: 1, evicted: true}
		return &Lease{pool: p, pc: pc}, nil
	}

	key := t.key()
	for {
		if pc := p.lease(key); pc != nil {
			return &Lease{pool: p, pc: pc}, nil
		}

		ch := p.group.DoChan(key, func() (any, error) {
			// Callers may give up while others still wait.
			dctx, cancel := dialContext(ctx)
			defer cancel()
			conn, err := p.dial(dctx, d, t)
			if err != nil {
				return nil, err
			}
			p.add(key, conn)
			return conn, nil
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
		}
	}
}

// Len returns the number of shared connections.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// CloseIdle closes shared connections that have no lease.
func (p *Pool) CloseIdle(ctx context.Context) {
	p.mu.Lock()
	var idle []*pooledConn
	for key, pc := range p.conns {
		if pc.refs == 0 {
			delete(p.conns, key)
			pc.evicted = true
			idle = append(idle, pc)
		}
	}
	p.mu.Unlock()

	for _, pc := range idle {
		_ = pc.conn.Close(ctx)
	}
}

func (p *Pool) dial(ctx context.Context, d *Dialer, t dialTarget) (*FramedConn, error) {
	if err := p.dials.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.dials.Release(1)
	return d.Dial(ctx, t)
}

// lease returns a live shared connection for key with its count raised.
func (p *Pool) lease(key string) *pooledConn {
	p.mu.Lock()
	defer p.mu.Unlock()
	pc, ok := p.conns[key]
	if !ok {
		return nil
	}
	if !pc.conn.Alive() {
		delete(p.conns, key)
		pc.evicted = true
		return nil
	}
	pc.refs++
	return pc
}

func (p *Pool) add(key string, conn *FramedConn) {
	pc := &pooledConn{key: key, conn: conn}

	p.mu.Lock()
	if old, ok := p.conns[key]; ok && old.conn.Alive() {
		// Lost a race with a dial outside this flight; keep the older one.
		p.mu.Unlock()
		conn.Abort()
		return
	}
	p.conns[key] = pc
	p.mu.Unlock()

	go func() {
		<-conn.Done()
		p.mu.Lock()
		if p.conns[key] == pc {
			delete(p.conns, key)
			pc.evicted = true
		}
		p.mu.Unlock()
		if p.logger != nil {
			p.logger.Debug("pooled connection gone", "conn", conn.ID(), "error", conn.Err())
		}
	}()
}

// drop releases one reference and reports whether the caller must close
// the connection.
func (p *Pool) drop(pc *pooledConn, evict bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	pc.refs--
	if evict && !pc.evicted {
		pc.evicted = true
		if p.conns[pc.key] == pc {
			delete(p.conns, pc.key)
		}
	}
	if pc.refs > 0 {
		return false
	}
	if pc.evicted {
		return true
	}
	delete(p.conns, pc.key)
	pc.evicted = true
	return true
}

// dialContext detaches establishment from the caller's cancellation but
// keeps its deadline.
func dialContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := DefaultConnectTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
