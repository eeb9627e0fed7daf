package transport

import (
	"sync"
	"sync/atomic"
	"time"
)

// Keep-alive defaults.
const (
	DefaultPingInterval   = 30 * time.Second
	DefaultPongTimeout    = 5 * time.Second
	DefaultMaxMissedPongs = 3
)

// KeepAliveConfig configures liveness probing of pooled connections.
// A zero PingInterval disables probing.
type KeepAliveConfig struct {
	PingInterval   time.Duration `yaml:"pingInterval" toml:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pongTimeout" toml:"pong_timeout"`
	MaxMissedPongs int           `yaml:"maxMissedPongs" toml:"max_missed_pongs" validate:"gte=0"`
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// Enabled reports whether probing is configured.
func (c KeepAliveConfig) Enabled() bool {
	return c.PingInterval > 0
}

// DetectionDelay is the longest time a dead peer can go unnoticed.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	c = c.withDefaults()
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

func (c KeepAliveConfig) withDefaults() KeepAliveConfig {
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.MaxMissedPongs <= 0 {
		c.MaxMissedPongs = DefaultMaxMissedPongs
	}
	return c
}

// keepAlive sends pings on an idle connection and reports the peer dead
// after MaxMissedPongs consecutive unanswered pings.
type keepAlive struct {
	cfg    KeepAliveConfig
	ping   func(seq uint32) error
	onDead func()

	seq    atomic.Uint32
	pongCh chan uint32

	mu       sync.Mutex
	pending  uint32
	sentAt   time.Time
	missed   int
	lastPong time.Time
	latency  time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func newKeepAlive(cfg KeepAliveConfig, ping func(seq uint32) error, onDead func()) *keepAlive {
	return &keepAlive{
		cfg:    cfg.withDefaults(),
		ping:   ping,
		onDead: onDead,
		pongCh: make(chan uint32, 1),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (ka *keepAlive) start() {
	go ka.loop()
}

// stop ends the loop and waits for it to exit.
func (ka *keepAlive) stop() {
	ka.stopOnce.Do(func() { close(ka.stopCh) })
	<-ka.done
}

// pong records a pong from the peer. Stale sequence numbers are ignored.
func (ka *keepAlive) pong(seq uint32) {
	select {
	case ka.pongCh <- seq:
	default:
	}
}

// stats returns the consecutive missed count and the last round-trip time.
func (ka *keepAlive) stats() (missed int, latency time.Duration) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.missed, ka.latency
}

func (ka *keepAlive) loop() {
	defer close(ka.done)

	ticker := time.NewTicker(ka.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ka.stopCh:
			return
		case <-ticker.C:
			if ka.tick() {
				if ka.onDead != nil {
					ka.onDead()
				}
				return
			}
		case seq := <-ka.pongCh:
			ka.handlePong(seq)
		}
	}
}

// tick accounts for an unanswered ping and sends the next one. It returns
// true when the peer is considered dead.
func (ka *keepAlive) tick() bool {
	ka.mu.Lock()
	if ka.pending != 0 && time.Since(ka.sentAt) >= ka.cfg.PongTimeout {
		ka.missed++
		ka.pending = 0
	}
	if ka.missed >= ka.cfg.MaxMissedPongs {
		ka.mu.Unlock()
		return true
	}
	seq := ka.seq.Add(1)
	ka.pending = seq
	ka.sentAt = time.Now()
	ka.mu.Unlock()

	// A failed write is counted as a missed pong on the next tick.
	_ = ka.ping(seq)
	return false
}

func (ka *keepAlive) handlePong(seq uint32) {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	now := time.Now()
	ka.lastPong = now
	if ka.pending != 0 && seq == ka.pending {
		ka.latency = now.Sub(ka.sentAt)
		ka.pending = 0
		ka.missed = 0
	}
}
