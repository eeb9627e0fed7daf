package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Default backoff parameters.
const (
	InitialBackoff    = 100 * time.Millisecond
	MaxBackoff        = 5 * time.Second
	BackoffMultiplier = 2.0

	// JitterFactor is the largest extra delay as a fraction of the base.
	JitterFactor = 0.25
)

// BackoffConfig shapes the delays between attempts. Zero fields take the
// defaults except Jitter, where zero means none.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

func (c BackoffConfig) normalized() BackoffConfig {
	if c.Initial <= 0 {
		c.Initial = InitialBackoff
	}
	if c.Max <= 0 {
		c.Max = MaxBackoff
	}
	c.Max = max(c.Max, c.Initial)
	if c.Multiplier <= 1 {
		c.Multiplier = BackoffMultiplier
	}
	c.Jitter = max(c.Jitter, 0)
	return c
}

// Backoff hands out growing delays for one retry loop. It is not safe for
// concurrent use.
type Backoff struct {
	cfg      BackoffConfig
	attempts int
}

// NewBackoff returns a Backoff at its initial delay.
func NewBackoff(cfg BackoffConfig) *Backoff {
	return &Backoff{cfg: cfg.normalized()}
}

// Next returns the delay before the next attempt, jitter included.
func (b *Backoff) Next() time.Duration {
	d := b.Current()
	b.attempts++
	if b.cfg.Jitter > 0 {
		d += time.Duration(float64(d) * b.cfg.Jitter * rand.Float64())
	}
	return d
}

// Current returns the base delay Next would start from.
func (b *Backoff) Current() time.Duration {
	d := float64(b.cfg.Initial) * math.Pow(b.cfg.Multiplier, float64(b.attempts))
	if d >= float64(b.cfg.Max) {
		return b.cfg.Max
	}
	return time.Duration(d)
}

// Attempts returns how many delays were handed out since the last Reset.
func (b *Backoff) Attempts() int { return b.attempts }

// Reset returns to the initial delay.
func (b *Backoff) Reset() { b.attempts = 0 }
