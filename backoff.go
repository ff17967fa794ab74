package connect

import (
	"math/rand"
	"time"
)

// BackoffConfig bounds the reconnect policy. Delays start at Initial, double
// per consecutive failure, and never exceed Max. Up to 20% additive jitter
// keeps herds of consumers from reconnecting in lockstep. After MaxAttempts
// consecutive failures the consumer stops retrying and surfaces
// ErrRetriesExhausted; zero means the defaults below, a negative MaxAttempts
// retries forever.
type BackoffConfig struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

const (
	defaultBackoffInitial  = 100 * time.Millisecond
	defaultBackoffMax      = 10 * time.Second
	defaultBackoffAttempts = 10
)

func (c *BackoffConfig) withDefaults() {
	if c.Initial <= 0 {
		c.Initial = defaultBackoffInitial
	}
	if c.Max <= 0 {
		c.Max = defaultBackoffMax
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultBackoffAttempts
	}
}

type backoff struct {
	cfg     BackoffConfig
	attempt int
	jitter  func(time.Duration) time.Duration
}

func newBackoff(cfg BackoffConfig) *backoff {
	return &backoff{
		cfg: cfg,
		jitter: func(d time.Duration) time.Duration {
			return time.Duration(rand.Int63n(int64(d)/5 + 1))
		},
	}
}

// next returns the delay before the upcoming attempt and counts it. The
// jitter is additive only, so successive delays never shrink below the
// previous one until the cap is reached.
func (b *backoff) next() time.Duration {
	d := b.cfg.Initial << b.attempt
	if d <= 0 || d > b.cfg.Max {
		d = b.cfg.Max
	}
	b.attempt++
	return d + b.jitter(d)
}

// exhausted reports whether the attempt budget is spent.
func (b *backoff) exhausted() bool {
	return b.cfg.MaxAttempts > 0 && b.attempt >= b.cfg.MaxAttempts
}
