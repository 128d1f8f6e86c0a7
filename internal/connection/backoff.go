package connection

import (
	"sync"
	"time"

	"deribit-hedge-bot/internal/config"
)

// Backoff picks the reconnect delay from the number of transport errors since
// the last quiet period. Delays never decrease as the count grows.
type Backoff struct {
	cfg   config.BackoffConfig
	quiet time.Duration

	mu      sync.Mutex
	count   int
	lastErr time.Time
}

func NewBackoff(cfg config.BackoffConfig, quiet time.Duration) *Backoff {
	return &Backoff{cfg: cfg, quiet: quiet}
}

// Failure records a transport error at now and returns how long to wait.
func (b *Backoff) Failure(now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.lastErr.IsZero() && b.quiet > 0 && now.Sub(b.lastErr) > b.quiet {
		b.count = 0
	}
	b.count++
	b.lastErr = now
	return b.delay(b.count)
}

func (b *Backoff) delay(count int) time.Duration {
	switch {
	case count <= b.cfg.LowMaxErrors:
		return b.cfg.Low
	case count <= b.cfg.MidMaxErrors:
		return b.cfg.Mid
	default:
		return b.cfg.High
	}
}

func (b *Backoff) Reset() {
	b.mu.Lock()
	b.count = 0
	b.mu.Unlock()
}

func (b *Backoff) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
