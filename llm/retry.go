package llm

import (
	"math/rand/v2"
	"time"
)

// RetryConfig holds per-endpoint retry settings. Retries only apply to
// transient errors; the fallback chain handles the rest.
type RetryConfig struct {
	MaxAttempts       int
	BackoffBase       time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultRetryConfig returns the retry defaults for interactive calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        15 * time.Second,
	}
}

// SingleAttempt disables retries; failures fall through to the next
// endpoint in the chain.
func SingleAttempt() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = 1
	return cfg
}

// Backoff returns the wait after the given failed attempt (1-based),
// before jitter.
func (rc RetryConfig) Backoff(attempt int) time.Duration {
	d := float64(rc.BackoffBase)
	for i := 1; i < attempt; i++ {
		d *= rc.BackoffMultiplier
	}
	if limit := float64(rc.MaxBackoff); rc.MaxBackoff > 0 && d > limit {
		d = limit
	}
	return time.Duration(d)
}

// jitter spreads d by up to 25% either way.
func jitter(d time.Duration) time.Duration {
	return d + time.Duration(float64(d)*0.25*(rand.Float64()*2-1))
}
