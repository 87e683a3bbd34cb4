package shared

import "time"

const (
	DefaultBackoffInitial     = 1000 * time.Millisecond
	DefaultBackoffMaxAttempts = 3
)

// BackoffConfig is an exponential retry schedule: attempt n waits Initial*2^n.
// MaxDelay caps a single wait when positive.
type BackoffConfig struct {
	Initial     time.Duration
	MaxAttempts int
	MaxDelay    time.Duration
}

func (b BackoffConfig) Normalize() BackoffConfig {
	if b.Initial <= 0 {
		b.Initial = DefaultBackoffInitial
	}
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = DefaultBackoffMaxAttempts
	}
	if b.MaxDelay < 0 {
		b.MaxDelay = 0
	}
	return b
}

// ShouldRetry reports whether a retry may follow n failed attempts.
func (b BackoffConfig) ShouldRetry(n int) bool {
	return n >= 0 && n < b.MaxAttempts
}

func (b BackoffConfig) DelayFor(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	delay := b.Initial
	for i := 0; i < n; i++ {
		delay *= 2
		if b.MaxDelay > 0 && delay >= b.MaxDelay {
			return b.MaxDelay
		}
	}
	if b.MaxDelay > 0 && delay > b.MaxDelay {
		return b.MaxDelay
	}
	return delay
}
