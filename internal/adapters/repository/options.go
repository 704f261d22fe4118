package repository

import "time"

// BreakerOption applies a configuration option to the BreakerStore.
type BreakerOption func(*BreakerStore)

// WithBreakerName sets the breaker name used in metrics and logs.
func WithBreakerName(name string) BreakerOption {
	return func(b *BreakerStore) {
		if name != "" {
			b.name = name
		}
	}
}

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(n uint32) BreakerOption {
	return func(b *BreakerStore) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithOpenTimeout sets how long the breaker stays open before probing.
func WithOpenTimeout(d time.Duration) BreakerOption {
	return func(b *BreakerStore) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithHalfOpenRequests sets how many probes are allowed while half-open.
func WithHalfOpenRequests(n uint32) BreakerOption {
	return func(b *BreakerStore) {
		if n > 0 {
			b.maxRequests = n
		}
	}
}
