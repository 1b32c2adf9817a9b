package repository

import (
	"time"

	"github.com/okian/podium/pkg/logger"
)

// Option applies a configuration option to the SQLStore.
type Option func(*SQLStore)

// WithMaxOpenConns bounds the connection pool.
func WithMaxOpenConns(n int) Option {
	return func(s *SQLStore) {
		if n > 0 {
			s.maxOpenConns = n
		}
	}
}

// WithConnMaxLifetime sets how long a pooled connection may be reused.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(s *SQLStore) {
		if d > 0 {
			s.connMaxLifetime = d
		}
	}
}

// WithLogger sets the logger used for migrations and pragma tuning.
func WithLogger(l logger.Logger) Option {
	return func(s *SQLStore) {
		if l != nil {
			s.log = l
		}
	}
}

// BreakerOption configures a BreakerStore.
type BreakerOption func(*BreakerStore)

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(n uint32) BreakerOption {
	return func(b *BreakerStore) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithOpenTimeout sets how long the breaker stays open before probing again.
func WithOpenTimeout(d time.Duration) BreakerOption {
	return func(b *BreakerStore) {
		if d > 0 {
			b.openTimeout = d
		}
	}
}

// WithBreakerName names the breaker in metrics and logs.
func WithBreakerName(name string) BreakerOption {
	return func(b *BreakerStore) {
		if name != "" {
			b.name = name
		}
	}
}

// CacheOption configures a CachedStore.
type CacheOption func(*CachedStore)

// WithTTL sets how long cached entries live.
func WithTTL(d time.Duration) CacheOption {
	return func(c *CachedStore) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithKeyPrefix sets the prefix of every cache key.
func WithKeyPrefix(prefix string) CacheOption {
	return func(c *CachedStore) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}
