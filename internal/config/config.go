// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Keys are flat and match the koanf tags on Config.
//   - New returns the defaults declared in the struct tags.
//   - Validate reports every out-of-range value wrapped in ErrInvalidConfig.
package config

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" default:"info" validate:"oneof=debug info warn error"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr" default:":9080" validate:"required"`

	// DBDriver selects the datastore: sqlite, postgres or memory.
	DBDriver string `koanf:"db_driver" default:"sqlite" validate:"oneof=sqlite sqlite3 postgres postgresql pg memory"`

	// DBDSN is the driver specific data source, a file path for SQLite.
	DBDSN string `koanf:"db_dsn" default:"podium.db" validate:"required_unless=DBDriver memory"`

	// WindowSize is the number of trailing editions averaged by moving_average.
	WindowSize int `koanf:"window_size" default:"5" validate:"gte=1"`

	// SmoothingAlpha is the exponential smoothing factor.
	SmoothingAlpha float64 `koanf:"smoothing_alpha" default:"0.3" validate:"gt=0,lt=1"`

	// DefaultTopN is the ranked list length when a request names none.
	DefaultTopN int `koanf:"default_top_n" default:"25" validate:"gte=1,ltefield=MaxTopN"`

	// MaxTopN caps top_n on ranked requests.
	MaxTopN int `koanf:"max_top_n" default:"500" validate:"gte=1"`

	// GapPolicy decides how missing editions are treated: omit or zero.
	GapPolicy string `koanf:"gap_policy" default:"omit" validate:"oneof=omit zero"`

	// RankConcurrency bounds the per-entity fan-out of ranked requests.
	// 0 selects the number of CPUs.
	RankConcurrency int `koanf:"rank_concurrency" validate:"gte=0"`

	// RedisAddr enables the read-through cache when set.
	RedisAddr     string        `koanf:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db" validate:"gte=0"`
	CacheTTL      time.Duration `koanf:"cache_ttl" default:"10m" validate:"gt=0"`

	// BreakerFailureThreshold is the number of consecutive datastore
	// failures that opens the circuit breaker.
	BreakerFailureThreshold int           `koanf:"breaker_failure_threshold" default:"5" validate:"gte=1"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout" default:"30s" validate:"gt=0"`

	// CORSAllowedOrigins is a comma separated origin list.
	CORSAllowedOrigins string `koanf:"cors_allowed_origins" default:"*"`

	// RateLimitRequests per RateLimitWindow per client IP; 0 disables limiting.
	RateLimitRequests int           `koanf:"rate_limit_requests" default:"100" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" default:"1m" validate:"gt=0"`

	// ContendersLimit is the default length of the contenders list.
	ContendersLimit int `koanf:"contenders_limit" default:"50" validate:"gte=1,lte=1000"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" default:"10s" validate:"gt=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled()) //nolint:gochecknoglobals // validator caches struct metadata

// New creates a Config holding the defaults. Context is accepted first to
// satisfy the project-wide convention.
func New(_ context.Context) *Config {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		// Tags are static; a failure here is a programming error.
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return c
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// AllowedOrigins splits CORSAllowedOrigins.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Concurrency resolves RankConcurrency.
func (c *Config) Concurrency() int {
	if c.RankConcurrency > 0 {
		return c.RankConcurrency
	}
	return runtime.NumCPU()
}
