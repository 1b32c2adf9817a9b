package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/podium/internal/adapters/http/api"
	"github.com/okian/podium/internal/adapters/http/swagger"
	"github.com/okian/podium/internal/adapters/repository"
	service "github.com/okian/podium/internal/app"
	"github.com/okian/podium/internal/config"
	"github.com/okian/podium/internal/domain/forecast"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(context.Background(), "podium exited", logger.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	log := logger.Get()

	// Load configuration (defaults -> .env -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
	}

	store, closeCache, err := buildStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()

	svc, err := buildService(cfg, store, log)
	if err != nil {
		_ = store.Close()
		return err
	}
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           buildHandler(ctx, cfg, svc, log),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or a listener failure
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// buildStore opens the datastore and stacks the circuit breaker and, when
// redis_addr is set, the read-through cache on top. The returned func
// closes the Redis client; the store itself is closed by the service.
func buildStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, func(), error) {
	base, err := repository.Connect(ctx, cfg.DBDriver, cfg.DBDSN, repository.WithLogger(log))
	if err != nil {
		return nil, nil, fmt.Errorf("open datastore: %w", err)
	}
	log.Info(ctx, "datastore opened", logger.String("driver", cfg.DBDriver))

	var store repository.Store = repository.NewBreakerStore(base, log,
		repository.WithFailureThreshold(uint32(cfg.BreakerFailureThreshold)), //nolint:gosec // validated >= 1
		repository.WithOpenTimeout(cfg.BreakerTimeout),
		repository.WithBreakerName("datastore"),
	)

	closeCache := func() {}
	if cfg.RedisAddr != "" {
		client, err := repository.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			// The service works without the cache.
			log.Warn(ctx, "redis unavailable; serving without cache", logger.String("addr", cfg.RedisAddr), logger.Error(err))
			return store, closeCache, nil
		}
		store = repository.NewCachedStore(store, client, log, repository.WithTTL(cfg.CacheTTL))
		closeCache = func() { _ = client.Close() }
		log.Info(ctx, "redis cache enabled", logger.String("addr", cfg.RedisAddr), logger.Duration("ttl", cfg.CacheTTL))
	}
	return store, closeCache, nil
}

func buildService(cfg *config.Config, store repository.Store, log logger.Logger) (*service.Service, error) {
	gap, err := forecast.ParseGapPolicy(cfg.GapPolicy)
	if err != nil {
		return nil, fmt.Errorf("gap policy: %w", err)
	}
	f := forecast.New(
		forecast.WithWindowSize(cfg.WindowSize),
		forecast.WithSmoothingAlpha(cfg.SmoothingAlpha),
		forecast.WithDefaultTopN(cfg.DefaultTopN),
		forecast.WithConcurrency(cfg.Concurrency()),
	)
	return service.New(
		service.WithStore(store),
		service.WithForecaster(f),
		service.WithGapPolicy(gap),
		service.WithMaxTopN(cfg.MaxTopN),
		service.WithContendersLimit(cfg.ContendersLimit),
		service.WithLogger(log.Named("service")),
	), nil
}

func buildHandler(ctx context.Context, cfg *config.Config, svc *service.Service, log logger.Logger) http.Handler {
	return api.NewServer(svc,
		api.WithCORSOrigins(cfg.AllowedOrigins()),
		api.WithRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow),
		api.WithLogger(log.Named("http")),
		api.WithDocs(swagger.Register),
	).Routes(ctx)
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// Compile-time check that the service satisfies the HTTP layer.
var _ api.Dependencies = (*service.Service)(nil)
