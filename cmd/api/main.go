package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"principal_analytics_backend/internal/changefeed"
	"principal_analytics_backend/internal/changefeed/outbox"
	"principal_analytics_backend/internal/events"
	apphttp "principal_analytics_backend/internal/http"
	"principal_analytics_backend/internal/http/router"
	"principal_analytics_backend/internal/principals"
	"principal_analytics_backend/internal/principals/repository"
	"principal_analytics_backend/internal/principals/service"
	"principal_analytics_backend/internal/principals/upstream"
	"principal_analytics_backend/migrations"
	"principal_analytics_backend/platform/config"
	"principal_analytics_backend/platform/db"
	"principal_analytics_backend/platform/logger"
	"principal_analytics_backend/platform/metrics"
	"principal_analytics_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr, "store", cfg.AnalyticsStore)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if cfg.MigrationsEnabled {
		if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
			return db.RunMigrations(ctx, cfg, migrations.FS)
		}); err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete")
	}

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	m := metrics.New()
	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()

	// Reported changes land in the outbox only when a scheduler can share the store.
	var store repository.Store = repository.NewPostgresStore(pool)
	changes := changefeed.NewRecorder(outbox.New(pool))
	if cfg.IsMemoryStore() {
		store = repository.NewMemoryStore()
		changes = nil
		log.Warn("summaries kept in process memory; they are rebuilt on every start")
	}

	statsCache, closeCache := initStatsCache(cfg, log)
	if closeCache != nil {
		defer closeCache()
	}

	breakerSettings := upstream.DefaultBreakerSettings()
	breakerSettings.OnStateChange = func(from, to string) {
		log.Warn("upstream circuit breaker state changed", "from", from, "to", to)
	}
	reader := upstream.NewBreakerReader(upstream.NewPostgresReader(pool), breakerSettings)

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	principalsModule := principals.NewModule(principals.Deps{
		Reader:  reader,
		Store:   store,
		Cache:   statsCache,
		Changes: changes,
		Bus:     eventBus,
		Metrics: m,
		Val:     validator.New(),
		Config:  cfg,
		Log:     log,
	})
	principalsModule.RegisterHandlers(eventBus)
	go principalsModule.Run(ctx)

	// Warm the store so the first dashboard read is not empty.
	go func() {
		if _, err := principalsModule.Coordinator().RefreshAll(ctx); err != nil {
			log.Warn("initial summary refresh failed", "error", err)
		}
	}()

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		Metrics:  m.Handler(),
		EventBus: eventBus,
		Modules: []apphttp.Module{
			principalsModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// initStatsCache returns a Redis-backed stats cache when Redis is configured.
func initStatsCache(cfg *config.Config, log *logger.Logger) (service.StatsCache, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; dashboard stats are not cached")
		return nil, nil
	}

	rdb, err := repository.NewRedisClient(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		log.Error("failed to initialize stats cache", "error", err)
		return nil, nil
	}

	return repository.NewRedisStatsCache(rdb, cfg.GetStatsCacheTTL()), func() {
		_ = rdb.Close()
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
