package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"principal_analytics_backend/internal/changefeed/outbox"
	"principal_analytics_backend/internal/events"
	"principal_analytics_backend/internal/principals/repository"
	"principal_analytics_backend/internal/principals/service"
	"principal_analytics_backend/internal/principals/upstream"
	"principal_analytics_backend/internal/scheduler"
	"principal_analytics_backend/platform/config"
	"principal_analytics_backend/platform/db"
	"principal_analytics_backend/platform/logger"
	"principal_analytics_backend/platform/metrics"

	"github.com/jackc/pgx/v5/pgxpool"
)

const outboxCleanupInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	if cfg.GetRedisURL() == "" {
		panic("scheduler requires REDIS_URL")
	}
	if cfg.IsMemoryStore() {
		panic("scheduler requires ANALYTICS_STORE=postgres: a process-local store is invisible to the API")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()

	rdb, err := repository.NewRedisClient(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	defer func() { _ = rdb.Close() }()

	breakerSettings := upstream.DefaultBreakerSettings()
	breakerSettings.OnStateChange = func(from, to string) {
		log.Warn("upstream circuit breaker state changed", "from", from, "to", to)
	}

	// Refreshes run here write the shared store and drop the API's cached stats.
	coordinator := service.NewCoordinator(
		upstream.NewBreakerReader(upstream.NewPostgresReader(pool), breakerSettings),
		repository.NewPostgresStore(pool),
		eventBus,
		repository.NewRedisStatsCache(rdb, cfg.GetStatsCacheTTL()),
		metrics.New(),
		log,
		service.Options{
			Timeout:     cfg.GetRefreshTimeout(),
			Concurrency: cfg.GetRefreshConcurrency(),
		},
	)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	changes := outbox.New(pool)

	relay := scheduler.NewOutboxRelay(changes, client, cfg, log)
	go relay.Run(ctx)

	cleanup := scheduler.NewOutboxCleanup(changes, log, outboxCleanupInterval, cfg.GetOutboxRetention())
	go cleanup.Run(ctx)

	worker, err := scheduler.NewWorker(cfg, coordinator, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
