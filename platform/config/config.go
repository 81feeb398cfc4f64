// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq-backed background worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// AnalyticsConfig provides settings for the principal activity engine.
type AnalyticsConfig interface {
	GetAnalyticsStore() string
	GetRefreshTimeout() time.Duration
	GetRefreshConcurrency() int
	GetRefreshDebounce() time.Duration
	GetStatsCacheTTL() time.Duration
	GetManualRefreshRate() float64
	GetManualRefreshBurst() int
}

// OutboxConfig provides settings for the change outbox relay and cleanup.
type OutboxConfig interface {
	GetOutboxPollInterval() time.Duration
	GetOutboxBatchSize() int
	GetOutboxRetention() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                string
	HTTPAddr           string
	DatabaseURL        string
	MigrationsEnabled  bool
	CORSAllowAll       bool
	CORSOrigins        []string
	CORSAllowCreds     bool
	RedisURL           string
	RedisTLSInsecure   bool
	AsynqQueueName     string
	AsynqConcurrency   int
	AnalyticsStore     string
	RefreshTimeout     time.Duration
	RefreshConcurrency int
	RefreshDebounce    time.Duration
	StatsCacheTTL      time.Duration
	ManualRefreshRate  float64
	ManualRefreshBurst int
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxRetention    time.Duration
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// AnalyticsConfig implementation
func (c *Config) GetAnalyticsStore() string         { return c.AnalyticsStore }
func (c *Config) GetRefreshTimeout() time.Duration  { return c.RefreshTimeout }
func (c *Config) GetRefreshConcurrency() int        { return c.RefreshConcurrency }
func (c *Config) GetRefreshDebounce() time.Duration { return c.RefreshDebounce }
func (c *Config) GetStatsCacheTTL() time.Duration   { return c.StatsCacheTTL }
func (c *Config) GetManualRefreshRate() float64     { return c.ManualRefreshRate }
func (c *Config) GetManualRefreshBurst() int        { return c.ManualRefreshBurst }
func (c *Config) IsMemoryStore() bool               { return c.AnalyticsStore == StoreMemory }

// OutboxConfig implementation
func (c *Config) GetOutboxPollInterval() time.Duration { return c.OutboxPollInterval }
func (c *Config) GetOutboxBatchSize() int              { return c.OutboxBatchSize }
func (c *Config) GetOutboxRetention() time.Duration    { return c.OutboxRetention }

const (
	// StorePostgres keeps summaries in the principal_activity_summaries table.
	StorePostgres = "postgres"
	// StoreMemory keeps summaries in process; intended for local runs.
	StoreMemory = "memory"
)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                getEnv("APP_ENV", "development"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		MigrationsEnabled:  strings.EqualFold(getEnv("MIGRATIONS_ENABLED", "true"), "true"),
		CORSAllowAll:       corsAllowAll,
		CORSOrigins:        corsOrigins,
		CORSAllowCreds:     strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:           getEnv("REDIS_URL", ""),
		RedisTLSInsecure:   strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:     getEnv("ASYNQ_QUEUE", "analytics"),
		AsynqConcurrency:   mustInt(getEnv("ASYNQ_CONCURRENCY", "4")),
		AnalyticsStore:     strings.ToLower(getEnv("ANALYTICS_STORE", StorePostgres)),
		RefreshTimeout:     mustDuration(getEnv("ANALYTICS_REFRESH_TIMEOUT", "5s")),
		RefreshConcurrency: mustInt(getEnv("ANALYTICS_REFRESH_CONCURRENCY", "8")),
		RefreshDebounce:    mustDuration(getEnv("ANALYTICS_REFRESH_DEBOUNCE", "500ms")),
		StatsCacheTTL:      mustDuration(getEnv("ANALYTICS_STATS_CACHE_TTL", "60s")),
		ManualRefreshRate:  mustFloat(getEnv("MANUAL_REFRESH_RATE", "0.2")),
		ManualRefreshBurst: mustInt(getEnv("MANUAL_REFRESH_BURST", "2")),
		OutboxPollInterval: mustDuration(getEnv("ANALYTICS_OUTBOX_POLL_INTERVAL", "2s")),
		OutboxBatchSize:    mustInt(getEnv("ANALYTICS_OUTBOX_BATCH_SIZE", "100")),
		OutboxRetention:    mustDuration(getEnv("ANALYTICS_OUTBOX_RETENTION", "168h")),
	}

	if cfg.AnalyticsStore != StorePostgres && cfg.AnalyticsStore != StoreMemory {
		return nil, fmt.Errorf("ANALYTICS_STORE must be %q or %q", StorePostgres, StoreMemory)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RefreshTimeout <= 0 {
		return nil, fmt.Errorf("ANALYTICS_REFRESH_TIMEOUT must be a positive duration")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
