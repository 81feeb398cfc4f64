package repository

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"principal_analytics_backend/internal/principals/domain"

	goredis "github.com/redis/go-redis/v9"
)

// Both keys share a hash tag so the check-and-set script stays on one slot.
const (
	statsCacheKey           = "principal_analytics:{stats}"
	statsCacheGenerationKey = "principal_analytics:{stats}:generation"

	defaultStatsCacheTTL = time.Minute
)

// setIfGeneration writes one hash field only while the generation counter
// still holds the value read before the stats were computed.
var setIfGeneration = goredis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[2]) or '0')
if current ~= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[2], ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// RedisStatsCache stores dashboard stats per top-N in one Redis hash, so a
// refresh invalidates every variant with a single DEL. A generation counter
// bumped on every invalidation keeps stats computed before a refresh from
// being written back after it.
type RedisStatsCache struct {
	rdb goredis.UniversalClient
	ttl time.Duration
}

// NewRedisClient opens a client for redisURL. tlsInsecure skips certificate
// verification for managed Redis endpoints with private CAs.
func NewRedisClient(redisURL string, tlsInsecure bool) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if tlsInsecure {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}
	return goredis.NewClient(opt), nil
}

// NewRedisStatsCache creates a cache whose entries live for ttl.
func NewRedisStatsCache(rdb goredis.UniversalClient, ttl time.Duration) *RedisStatsCache {
	if ttl <= 0 {
		ttl = defaultStatsCacheTTL
	}
	return &RedisStatsCache{rdb: rdb, ttl: ttl}
}

// Generation returns the invalidation counter. A missing counter reads as 0.
func (c *RedisStatsCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, statsCacheGenerationKey).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read stats cache generation: %w", err)
	}
	return gen, nil
}

// Get returns the cached stats for topN; ok is false on a miss.
func (c *RedisStatsCache) Get(ctx context.Context, topN int) (domain.SummaryStats, bool, error) {
	raw, err := c.rdb.HGet(ctx, statsCacheKey, strconv.Itoa(topN)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.SummaryStats{}, false, nil
	}
	if err != nil {
		return domain.SummaryStats{}, false, fmt.Errorf("read stats cache: %w", err)
	}

	var stats domain.SummaryStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return domain.SummaryStats{}, false, fmt.Errorf("decode stats cache: %w", err)
	}
	return stats, true, nil
}

// Set stores stats for topN and restarts the expiry of the whole hash, but
// only if no invalidation happened since generation was read. stored is
// false when the write was dropped as stale.
func (c *RedisStatsCache) Set(ctx context.Context, generation int64, topN int, stats domain.SummaryStats) (bool, error) {
	raw, err := json.Marshal(stats)
	if err != nil {
		return false, fmt.Errorf("encode stats cache: %w", err)
	}

	stored, err := setIfGeneration.Run(ctx, c.rdb,
		[]string{statsCacheKey, statsCacheGenerationKey},
		generation, strconv.Itoa(topN), raw, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("write stats cache: %w", err)
	}
	return stored == 1, nil
}

// Invalidate bumps the generation and drops every cached variant.
func (c *RedisStatsCache) Invalidate(ctx context.Context) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Incr(ctx, statsCacheGenerationKey)
		pipe.Del(ctx, statsCacheKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate stats cache: %w", err)
	}
	return nil
}
