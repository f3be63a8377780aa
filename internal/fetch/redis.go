package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pspoerri/tileview/internal/metrics"
	"github.com/pspoerri/tileview/internal/tile"
)

// RedisConfig configures a RedisCache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
	// Name namespaces keys so several sources can share one Redis.
	Name string
}

// RedisCache is a fetch-through cache shared between tileview instances.
// Redis failures are logged and counted, then the inner fetcher is used as
// if the cache were absent.
type RedisCache struct {
	inner  Fetcher
	client *redis.Client
	ttl    time.Duration
	name   string
	log    *zap.Logger
}

// NewRedisCache connects to cfg.Addr and wraps inner.
func NewRedisCache(ctx context.Context, inner Fetcher, cfg RedisConfig, log *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisCache(inner, client, cfg, log), nil
}

func newRedisCache(inner Fetcher, client *redis.Client, cfg RedisConfig, log *zap.Logger) *RedisCache {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	name := cfg.Name
	if name == "" {
		name = "default"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisCache{inner: inner, client: client, ttl: ttl, name: name, log: log}
}

func (c *RedisCache) keyFor(k tile.Key) string {
	return fmt.Sprintf("tile:%s:%d:%d:%d", c.name, k.Zoom, k.X, k.Y)
}

// Fetch implements Fetcher.
func (c *RedisCache) Fetch(ctx context.Context, key tile.Key) ([]byte, error) {
	rk := c.keyFor(key)

	data, err := c.client.Get(ctx, rk).Bytes()
	switch {
	case err == nil:
		metrics.CacheHits.WithLabelValues("redis").Inc()
		return data, nil
	case errors.Is(err, redis.Nil):
		metrics.CacheMisses.WithLabelValues("redis").Inc()
	default:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.RedisErrors.WithLabelValues("get").Inc()
		c.log.Warn("redis get failed, falling back to source", zap.String("key", rk), zap.Error(err))
	}

	data, err = c.inner.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}

	if err := c.client.Set(ctx, rk, data, c.ttl).Err(); err != nil {
		metrics.RedisErrors.WithLabelValues("set").Inc()
		c.log.Warn("redis set failed", zap.String("key", rk), zap.Error(err))
	}
	return data, nil
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
