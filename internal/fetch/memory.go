package fetch

import (
	"context"
	"time"

	"github.com/karlseguin/ccache/v3"

	"github.com/pspoerri/tileview/internal/metrics"
	"github.com/pspoerri/tileview/internal/tile"
)

// MemoryConfig configures a MemoryCache.
type MemoryConfig struct {
	// MaxItems is the number of tiles kept before the least recently used
	// ones are pruned.
	MaxItems int64
	TTL      time.Duration
}

// MemoryCache keeps recently fetched tile bytes in an in-process LRU.
type MemoryCache struct {
	inner Fetcher
	cache *ccache.Cache[[]byte]
	ttl   time.Duration
}

// NewMemoryCache wraps inner with an LRU of cfg.MaxItems entries.
func NewMemoryCache(inner Fetcher, cfg MemoryConfig) *MemoryCache {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = 1024
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	prune := uint32(cfg.MaxItems / 20)
	if prune == 0 {
		prune = 1
	}
	return &MemoryCache{
		inner: inner,
		cache: ccache.New(ccache.Configure[[]byte]().MaxSize(cfg.MaxItems).ItemsToPrune(prune)),
		ttl:   cfg.TTL,
	}
}

// Fetch implements Fetcher.
func (c *MemoryCache) Fetch(ctx context.Context, key tile.Key) ([]byte, error) {
	k := key.String()
	if item := c.cache.Get(k); item != nil && !item.Expired() {
		metrics.CacheHits.WithLabelValues("memory").Inc()
		return item.Value(), nil
	}
	metrics.CacheMisses.WithLabelValues("memory").Inc()

	data, err := c.inner.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	c.cache.Set(k, data, c.ttl)
	return data, nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int { return c.cache.ItemCount() }

// Close stops the cache's background worker.
func (c *MemoryCache) Close() error {
	c.cache.Stop()
	return nil
}
