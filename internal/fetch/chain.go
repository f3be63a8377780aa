package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pspoerri/tileview/internal/encode"
)

// Config selects and configures the layers of a fetch chain.
type Config struct {
	// Archive, when set, serves tiles from a local PMTiles file instead of
	// a tile server.
	Archive    string
	URL        string
	Subdomains []string
	UserAgent  string
	Referer    string
	Timeout    time.Duration

	Memory        MemoryConfig
	MemoryEnabled bool

	Redis        RedisConfig
	RedisEnabled bool
}

// New builds the source (archive or HTTP), then wraps it with the Redis and
// memory caches when they are enabled. Lookups therefore go memory, Redis,
// source.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Chain, error) {
	if log == nil {
		log = zap.NewNop()
	}
	chain := &Chain{}

	switch {
	case cfg.Archive != "":
		a, err := OpenArchive(cfg.Archive)
		if err != nil {
			return nil, err
		}
		chain.Fetcher = a
		chain.closers = append(chain.closers, a)
		h := a.Header()
		fields := []zap.Field{
			zap.String("path", cfg.Archive),
			zap.Int("tiles", a.NumTiles()),
			zap.Int("zoom_min", int(h.MinZoom)),
			zap.Int("zoom_max", int(h.MaxZoom)),
		}
		if meta, err := a.Metadata(); err != nil {
			log.Warn("unreadable archive metadata", zap.Error(err))
		} else if name, ok := meta["name"].(string); ok {
			fields = append(fields, zap.String("name", name))
		}
		log.Info("serving tiles from archive", fields...)
		for z := int(h.MinZoom); z <= int(h.MaxZoom); z++ {
			log.Debug("archive zoom level", zap.Int("zoom", z), zap.Int("tiles", a.TilesAtZoom(z)))
		}
		if h.TileType != encode.TileTypeUnknown && encode.FormatForTileType(h.TileType) == "" {
			log.Warn("archive does not hold raster tiles, every tile will fail to decode",
				zap.Uint8("tile_type", h.TileType))
		}
	case cfg.URL != "":
		tmpl, err := ParseTemplate(cfg.URL, cfg.Subdomains)
		if err != nil {
			return nil, err
		}
		chain.Fetcher = NewHTTPFetcher(HTTPConfig{
			Template:  tmpl,
			UserAgent: cfg.UserAgent,
			Referer:   cfg.Referer,
			Timeout:   cfg.Timeout,
		}, log.Named("http"))
		log.Info("serving tiles from tile server", zap.String("template", cfg.URL))
	default:
		return nil, errors.New("no tile source configured: set an archive path or a url template")
	}

	if cfg.RedisEnabled {
		r, err := NewRedisCache(ctx, chain.Fetcher, cfg.Redis, log.Named("redis"))
		if err != nil {
			chain.Close()
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		chain.Fetcher = r
		chain.closers = append(chain.closers, r)
		log.Info("redis cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", r.ttl))
	}

	if cfg.MemoryEnabled {
		m := NewMemoryCache(chain.Fetcher, cfg.Memory)
		chain.Fetcher = m
		chain.closers = append(chain.closers, m)
		log.Info("memory cache enabled", zap.Int64("max_items", cfg.Memory.MaxItems))
	}

	return chain, nil
}
