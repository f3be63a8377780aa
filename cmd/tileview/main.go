package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pspoerri/tileview/internal/config"
	"github.com/pspoerri/tileview/internal/coord"
	"github.com/pspoerri/tileview/internal/encode"
	"github.com/pspoerri/tileview/internal/fetch"
	"github.com/pspoerri/tileview/internal/loader"
	"github.com/pspoerri/tileview/internal/logger"
	"github.com/pspoerri/tileview/internal/mapview"
	"github.com/pspoerri/tileview/internal/server"
	"github.com/pspoerri/tileview/internal/telemetry"
	"github.com/pspoerri/tileview/internal/tile"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

type options struct {
	envFile       string
	showVersion   bool
	warmup        bool
	warmupTimeout time.Duration
}

func main() {
	cfg, opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "tileview: %v\n", err)
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("tileview %s (commit %s, built %s)\n", version, commit, buildDate)
		return
	}

	if err := run(cfg, opts); err != nil {
		fmt.Fprintf(os.Stderr, "tileview: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags loads the environment configuration and applies the flags the
// user actually set on top of it.
func parseFlags(args []string) (*config.Config, options, error) {
	var (
		opts       options
		addr       string
		projection string
		lat, lon   float64
		zoom       int
		rotation   float64
		workers    int
		source     string
		archive    string
		logLevel   string
	)

	fs := flag.NewFlagSet("tileview", flag.ContinueOnError)
	fs.StringVar(&opts.envFile, "env-file", ".env", "Optional dotenv file with configuration")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")
	fs.BoolVar(&opts.warmup, "warmup", false, "Load the configured view once, report progress and exit")
	fs.DurationVar(&opts.warmupTimeout, "warmup-timeout", 5*time.Minute, "Give up warming up after this long")
	fs.StringVar(&addr, "addr", "", "HTTP listen address (HTTP_ADDR)")
	fs.StringVar(&projection, "projection", "", "Projection: webmercator, swissgrid (MAP_PROJECTION)")
	fs.Float64Var(&lat, "lat", 0, "Initial center latitude (MAP_LAT)")
	fs.Float64Var(&lon, "lon", 0, "Initial center longitude (MAP_LON)")
	fs.IntVar(&zoom, "zoom", 0, "Initial zoom level (MAP_ZOOM)")
	fs.Float64Var(&rotation, "rotation", 0, "Initial clockwise rotation in degrees (MAP_ROTATION)")
	fs.IntVar(&workers, "workers", 0, "Number of tile load workers (LOADER_WORKERS)")
	fs.StringVar(&source, "source", "", "Tile URL template, e.g. https://tile.openstreetmap.org/{z}/{x}/{y}.png (SOURCE_URL)")
	fs.StringVar(&archive, "archive", "", "Serve tiles from a PMTiles archive instead of a URL (SOURCE_ARCHIVE)")
	fs.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (LOGGER_LEVEL)")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: tileview [flags]\n\n")
		fmt.Fprintf(fs.Output(), "Headless tile map: keeps the tiles of a pannable, zoomable, rotatable\n")
		fmt.Fprintf(fs.Output(), "view loaded and exposes it over HTTP. Flags override environment variables.\n\n")
		fmt.Fprintf(fs.Output(), "Flags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, opts, err
	}
	if opts.showVersion {
		return nil, opts, nil
	}

	cfg, err := config.New(opts.envFile)
	if err != nil {
		return nil, opts, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.HTTP.Addr = addr
		case "projection":
			cfg.Map.Projection = projection
		case "lat":
			cfg.Map.Lat = lat
		case "lon":
			cfg.Map.Lon = lon
		case "zoom":
			cfg.Map.Zoom = zoom
		case "rotation":
			cfg.Map.Rotation = rotation
		case "workers":
			cfg.Loader.Workers = workers
		case "source":
			cfg.Source.URL = source
		case "archive":
			cfg.Source.Archive = archive
		case "log-level":
			cfg.Logger.Level = logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, opts, err
	}
	return cfg, opts, nil
}

func run(cfg *config.Config, opts options) error {
	log, err := logger.New(cfg.Logger.Level, cfg.Logger.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting tileview",
		zap.String("version", version),
		zap.String("projection", cfg.Map.Projection),
		zap.Float64("lat", cfg.Map.Lat),
		zap.Float64("lon", cfg.Map.Lon),
		zap.Int("zoom", cfg.Map.Zoom),
	)

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				log.Error("failed to shutdown telemetry", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	proj, err := coord.ForName(cfg.Map.Projection)
	if err != nil {
		return err
	}
	enc, err := encode.NewEncoder(cfg.HTTP.TileFormat, cfg.HTTP.TileQuality)
	if err != nil {
		return err
	}

	chain, err := fetch.New(ctx, fetch.Config{
		Archive:       cfg.Source.Archive,
		URL:           cfg.Source.URL,
		Subdomains:    cfg.Source.Subdomains,
		UserAgent:     cfg.Source.UserAgent,
		Referer:       cfg.Source.Referer,
		Timeout:       cfg.Source.Timeout,
		MemoryEnabled: cfg.Memory.Enabled,
		Memory:        fetch.MemoryConfig{MaxItems: cfg.Memory.MaxItems, TTL: cfg.Memory.TTL},
		RedisEnabled:  cfg.Redis.Enabled,
		Redis: fetch.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
			Name:     cfg.Redis.Name,
		},
	}, log.Named("fetch"))
	if err != nil {
		return fmt.Errorf("failed to build tile source: %w", err)
	}
	defer chain.Close()

	pool := loader.NewPool(loader.Config{
		Workers:      cfg.Loader.Workers,
		FetchTimeout: cfg.Loader.FetchTimeout,
	}, chain, loader.NewDecodePresenter(tile.DefaultPool), log.Named("loader"))

	cache := tile.NewCache(proj, pool, tile.CacheConfig{
		RetryAfter: cfg.Loader.RetryAfter,
		Logger:     log.Named("cache"),
	})

	m, err := mapview.New(cache, mapview.Config{
		Center:          coord.GeoPoint{Lat: cfg.Map.Lat, Lon: cfg.Map.Lon},
		Zoom:            cfg.Map.Zoom,
		Width:           cfg.Map.Width,
		Height:          cfg.Map.Height,
		Rotation:        cfg.Map.Rotation,
		MinZoom:         cfg.Map.MinZoom,
		MaxZoom:         cfg.Map.MaxZoom,
		ParentLevels:    cfg.Map.ParentLevels,
		RefreshInterval: cfg.Map.RefreshInterval,
		Logger:          log.Named("map"),
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(gctx) })
	g.Go(func() error { return m.Run(gctx) })

	if opts.warmup {
		werr := warmup(gctx, m, opts.warmupTimeout, log)
		stop()
		pool.Close()
		if err := g.Wait(); err != nil && werr == nil {
			werr = err
		}
		return werr
	}

	srv := server.New(m, server.Options{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Tracing:      cfg.Telemetry.Enabled,
		Pending:      pool.Pending,
		Encoder:      enc,
	}, log.Named("http"))

	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		pool.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	cache.Reset()
	log.Info("server stopped")
	return err
}

// warmup loads every tile the configured view needs and waits until none
// is pending, printing progress to stderr.
func warmup(ctx context.Context, m *mapview.Map, timeout time.Duration, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := m.Refresh(ctx); err != nil {
		return err
	}

	snap := m.Snapshot()
	pb := newProgressBar(os.Stderr, "Warmup", int64(snap.Tiles))
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		snap = m.Snapshot()
		pending := snap.States[tile.Pending]
		pb.Set(int64(snap.Tiles-pending), int64(snap.Tiles))
		if pending == 0 {
			break
		}
		select {
		case <-ctx.Done():
			pb.Finish()
			return fmt.Errorf("warmup interrupted with %d tiles pending: %w", pending, ctx.Err())
		case <-ticker.C:
		}
	}
	pb.Finish()

	log.Info("warmup completed",
		zap.Int("tiles", snap.Tiles),
		zap.Int("ready", snap.States[tile.Ready]),
		zap.Int("failed", snap.States[tile.Failed]),
		zap.Ints("levels", snap.Levels),
	)
	return nil
}
