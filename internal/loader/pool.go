package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pspoerri/tileview/internal/metrics"
	"github.com/pspoerri/tileview/internal/tile"
)

const tracerName = "github.com/pspoerri/tileview/internal/loader"

// Fetcher returns the raw bytes of one tile.
type Fetcher interface {
	Fetch(ctx context.Context, key tile.Key) ([]byte, error)
}

// Presenter turns fetched bytes into the tile's image. It is called from
// worker goroutines and must be safe for concurrent use.
type Presenter interface {
	Present(ctx context.Context, t *tile.Tile, data []byte) error
}

// Config holds worker pool settings.
type Config struct {
	Workers      int
	FetchTimeout time.Duration
}

// Pool is a fixed set of workers draining a Queue.
type Pool struct {
	cfg       Config
	queue     *Queue
	fetcher   Fetcher
	presenter Presenter
	log       *zap.Logger
	tracer    trace.Tracer
}

// NewPool creates a pool; call Run to start the workers.
func NewPool(cfg Config, f Fetcher, p Presenter, log *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		cfg:       cfg,
		queue:     NewQueue(),
		fetcher:   f,
		presenter: p,
		log:       log,
		tracer:    otel.Tracer(tracerName),
	}
}

// Enqueue implements tile.Enqueuer.
func (p *Pool) Enqueue(t *tile.Tile) { p.queue.Push(t) }

// Pending returns the number of tiles waiting for a worker.
func (p *Pool) Pending() int { return p.queue.Len() }

// Run starts the workers and blocks until ctx is done or Close is called.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info("starting load workers", zap.Int("workers", p.cfg.Workers))

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		g.Go(func() error {
			p.work(ctx)
			return nil
		})
	}
	err := g.Wait()

	p.log.Info("load workers stopped")
	return err
}

// Close stops the workers after their current tile and drops queued tiles.
func (p *Pool) Close() { p.queue.Close() }

func (p *Pool) work(ctx context.Context) {
	for {
		t, err := p.queue.Pop(ctx)
		if err != nil {
			return
		}
		p.load(ctx, t)
	}
}

// load fetches and presents one tile. Failures are recorded on the tile and
// never escape, so one bad tile cannot stop the worker.
func (p *Pool) load(ctx context.Context, t *tile.Tile) {
	if t.State() == tile.Disposed {
		p.log.Debug("skipping disposed tile", zap.Stringer("tile", t.Key))
		return
	}

	ctx, span := p.tracer.Start(ctx, "tile.fetch", trace.WithAttributes(
		attribute.Int("tile.z", t.Key.Zoom),
		attribute.Int("tile.x", t.Key.X),
		attribute.Int("tile.y", t.Key.Y),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic loading tile %s: %v", t.Key, r)
			span.SetStatus(codes.Error, err.Error())
			p.fail(t, "panic", err)
		}
	}()

	fctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	data, err := p.fetcher.Fetch(fctx, t.Key)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		stage := "fetch"
		if errors.Is(err, context.DeadlineExceeded) {
			stage = "timeout"
		}
		p.fail(t, stage, err)
		return
	}
	span.SetAttributes(attribute.Int("tile.bytes", len(data)))

	if err := p.presenter.Present(ctx, t, data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "present failed")
		p.fail(t, "present", err)
		return
	}
	span.SetStatus(codes.Ok, "")
}

func (p *Pool) fail(t *tile.Tile, stage string, err error) {
	metrics.FetchFailures.WithLabelValues(stage).Inc()
	if !t.Fail(err) {
		// Disposed (or otherwise settled) while loading.
		p.log.Debug("dropping failure of settled tile",
			zap.Stringer("tile", t.Key), zap.String("stage", stage), zap.Error(err))
		return
	}
	metrics.TilesFailed.Inc()
	p.log.Warn("tile load failed",
		zap.Stringer("tile", t.Key), zap.String("stage", stage), zap.Error(err))
}
