// Package mapview runs the control loop of a map: it owns the viewport and
// the tile cache and applies every navigation command on one goroutine.
package mapview

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pspoerri/tileview/internal/coord"
	"github.com/pspoerri/tileview/internal/tile"
)

// MaxSide is the longest viewport side in pixels, enough for an 8K
// display at 2x.
const MaxSide = 16384

var (
	// ErrInvalidZoom is returned for zoom levels the projection cannot address.
	ErrInvalidZoom = errors.New("invalid zoom level")
	// ErrInvalidSize is returned for viewports without area or with a side
	// longer than MaxSide.
	ErrInvalidSize = errors.New("invalid viewport size")
	// ErrStopped is returned by commands sent after Run has returned.
	ErrStopped = errors.New("map control loop stopped")
)

// Config describes the initial view and the navigation limits.
type Config struct {
	Center   coord.GeoPoint
	Zoom     int
	Width    int
	Height   int
	Rotation float64

	MinZoom int
	// MaxZoom is the deepest level navigation reaches. Zero pins the map
	// to zoom 0.
	MaxZoom int
	// ParentLevels is the number of coarser levels kept as fallback, or
	// tile.AllParentLevels.
	ParentLevels int
	// RefreshInterval re-runs the cache refresh periodically so failed
	// tiles get retried while the view is idle. Zero disables it.
	RefreshInterval time.Duration

	Logger *zap.Logger
}

type command struct {
	apply func() error
	done  chan error
}

// Map is a pannable, zoomable and rotatable view over a tile cache.
//
// Navigation methods may be called from any goroutine; they are serialized
// through Run, which must be running for them to return.
type Map struct {
	proj  coord.Projection
	cache *tile.Cache
	cfg   Config
	log   *zap.Logger

	cmds    chan command
	stopped chan struct{}

	mu sync.RWMutex
	vp tile.Viewport
}

// New validates cfg and returns a map over cache. It does not touch the
// cache until Run is called.
func New(cache *tile.Cache, cfg Config) (*Map, error) {
	if cfg.MinZoom < 0 || cfg.MaxZoom > coord.MaxZoom || cfg.MinZoom > cfg.MaxZoom {
		return nil, fmt.Errorf("%w: zoom limits [%d, %d]", ErrInvalidZoom, cfg.MinZoom, cfg.MaxZoom)
	}
	if cfg.Zoom < cfg.MinZoom || cfg.Zoom > cfg.MaxZoom {
		return nil, fmt.Errorf("%w: %d outside [%d, %d]", ErrInvalidZoom, cfg.Zoom, cfg.MinZoom, cfg.MaxZoom)
	}
	if err := checkSize(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	proj := cache.Projection()
	m := &Map{
		proj:    proj,
		cache:   cache,
		cfg:     cfg,
		log:     cfg.Logger,
		cmds:    make(chan command),
		stopped: make(chan struct{}),
	}
	m.vp = tile.Viewport{
		Center:   proj.ToPlanar(cfg.Center),
		Width:    cfg.Width,
		Height:   cfg.Height,
		Rotation: normalizeRotation(cfg.Rotation),
		Zoom:     cfg.Zoom,
	}
	m.vp.Center = m.confine(m.vp.Center, m.vp.Zoom)
	return m, nil
}

// Run loads the initial view and then applies commands until ctx is done.
// All cache mutation happens on the goroutine running Run.
func (m *Map) Run(ctx context.Context) error {
	defer close(m.stopped)

	var tick <-chan time.Time
	if m.cfg.RefreshInterval > 0 {
		t := time.NewTicker(m.cfg.RefreshInterval)
		defer t.Stop()
		tick = t.C
	}

	m.refresh()
	for {
		select {
		case <-ctx.Done():
			m.log.Info("map control loop stopping")
			return nil
		case cmd := <-m.cmds:
			cmd.done <- cmd.apply()
		case <-tick:
			m.refresh()
		}
	}
}

// do runs fn on the control goroutine and waits for its result.
func (m *Map) do(ctx context.Context, fn func() error) error {
	cmd := command{apply: fn, done: make(chan error, 1)}
	select {
	case m.cmds <- cmd:
	case <-m.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// update replaces the viewport with next and refreshes the cache.
func (m *Map) update(next tile.Viewport) {
	next.Center = m.confine(next.Center, next.Zoom)
	next.Rotation = normalizeRotation(next.Rotation)
	m.mu.Lock()
	m.vp = next
	m.mu.Unlock()
	m.refresh()
}

func (m *Map) refresh() []*tile.Tile {
	created := m.cache.Refresh(m.Viewport(), m.cfg.ParentLevels)
	if len(created) > 0 {
		m.log.Debug("viewport refreshed", zap.Int("created", len(created)), zap.Int("cached", m.cache.Len()))
	}
	return created
}

// Viewport returns the current viewport.
func (m *Map) Viewport() tile.Viewport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.vp
}

// Center returns the geographic position at the middle of the viewport.
func (m *Map) Center() coord.GeoPoint {
	return m.proj.ToGeo(m.Viewport().Center)
}

// Projection returns the map's projection.
func (m *Map) Projection() coord.Projection { return m.proj }

// SetViewport replaces the whole viewport.
func (m *Map) SetViewport(ctx context.Context, vp tile.Viewport) error {
	if err := m.checkZoom(vp.Zoom); err != nil {
		return err
	}
	if err := checkSize(vp.Width, vp.Height); err != nil {
		return err
	}
	return m.do(ctx, func() error {
		vp.Zoom = m.clampZoom(vp.Zoom)
		m.update(vp)
		return nil
	})
}

// Resize changes the viewport size in pixels.
func (m *Map) Resize(ctx context.Context, width, height int) error {
	if err := checkSize(width, height); err != nil {
		return err
	}
	return m.do(ctx, func() error {
		vp := m.Viewport()
		vp.Width, vp.Height = width, height
		m.update(vp)
		return nil
	})
}

// Pan moves the view by dx, dy screen pixels. Positive dx reveals what lies
// to the right of the screen, positive dy what lies below it, whatever the
// rotation. A pointer drag of (dx, dy) is Pan(-dx, -dy).
func (m *Map) Pan(ctx context.Context, dx, dy float64) error {
	return m.do(ctx, func() error {
		vp := m.Viewport()
		fx, fy := m.proj.TileCoord(vp.Center, vp.Zoom)
		sin, cos := math.Sincos(vp.Rotation * math.Pi / 180)
		fx += (dx*cos - dy*sin) / coord.TileSize
		fy += (dx*sin + dy*cos) / coord.TileSize
		vp.Center = m.planarAt(fx, fy, vp.Zoom)
		m.update(vp)
		return nil
	})
}

// ZoomTo sets the zoom level, clamped to the configured limits. Levels the
// projection cannot address fail with ErrInvalidZoom.
func (m *Map) ZoomTo(ctx context.Context, zoom int) error {
	if err := m.checkZoom(zoom); err != nil {
		return err
	}
	return m.do(ctx, func() error {
		vp := m.Viewport()
		vp.Zoom = m.clampZoom(zoom)
		m.update(vp)
		return nil
	})
}

// ZoomBy changes the zoom level by delta, clamped to the configured limits.
func (m *Map) ZoomBy(ctx context.Context, delta int) error {
	return m.do(ctx, func() error {
		vp := m.Viewport()
		vp.Zoom = m.clampZoom(vp.Zoom + delta)
		m.update(vp)
		return nil
	})
}

// Rotate sets the clockwise map rotation in degrees.
func (m *Map) Rotate(ctx context.Context, degrees float64) error {
	if math.IsNaN(degrees) || math.IsInf(degrees, 0) {
		return fmt.Errorf("invalid rotation %v", degrees)
	}
	return m.do(ctx, func() error {
		vp := m.Viewport()
		vp.Rotation = degrees
		m.update(vp)
		return nil
	})
}

// CenterOn moves the view so that p is in the middle of the screen.
func (m *Map) CenterOn(ctx context.Context, p coord.GeoPoint) error {
	return m.do(ctx, func() error {
		vp := m.Viewport()
		vp.Center = m.proj.ToPlanar(p)
		m.update(vp)
		return nil
	})
}

// Refresh re-runs the cache refresh for the current view and returns the
// number of tiles it created.
func (m *Map) Refresh(ctx context.Context) (int, error) {
	var n int
	err := m.do(ctx, func() error {
		n = len(m.refresh())
		return nil
	})
	return n, err
}

// Reset drops every cached tile and reloads the current view.
func (m *Map) Reset(ctx context.Context) error {
	return m.do(ctx, func() error {
		m.cache.Reset()
		m.log.Info("tile cache reset")
		m.refresh()
		return nil
	})
}

// Tiles returns the ready tiles up to maxZoom, coarsest level first.
func (m *Map) Tiles(maxZoom int) iter.Seq[*tile.Tile] {
	return m.cache.Iterate(maxZoom)
}

// Tile returns the cached tile for k.
func (m *Map) Tile(k tile.Key) (*tile.Tile, bool) {
	return m.cache.Get(k)
}

// Snapshot is a point-in-time summary of the map.
type Snapshot struct {
	Viewport tile.Viewport
	Center   coord.GeoPoint
	Tiles    int
	Levels   []int
	States   map[tile.State]int
}

// Snapshot returns the current view and per-state tile counts.
func (m *Map) Snapshot() Snapshot {
	vp := m.Viewport()
	return Snapshot{
		Viewport: vp,
		Center:   m.proj.ToGeo(vp.Center),
		Tiles:    m.cache.Len(),
		Levels:   m.cache.Levels(),
		States:   m.cache.Counts(),
	}
}

func (m *Map) checkZoom(zoom int) error {
	if zoom < 0 || zoom > coord.MaxZoom {
		return fmt.Errorf("%w: %d outside [0, %d]", ErrInvalidZoom, zoom, coord.MaxZoom)
	}
	return nil
}

func (m *Map) clampZoom(zoom int) int {
	return max(m.cfg.MinZoom, min(zoom, m.cfg.MaxZoom))
}

// planarAt maps a fractional tile position back to planar space. Both
// projections lay their grids out axis-aligned, so the tile origins of
// (0, 0) and (1, 1) pin down the affine transform.
func (m *Map) planarAt(fx, fy float64, zoom int) coord.PlanarPoint {
	o := m.proj.TileOrigin(0, 0, zoom)
	d := m.proj.TileOrigin(1, 1, zoom)
	return coord.PlanarPoint{
		X: o.X + fx*(d.X-o.X),
		Y: o.Y + fy*(d.Y-o.Y),
	}
}

// confine keeps the center on the grid: x wraps where the projection wraps
// and is clamped elsewhere, y is always clamped.
func (m *Map) confine(p coord.PlanarPoint, zoom int) coord.PlanarPoint {
	n := float64(coord.TilesPerAxis(zoom))
	fx, fy := m.proj.TileCoord(p, zoom)
	if _, _, wraps := m.proj.Canonical(-1, 0, zoom); wraps {
		fx = math.Mod(fx, n)
		if fx < 0 {
			fx += n
		}
	} else {
		fx = math.Max(0, math.Min(fx, n))
	}
	fy = math.Max(0, math.Min(fy, n))
	return m.planarAt(fx, fy, zoom)
}

func checkSize(width, height int) error {
	if width <= 0 || height <= 0 || width > MaxSide || height > MaxSide {
		return fmt.Errorf("%w: %dx%d (sides must lie in [1, %d])", ErrInvalidSize, width, height, MaxSide)
	}
	return nil
}

func normalizeRotation(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
