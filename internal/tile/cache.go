package tile

import (
	"iter"
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pspoerri/tileview/internal/coord"
	"github.com/pspoerri/tileview/internal/metrics"
)

// DefaultRetryAfter is how long a failed tile stays in the cache before a
// refresh that still needs it replaces it with a fresh pending tile.
const DefaultRetryAfter = 10 * time.Second

// Enqueuer accepts newly created tiles for loading. Enqueue must not block.
type Enqueuer interface {
	Enqueue(t *Tile)
}

// levels maps zoom → key → tile. A levels value is never mutated once it
// has been published; every refresh builds a new one.
type levels map[int]map[Key]*Tile

// CacheConfig holds optional cache settings. Zero values select defaults.
type CacheConfig struct {
	Disposer   Disposer
	RetryAfter time.Duration
	Logger     *zap.Logger
}

// Cache holds the tiles of every needed zoom level.
//
// Refresh and Reset must only be called from one goroutine at a time.
// Iterate, Get, Len and the other readers may run concurrently with them and
// with loader workers.
type Cache struct {
	proj       coord.Projection
	queue      Enqueuer
	disposer   Disposer
	retryAfter time.Duration
	log        *zap.Logger
	now        func() time.Time

	current atomic.Pointer[levels]
}

// NewCache returns an empty cache creating tiles in proj's grid and
// handing them to q.
func NewCache(proj coord.Projection, q Enqueuer, cfg CacheConfig) *Cache {
	c := &Cache{
		proj:       proj,
		queue:      q,
		disposer:   cfg.Disposer,
		retryAfter: cfg.RetryAfter,
		log:        cfg.Logger,
		now:        time.Now,
	}
	if c.disposer == nil {
		c.disposer = DefaultPool
	}
	if c.retryAfter <= 0 {
		c.retryAfter = DefaultRetryAfter
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	c.current.Store(&levels{})
	return c
}

// Projection returns the projection the cache lays its tiles out in.
func (c *Cache) Projection() coord.Projection {
	return c.proj
}

// Refresh brings the cache in line with vp: missing tiles are created and
// enqueued, tiles no longer covered are disposed and zoom levels outside
// the needed set are dropped. It returns the newly created tiles and never
// blocks on I/O.
func (c *Cache) Refresh(vp Viewport, parentLevels int) []*Tile {
	return c.apply(NeededRanges(c.proj, vp, parentLevels))
}

func (c *Cache) apply(ranges []Range) []*Tile {
	old := *c.current.Load()
	next := make(levels, len(ranges))
	now := c.now()

	var created []*Tile
	for _, r := range ranges {
		keys := r.Keys(c.proj)
		if len(keys) == 0 {
			continue
		}
		prev := old[r.Zoom]
		level := make(map[Key]*Tile, len(keys))

		var fresh []*Tile
		for _, k := range keys {
			if t, ok := prev[k]; ok && !c.expired(t, now) {
				level[k] = t
				continue
			}
			t := NewTile(k, c.proj.TileOrigin(k.X, k.Y, k.Zoom), c.disposer)
			level[k] = t
			fresh = append(fresh, t)
		}
		coord.SortByHilbert(fresh, r.Zoom, func(t *Tile) (int, int) { return t.Key.X, t.Key.Y })
		created = append(created, fresh...)
		next[r.Zoom] = level
	}

	c.current.Store(&next)

	var disposed int
	for z, level := range old {
		kept := next[z]
		for k, t := range level {
			if kept[k] != t && t.Dispose() {
				disposed++
			}
		}
	}

	for _, t := range created {
		c.queue.Enqueue(t)
	}

	metrics.TilesCreated.Add(float64(len(created)))
	metrics.TilesDisposed.Add(float64(disposed))
	if len(created) > 0 || disposed > 0 {
		c.log.Debug("cache refreshed",
			zap.Int("created", len(created)),
			zap.Int("disposed", disposed),
			zap.Int("levels", len(next)))
	}
	return created
}

// expired reports whether a failed tile is due for another attempt.
func (c *Cache) expired(t *Tile, now time.Time) bool {
	if t.State() != Failed {
		return false
	}
	return now.Sub(t.FailedAt()) >= c.retryAfter
}

// Reset swaps in an empty cache and disposes every tile of the old one.
// Iterations that already started keep walking the old structure.
func (c *Cache) Reset() {
	old := *c.current.Swap(&levels{})
	var disposed int
	for _, level := range old {
		for _, t := range level {
			if t.Dispose() {
				disposed++
			}
		}
	}
	metrics.TilesDisposed.Add(float64(disposed))
	c.log.Debug("cache reset", zap.Int("disposed", disposed))
}

// Iterate yields the ready tiles of all levels up to maxZoom, coarse levels
// first so that finer tiles paint over them. Within a level tiles come row
// by row. Each iteration reads the cache as it is when iteration starts.
func (c *Cache) Iterate(maxZoom int) iter.Seq[*Tile] {
	return func(yield func(*Tile) bool) {
		lv := *c.current.Load()
		for _, z := range slices.Sorted(maps.Keys(lv)) {
			if z > maxZoom {
				return
			}
			level := lv[z]
			keys := slices.SortedFunc(maps.Keys(level), compareKeys)
			for _, k := range keys {
				t := level[k]
				if t.State() != Ready {
					continue
				}
				if !yield(t) {
					return
				}
			}
		}
	}
}

// Get returns the cached tile for k in any state.
func (c *Cache) Get(k Key) (*Tile, bool) {
	t, ok := (*c.current.Load())[k.Zoom][k]
	return t, ok
}

// Len returns the number of cached tiles in any state.
func (c *Cache) Len() int {
	var n int
	for _, level := range *c.current.Load() {
		n += len(level)
	}
	return n
}

// Levels returns the cached zoom levels in ascending order.
func (c *Cache) Levels() []int {
	return slices.Sorted(maps.Keys(*c.current.Load()))
}

// Counts returns the number of cached tiles per state.
func (c *Cache) Counts() map[State]int {
	counts := make(map[State]int, 4)
	for _, level := range *c.current.Load() {
		for _, t := range level {
			counts[t.State()]++
		}
	}
	return counts
}
