package tile

import (
	"math"

	"github.com/pspoerri/tileview/internal/coord"
)

// AllParentLevels keeps fallback levels all the way down to zoom 0.
const AllParentLevels = -1

// Viewport is the visible window into the map.
type Viewport struct {
	Center coord.PlanarPoint
	Width  int // pixels
	Height int // pixels
	// Rotation is the map rotation in degrees, clockwise.
	Rotation float64
	Zoom     int
}

// Range is an inclusive rectangle of raw tile indices at one zoom level.
// x may lie outside [0, 2^zoom) before canonicalization; y never does.
type Range struct {
	Zoom       int
	MinX, MinY int
	MaxX, MaxY int
}

func (r Range) Empty() bool {
	return r.MaxX < r.MinX || r.MaxY < r.MinY
}

func (r Range) Contains(x, y int) bool {
	return x >= r.MinX && x <= r.MaxX && y >= r.MinY && y <= r.MaxY
}

// Count returns the number of raw indices in the range.
func (r Range) Count() int {
	if r.Empty() {
		return 0
	}
	return (r.MaxX - r.MinX + 1) * (r.MaxY - r.MinY + 1)
}

// Keys returns the canonical keys covered by r, row by row. Indices the
// projection rejects are skipped, and indices that wrap onto the same tile
// are reported once.
func (r Range) Keys(proj coord.Projection) []Key {
	r = capColumns(proj, r)
	if r.Empty() {
		return nil
	}
	keys := make([]Key, 0, r.Count())
	seen := make(map[Key]struct{}, r.Count())
	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			cx, cy, ok := proj.Canonical(x, y, r.Zoom)
			if !ok {
				continue
			}
			k := Key{X: cx, Y: cy, Zoom: r.Zoom}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

// ViewportRange returns the tile range covering vp at vp.Zoom.
//
// The unrotated rectangle is rotated about the center tile coordinate and
// replaced by its axis-aligned bounding box, so a rotated viewport yields a
// superset of the tiles actually visible. Rows are intersected with the
// grid; on wrapping projections columns are capped at one full turn.
func ViewportRange(proj coord.Projection, vp Viewport) Range {
	cx, cy := proj.TileCoord(vp.Center, vp.Zoom)
	hw := float64(vp.Width) / (coord.TileSize * 2)
	hh := float64(vp.Height) / (coord.TileSize * 2)

	sin, cos := math.Sincos(vp.Rotation * math.Pi / 180)
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range [4][2]float64{{-hw, -hh}, {hw, -hh}, {hw, hh}, {-hw, hh}} {
		x := cx + c[0]*cos - c[1]*sin
		y := cy + c[0]*sin + c[1]*cos
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}

	r := Range{
		Zoom: vp.Zoom,
		MinX: int(math.Floor(minX)),
		MinY: int(math.Floor(minY)),
		MaxX: int(math.Floor(maxX)),
		MaxY: int(math.Floor(maxY)),
	}
	r = intersectRows(r)
	if wraps(proj, r.Zoom) {
		r = capTurn(r)
	}
	return r
}

// ParentRange scales r down to the coarser parentZoom. A range covering
// every column of its level covers at most every column of the parent.
func ParentRange(r Range, parentZoom int) Range {
	if r.Empty() {
		return Range{Zoom: parentZoom, MinX: 0, MinY: 0, MaxX: -1, MaxY: -1}
	}
	f := 1 << uint(r.Zoom-parentZoom)
	p := intersectRows(Range{
		Zoom: parentZoom,
		MinX: floorDiv(r.MinX, f),
		MinY: floorDiv(r.MinY, f),
		MaxX: floorDiv(r.MaxX, f),
		MaxY: floorDiv(r.MaxY, f),
	})
	if r.MaxX-r.MinX+1 >= coord.TilesPerAxis(r.Zoom) {
		p = capTurn(p)
	}
	return p
}

// NeededRanges returns the range of vp.Zoom together with its fallback
// levels, coarsest first. parentLevels is the number of coarser levels to
// keep: 0 disables fallback, AllParentLevels goes down to zoom 0.
func NeededRanges(proj coord.Projection, vp Viewport, parentLevels int) []Range {
	base := ViewportRange(proj, vp)

	floor := vp.Zoom
	switch {
	case parentLevels == AllParentLevels:
		floor = 0
	case parentLevels > 0:
		floor = max(vp.Zoom-parentLevels, 0)
	}

	ranges := make([]Range, 0, vp.Zoom-floor+1)
	for z := floor; z < vp.Zoom; z++ {
		ranges = append(ranges, ParentRange(base, z))
	}
	return append(ranges, base)
}

// intersectRows restricts r to the rows of the grid. A range lying wholly
// above or below the grid comes back empty.
func intersectRows(r Range) Range {
	n := coord.TilesPerAxis(r.Zoom)
	if r.MaxY < 0 || r.MinY > n-1 {
		r.MinY, r.MaxY = 0, -1
		return r
	}
	r.MinY = coord.ClampIndex(r.MinY, r.Zoom)
	r.MaxY = coord.ClampIndex(r.MaxY, r.Zoom)
	return r
}

// capColumns bounds the columns of r to what proj can resolve: one full
// turn of 2^zoom columns when x wraps, the grid itself when it does not.
func capColumns(proj coord.Projection, r Range) Range {
	if wraps(proj, r.Zoom) {
		return capTurn(r)
	}
	r.MinX = max(r.MinX, 0)
	r.MaxX = min(r.MaxX, coord.TilesPerAxis(r.Zoom)-1)
	return r
}

// capTurn limits r to 2^zoom columns. Wider spans only repeat tiles.
func capTurn(r Range) Range {
	if n := coord.TilesPerAxis(r.Zoom); r.MaxX-r.MinX >= n {
		r.MaxX = r.MinX + n - 1
	}
	return r
}

func wraps(proj coord.Projection, zoom int) bool {
	_, _, ok := proj.Canonical(-1, 0, zoom)
	return ok
}
