package coord

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// TileSize is the pixel dimension of one square map tile.
const TileSize = 256

// MaxZoom is the deepest zoom level either projection accepts.
const MaxZoom = 22

// ErrUnknownProjection is returned by ForName for unsupported names.
var ErrUnknownProjection = errors.New("unknown projection")

// GeoPoint is a WGS84 position in decimal degrees.
type GeoPoint struct {
	Lat, Lon float64
}

// PlanarPoint is a position in a projection's planar space. Its unit depends
// on the projection: zoom-0 pixels for WebMercator, metres for SwissGrid.
type PlanarPoint struct {
	X, Y float64
}

// Projection converts between geographic coordinates, a planar space and the
// tile grid laid over that planar space. Implementations are stateless.
type Projection interface {
	// ToPlanar converts a geographic position to planar coordinates.
	ToPlanar(p GeoPoint) PlanarPoint

	// ToGeo converts planar coordinates back to a geographic position.
	ToGeo(p PlanarPoint) GeoPoint

	// TileCoord returns the fractional tile position of p at zoom, without
	// any wraparound or clamping.
	TileCoord(p PlanarPoint, zoom int) (fx, fy float64)

	// TileIndex returns the canonical tile index containing p at zoom.
	TileIndex(p PlanarPoint, zoom int) (x, y int)

	// TileOrigin returns the planar position of the origin corner of tile x/y.
	TileOrigin(x, y, zoom int) PlanarPoint

	// Canonical maps a raw tile index to its canonical form. ok is false when
	// the index lies outside the grid and cannot be wrapped.
	Canonical(x, y, zoom int) (cx, cy int, ok bool)

	// Resolution returns planar units per pixel at zoom.
	Resolution(zoom int) float64

	// EPSG returns the EPSG code of the planar space.
	EPSG() int

	// Name returns the configuration name of the projection.
	Name() string
}

// ForEPSG returns a Projection for the given EPSG code.
// Returns nil if the EPSG code is not supported.
func ForEPSG(epsg int) Projection {
	switch epsg {
	case 2056:
		return &SwissGrid{}
	case 3857:
		return &WebMercator{}
	default:
		return nil
	}
}

// ForName resolves a projection from its configuration name.
func ForName(name string) (Projection, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "webmercator", "mercator":
		return &WebMercator{}, nil
	case "swissgrid", "lv95":
		return &SwissGrid{}, nil
	}
	if code, ok := strings.CutPrefix(n, "epsg:"); ok {
		if epsg, err := strconv.Atoi(code); err == nil {
			if p := ForEPSG(epsg); p != nil {
				return p, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %q (supported: webmercator, swissgrid)", ErrUnknownProjection, name)
}

// TilesPerAxis returns 2^zoom.
func TilesPerAxis(zoom int) int {
	return 1 << uint(zoom)
}

// SanitizeIndex wraps a tile index into [0, 2^zoom).
func SanitizeIndex(index, zoom int) int {
	n := TilesPerAxis(zoom)
	return ((index % n) + n) % n
}

// ClampIndex clamps a tile index into [0, 2^zoom - 1].
func ClampIndex(index, zoom int) int {
	maxTile := TilesPerAxis(zoom) - 1
	if index < 0 {
		return 0
	}
	if index > maxTile {
		return maxTile
	}
	return index
}
