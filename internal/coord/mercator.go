package coord

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
)

const (
	// EarthCircumference is the equatorial circumference in meters at zoom 0.
	EarthCircumference = 40075016.685578488
	// OriginShift is half the earth's circumference.
	OriginShift = EarthCircumference / 2.0
	// MapWidth is the side of the WebMercator planar square, in zoom-0 pixels.
	MapWidth = float64(TileSize)
)

// WebMercator implements the Projection interface for EPSG:3857.
//
// Planar space is a MapWidth x MapWidth square with the origin at the
// north-west corner (-180°, ~85.05°) and y growing southwards, so planar
// units are pixels at zoom 0. Tile x indices wrap at the anti-meridian,
// y indices are clamped.
type WebMercator struct{}

func (w *WebMercator) EPSG() int    { return 3857 }
func (w *WebMercator) Name() string { return "webmercator" }

func (w *WebMercator) ToPlanar(p GeoPoint) PlanarPoint {
	m := project.WGS84.ToMercator(orb.Point{p.Lon, p.Lat})
	return PlanarPoint{
		X: (m[0] + OriginShift) / EarthCircumference * MapWidth,
		Y: (OriginShift - m[1]) / EarthCircumference * MapWidth,
	}
}

func (w *WebMercator) ToGeo(p PlanarPoint) GeoPoint {
	m := orb.Point{
		p.X/MapWidth*EarthCircumference - OriginShift,
		OriginShift - p.Y/MapWidth*EarthCircumference,
	}
	ll := project.Mercator.ToWGS84(m)
	return GeoPoint{Lat: ll.Lat(), Lon: ll.Lon()}
}

func (w *WebMercator) TileCoord(p PlanarPoint, zoom int) (fx, fy float64) {
	n := float64(TilesPerAxis(zoom))
	return p.X / MapWidth * n, p.Y / MapWidth * n
}

func (w *WebMercator) TileIndex(p PlanarPoint, zoom int) (x, y int) {
	fx, fy := w.TileCoord(p, zoom)
	x = SanitizeIndex(int(math.Floor(fx)), zoom)
	y = ClampIndex(int(math.Floor(fy)), zoom)
	return
}

func (w *WebMercator) TileOrigin(x, y, zoom int) PlanarPoint {
	size := MapWidth / float64(TilesPerAxis(zoom))
	return PlanarPoint{X: float64(x) * size, Y: float64(y) * size}
}

func (w *WebMercator) Canonical(x, y, zoom int) (int, int, bool) {
	if y < 0 || y >= TilesPerAxis(zoom) {
		return 0, 0, false
	}
	return SanitizeIndex(x, zoom), y, true
}

func (w *WebMercator) Resolution(zoom int) float64 {
	return MapWidth / (float64(TilesPerAxis(zoom)) * TileSize)
}

// KeyBound returns the WGS84 bounding box of web tile x/y at zoom.
func KeyBound(x, y, zoom int) orb.Bound {
	return maptile.New(uint32(x), uint32(y), maptile.Zoom(zoom)).Bound()
}

// GroundResolution returns the ground resolution in meters/pixel at the given latitude and zoom level.
func GroundResolution(lat float64, zoom int) float64 {
	return EarthCircumference * math.Cos(lat*math.Pi/180.0) / math.Pow(2, float64(zoom)) / float64(TileSize)
}
