package coord

import "math"

// LV95 tile grid: a square of SwissExtent metres anchored at the north-west
// corner of the swisstopo WMTS extent.
const (
	SwissOriginE = 2_420_000.0
	SwissOriginN = 1_350_000.0
	SwissExtent  = 480_000.0
)

// Bern reference point in sexagesimal seconds.
const (
	bernLatSec = 169028.66
	bernLonSec = 26782.5
)

// SwissGrid implements the Projection interface for EPSG:2056 (CH1903+ / LV95).
// Uses swisstopo's published polynomial approximation formulas.
// Accuracy: ~1 meter near Bern, degrading towards the borders. Coordinates far
// outside Switzerland are converted without complaint but are meaningless.
//
// Reference: https://www.swisstopo.admin.ch/en/knowledge-facts/surveying-geodesy/reference-frames/local/lv95.html
type SwissGrid struct{}

func (s *SwissGrid) EPSG() int    { return 2056 }
func (s *SwissGrid) Name() string { return "swissgrid" }

// SexagesimalSeconds converts decimal degrees to seconds of arc by splitting
// the value into whole degrees, whole minutes and fractional seconds.
func SexagesimalSeconds(deg float64) float64 {
	d := math.Floor(deg)
	minutes := (deg - d) * 60
	m := math.Floor(minutes)
	sec := (minutes - m) * 60
	return sec + m*60 + d*3600
}

// ToPlanar converts WGS84 to LV95 easting (X) / northing (Y).
func (s *SwissGrid) ToPlanar(p GeoPoint) PlanarPoint {
	// Auxiliary values in 10000" units relative to Bern.
	phi := (SexagesimalSeconds(p.Lat) - bernLatSec) / 10000
	lambda := (SexagesimalSeconds(p.Lon) - bernLonSec) / 10000

	easting := 2_600_072.37 +
		211_455.93*lambda -
		10_938.51*lambda*phi -
		0.36*lambda*phi*phi -
		44.54*lambda*lambda*lambda

	northing := 1_200_147.07 +
		308_807.95*phi +
		3_745.25*lambda*lambda +
		76.63*phi*phi -
		194.56*lambda*lambda*phi +
		119.79*phi*phi*phi

	return PlanarPoint{X: easting, Y: northing}
}

// ToGeo converts LV95 easting/northing to WGS84.
func (s *SwissGrid) ToGeo(p PlanarPoint) GeoPoint {
	// Auxiliary values: differences from Bern reference in 1000 km units
	y := (p.X - 2_600_000) / 1_000_000
	x := (p.Y - 1_200_000) / 1_000_000

	// Longitude in 10000" units
	lonSec := 2.6779094 +
		4.728982*y +
		0.791484*y*x +
		0.1306*y*x*x -
		0.0436*y*y*y

	// Latitude in 10000" units
	latSec := 16.9023892 +
		3.238272*x -
		0.270978*y*y -
		0.002528*x*x -
		0.0447*y*y*x -
		0.0140*x*x*x

	return GeoPoint{
		Lat: latSec * 100.0 / 36.0,
		Lon: lonSec * 100.0 / 36.0,
	}
}

func (s *SwissGrid) TileCoord(p PlanarPoint, zoom int) (fx, fy float64) {
	size := SwissExtent / float64(TilesPerAxis(zoom))
	return (p.X - SwissOriginE) / size, (SwissOriginN - p.Y) / size
}

func (s *SwissGrid) TileIndex(p PlanarPoint, zoom int) (x, y int) {
	fx, fy := s.TileCoord(p, zoom)
	return ClampIndex(int(math.Floor(fx)), zoom), ClampIndex(int(math.Floor(fy)), zoom)
}

// TileOrigin returns the north-west corner of tile x/y.
func (s *SwissGrid) TileOrigin(x, y, zoom int) PlanarPoint {
	size := SwissExtent / float64(TilesPerAxis(zoom))
	return PlanarPoint{
		X: SwissOriginE + float64(x)*size,
		Y: SwissOriginN - float64(y)*size,
	}
}

// Canonical rejects indices outside the grid. The national grid does not wrap.
func (s *SwissGrid) Canonical(x, y, zoom int) (int, int, bool) {
	n := TilesPerAxis(zoom)
	if x < 0 || x >= n || y < 0 || y >= n {
		return 0, 0, false
	}
	return x, y, true
}

func (s *SwissGrid) Resolution(zoom int) float64 {
	return SwissExtent / (float64(TilesPerAxis(zoom)) * TileSize)
}
