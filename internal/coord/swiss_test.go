package coord

import (
	"math"
	"testing"
)

// Reference points from swisstopo:
// https://www.swisstopo.admin.ch/en/knowledge-facts/surveying-geodesy/reference-frames/local/lv95.html
//
// Bern (Federal Palace):  E 2_600_000  N 1_200_000  →  lon 7.438632  lat 46.951083
// Zurich (ETH):           E 2_683_474  N 1_247_862  →  lon 8.547970  lat 47.376870
// Geneva (Jet d'eau):     E 2_500_560  N 1_118_017  →  lon 6.143200  lat 46.207450
var swissRefPoints = []struct {
	name              string
	easting, northing float64
	lon, lat          float64
	tolDeg            float64 // tolerance in degrees
}{
	{
		name:    "Bern (reference origin)",
		easting: 2_600_000, northing: 1_200_000,
		lon: 7.438632, lat: 46.951083,
		tolDeg: 0.001, // ~100m, polynomial approximation
	},
	{
		name:    "Zurich",
		easting: 2_683_474, northing: 1_247_862,
		lon: 8.5417, lat: 47.3769,
		tolDeg: 0.005,
	},
	{
		name:    "Geneva",
		easting: 2_500_560, northing: 1_118_017,
		lon: 6.1432, lat: 46.2075,
		tolDeg: 0.01, // polynomial approximation has larger error at edges
	},
}

func TestSwissGrid_ToGeo_ReferencePoints(t *testing.T) {
	s := &SwissGrid{}

	for _, ref := range swissRefPoints {
		t.Run(ref.name, func(t *testing.T) {
			got := s.ToGeo(PlanarPoint{X: ref.easting, Y: ref.northing})
			if dLon := math.Abs(got.Lon - ref.lon); dLon > ref.tolDeg {
				t.Errorf("ToGeo lon: got %.6f, want ~%.6f (delta=%.6f > tol=%.6f)",
					got.Lon, ref.lon, dLon, ref.tolDeg)
			}
			if dLat := math.Abs(got.Lat - ref.lat); dLat > ref.tolDeg {
				t.Errorf("ToGeo lat: got %.6f, want ~%.6f (delta=%.6f > tol=%.6f)",
					got.Lat, ref.lat, dLat, ref.tolDeg)
			}
		})
	}
}

func TestSwissGrid_ToPlanar_ReferencePoints(t *testing.T) {
	s := &SwissGrid{}

	for _, ref := range swissRefPoints {
		t.Run(ref.name, func(t *testing.T) {
			got := s.ToPlanar(GeoPoint{Lat: ref.lat, Lon: ref.lon})
			// Tolerance: polynomial approximation has ~meter accuracy near center,
			// but can be several hundred meters at edges of Switzerland.
			tolM := 600.0
			if dE := math.Abs(got.X - ref.easting); dE > tolM {
				t.Errorf("ToPlanar easting: got %.1f, want ~%.1f (delta=%.1f > tol=%.1f)",
					got.X, ref.easting, dE, tolM)
			}
			if dN := math.Abs(got.Y - ref.northing); dN > tolM {
				t.Errorf("ToPlanar northing: got %.1f, want ~%.1f (delta=%.1f > tol=%.1f)",
					got.Y, ref.northing, dN, tolM)
			}
		})
	}
}

func TestSwissGrid_RoundTrip(t *testing.T) {
	s := &SwissGrid{}

	for _, ref := range swissRefPoints {
		t.Run(ref.name+"_LV95->WGS84->LV95", func(t *testing.T) {
			got := s.ToPlanar(s.ToGeo(PlanarPoint{X: ref.easting, Y: ref.northing}))

			tolM := 2.0 // Roundtrip should be very tight (polynomial self-consistency)
			if dE := math.Abs(got.X - ref.easting); dE > tolM {
				t.Errorf("roundtrip easting: got %.2f, want ~%.2f (delta=%.2f)", got.X, ref.easting, dE)
			}
			if dN := math.Abs(got.Y - ref.northing); dN > tolM {
				t.Errorf("roundtrip northing: got %.2f, want ~%.2f (delta=%.2f)", got.Y, ref.northing, dN)
			}
		})
	}
}

func TestSwissGrid_EdgeOfSwitzerland(t *testing.T) {
	s := &SwissGrid{}

	// Points near the edges of Switzerland.
	edges := []GeoPoint{
		{Lon: 5.96, Lat: 45.82},  // SW corner (near Geneva)
		{Lon: 10.49, Lat: 47.81}, // NE corner (near Bodensee)
		{Lon: 6.13, Lat: 47.50},  // NW (Jura)
		{Lon: 10.47, Lat: 46.17}, // SE (Engadin)
	}

	for _, pt := range edges {
		got := s.ToGeo(s.ToPlanar(pt))

		tol := 1e-3 // ~100m
		if math.Abs(got.Lon-pt.Lon) > tol || math.Abs(got.Lat-pt.Lat) > tol {
			t.Errorf("edge roundtrip (%.2f, %.2f): got (%.6f, %.6f), delta=(%.6f, %.6f)",
				pt.Lon, pt.Lat, got.Lon, got.Lat, got.Lon-pt.Lon, got.Lat-pt.Lat)
		}
	}
}

func TestSexagesimalSeconds(t *testing.T) {
	for _, deg := range []float64{0, 7.438632, 46.951083, 8.5417, 89.999} {
		got := SexagesimalSeconds(deg)
		if want := deg * 3600; math.Abs(got-want) > 1e-6 {
			t.Errorf("SexagesimalSeconds(%v) = %v, want ~%v", deg, got, want)
		}
	}
}

func TestSwissGrid_TileGrid(t *testing.T) {
	s := &SwissGrid{}
	bern := PlanarPoint{X: 2_600_000, Y: 1_200_000}

	tests := []struct {
		zoom         int
		wantX, wantY int
	}{
		{0, 0, 0},
		{1, 0, 0},
		{2, 1, 1},
		{3, 3, 2},
	}
	for _, tt := range tests {
		x, y := s.TileIndex(bern, tt.zoom)
		if x != tt.wantX || y != tt.wantY {
			t.Errorf("TileIndex(bern, %d) = (%d, %d), want (%d, %d)", tt.zoom, x, y, tt.wantX, tt.wantY)
		}
	}

	// The origin of tile 0/0 is the north-west corner of the grid.
	if o := s.TileOrigin(0, 0, 5); o.X != SwissOriginE || o.Y != SwissOriginN {
		t.Errorf("TileOrigin(0, 0, 5) = %+v", o)
	}

	// Indices outside the grid clamp instead of wrapping.
	x, y := s.TileIndex(PlanarPoint{X: 0, Y: 0}, 4)
	if x != 0 || y != 15 {
		t.Errorf("TileIndex(far south-west, 4) = (%d, %d), want (0, 15)", x, y)
	}

	if _, _, ok := s.Canonical(-1, 0, 4); ok {
		t.Error("Canonical(-1, 0, 4) should be rejected")
	}
	if _, _, ok := s.Canonical(16, 0, 4); ok {
		t.Error("Canonical(16, 0, 4) should be rejected")
	}
	if cx, cy, ok := s.Canonical(3, 7, 4); !ok || cx != 3 || cy != 7 {
		t.Errorf("Canonical(3, 7, 4) = (%d, %d, %v)", cx, cy, ok)
	}
}

func TestSwissGrid_TileOriginInverse(t *testing.T) {
	s := &SwissGrid{}
	for z := 0; z <= 12; z++ {
		n := TilesPerAxis(z)
		for _, x := range []int{0, n / 2, n - 1} {
			for _, y := range []int{0, n / 3, n - 1} {
				// Probe the tile centre to stay clear of float rounding at edges.
				o := s.TileOrigin(x, y, z)
				half := SwissExtent / float64(n) / 2
				gx, gy := s.TileIndex(PlanarPoint{X: o.X + half, Y: o.Y - half}, z)
				if gx != x || gy != y {
					t.Fatalf("z%d: TileIndex(centre of %d/%d) = (%d, %d)", z, x, y, gx, gy)
				}
			}
		}
	}
}
