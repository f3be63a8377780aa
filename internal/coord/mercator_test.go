package coord

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

func TestWebMercator_TileIndex(t *testing.T) {
	tests := []struct {
		name     string
		lon, lat float64
		zoom     int
		wantX    int
		wantY    int
	}{
		{"origin z0", 0, 0, 0, 0, 0},
		{"london z10", -0.1278, 51.5074, 10, 511, 340},
		{"zurich z10", 8.5417, 47.3769, 10, 536, 358},
		{"nyc z10", -74.0060, 40.7128, 10, 301, 385},
		{"tokyo z10", 139.6917, 35.6895, 10, 909, 403},
		{"south pole clamped", 0, -89.9, 1, 1, 1},
		{"north pole clamped", 0, 89.9, 1, 1, 0},
	}

	wm := &WebMercator{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := wm.TileIndex(wm.ToPlanar(GeoPoint{Lat: tt.lat, Lon: tt.lon}), tt.zoom)
			if x != tt.wantX || y != tt.wantY {
				t.Errorf("TileIndex(%.4f, %.4f, %d) = (%d, %d), want (%d, %d)",
					tt.lon, tt.lat, tt.zoom, x, y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestWebMercator_AgreesWithMaptile(t *testing.T) {
	wm := &WebMercator{}
	points := []orb.Point{
		{-0.1278, 51.5074},
		{8.5417, 47.3769},
		{-74.0060, 40.7128},
		{151.2093, -33.8688},
	}
	for _, pt := range points {
		for z := 1; z <= 18; z += 3 {
			want := maptile.At(pt, maptile.Zoom(z))
			x, y := wm.TileIndex(wm.ToPlanar(GeoPoint{Lat: pt.Lat(), Lon: pt.Lon()}), z)
			if uint32(x) != want.X || uint32(y) != want.Y {
				t.Errorf("z%d %v: TileIndex = (%d, %d), maptile.At = (%d, %d)", z, pt, x, y, want.X, want.Y)
			}
		}
	}
}

func TestWebMercator_TileOriginInverse(t *testing.T) {
	wm := &WebMercator{}
	for z := 0; z <= 22; z++ {
		n := TilesPerAxis(z)
		for _, x := range []int{0, n / 3, n / 2, n - 1} {
			for _, y := range []int{0, n / 5, n - 1} {
				origin := wm.TileOrigin(x, y, z)
				gx, gy := wm.TileIndex(origin, z)
				if gx != x || gy != y {
					t.Fatalf("z%d: TileIndex(TileOrigin(%d, %d)) = (%d, %d)", z, x, y, gx, gy)
				}
				fx, fy := wm.TileCoord(origin, z)
				if fx != float64(x) || fy != float64(y) {
					t.Fatalf("z%d: TileCoord(TileOrigin(%d, %d)) = (%v, %v), want exact", z, x, y, fx, fy)
				}
			}
		}
	}
}

func TestWebMercator_KnownValues(t *testing.T) {
	wm := &WebMercator{}

	// (0, 0) in WGS84 is the centre of the planar square.
	p := wm.ToPlanar(GeoPoint{})
	if math.Abs(p.X-MapWidth/2) > 1e-9 || math.Abs(p.Y-MapWidth/2) > 1e-9 {
		t.Errorf("ToPlanar(0, 0) = %+v, want (128, 128)", p)
	}

	// lon=-180 should map to the western edge.
	p = wm.ToPlanar(GeoPoint{Lat: 0, Lon: -180})
	if math.Abs(p.X) > 1e-9 {
		t.Errorf("ToPlanar(lon=-180).X = %v, want 0", p.X)
	}

	// The north-west corner of the planar square is (-180, ~85.05).
	g := wm.ToGeo(PlanarPoint{})
	if math.Abs(g.Lon+180) > 1e-9 {
		t.Errorf("ToGeo(0, 0).Lon = %v, want -180", g.Lon)
	}
	if g.Lat < 85.0 || g.Lat > 85.1 {
		t.Errorf("ToGeo(0, 0).Lat = %v, want ~85.05", g.Lat)
	}
}

func TestWebMercator_Canonical(t *testing.T) {
	wm := &WebMercator{}
	tests := []struct {
		x, y, zoom int
		wantX      int
		wantOK     bool
	}{
		{-1, 0, 3, 7, true},
		{8, 2, 3, 0, true},
		{3, 3, 3, 3, true},
		{0, -1, 3, 0, false},
		{0, 8, 3, 0, false},
	}
	for _, tt := range tests {
		x, y, ok := wm.Canonical(tt.x, tt.y, tt.zoom)
		if ok != tt.wantOK {
			t.Errorf("Canonical(%d, %d, %d) ok = %v, want %v", tt.x, tt.y, tt.zoom, ok, tt.wantOK)
			continue
		}
		if ok && (x != tt.wantX || y != tt.y) {
			t.Errorf("Canonical(%d, %d, %d) = (%d, %d), want (%d, %d)", tt.x, tt.y, tt.zoom, x, y, tt.wantX, tt.y)
		}
	}
}

func TestWebMercator_Resolution(t *testing.T) {
	wm := &WebMercator{}
	if got := wm.Resolution(0); got != 1 {
		t.Errorf("Resolution(0) = %v, want 1", got)
	}
	if got := wm.Resolution(3); got != 0.125 {
		t.Errorf("Resolution(3) = %v, want 0.125", got)
	}
}

func TestKeyBound(t *testing.T) {
	// The tile at z=0, x=0, y=0 should cover the entire world.
	b := KeyBound(0, 0, 0)

	if math.Abs(b.Min.Lon()-(-180)) > 1e-6 {
		t.Errorf("z0 minLon = %v, want -180", b.Min.Lon())
	}
	if math.Abs(b.Max.Lon()-180) > 1e-6 {
		t.Errorf("z0 maxLon = %v, want 180", b.Max.Lon())
	}
	// Web Mercator latitude range: ~-85.05 to ~85.05
	if b.Min.Lat() < -85.1 || b.Min.Lat() > -85.0 {
		t.Errorf("z0 minLat = %v, want ~-85.05", b.Min.Lat())
	}
	if b.Max.Lat() < 85.0 || b.Max.Lat() > 85.1 {
		t.Errorf("z0 maxLat = %v, want ~85.05", b.Max.Lat())
	}

	// Adjacent tiles at z=2 should share edges.
	left, right := KeyBound(0, 0, 2), KeyBound(1, 0, 2)
	if math.Abs(left.Max.Lon()-right.Min.Lon()) > 1e-10 {
		t.Errorf("adjacent tile edge mismatch: %v vs %v", left.Max.Lon(), right.Min.Lon())
	}
}

func TestGroundResolution(t *testing.T) {
	// At the equator, zoom 0, each pixel covers ~156543 meters.
	res0 := GroundResolution(0, 0)
	expected0 := EarthCircumference / 256
	if math.Abs(res0-expected0)/expected0 > 1e-6 {
		t.Errorf("GroundResolution(0, 0) = %v, want ~%v", res0, expected0)
	}

	// Each zoom level halves the resolution.
	res1 := GroundResolution(0, 1)
	if math.Abs(res1-res0/2)/res0 > 1e-6 {
		t.Errorf("GroundResolution(0, 1) = %v, want ~%v", res1, res0/2)
	}

	// Resolution at 60° latitude should be cos(60°) ≈ 0.5 of equatorial.
	res60 := GroundResolution(60, 0)
	if math.Abs(res60-res0*0.5)/res0 > 1e-6 {
		t.Errorf("GroundResolution(60, 0) = %v, want ~%v", res60, res0*0.5)
	}
}
