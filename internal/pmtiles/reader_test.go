package pmtiles

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func tileBytes(z, x, y int) []byte {
	return []byte(fmt.Sprintf("tile %d/%d/%d", z, x, y))
}

// pyramid returns every tile of zooms 0..maxZoom.
func pyramid(maxZoom int) []fixtureTile {
	var tiles []fixtureTile
	for z := 0; z <= maxZoom; z++ {
		n := 1 << uint(z)
		for x := 0; x < n; x++ {
			for y := 0; y < n; y++ {
				tiles = append(tiles, fixtureTile{z, x, y, tileBytes(z, x, y)})
			}
		}
	}
	return tiles
}

func TestReader_ReadTile(t *testing.T) {
	tests := []struct {
		name string
		opts fixtureOptions
	}{
		{"root only", fixtureOptions{}},
		{"leaf directories", fixtureOptions{leafSize: 7}},
		{"gzip tiles", fixtureOptions{tileCompression: CompressionGzip}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive := buildArchive(t, pyramid(3), tt.opts)
			r, err := NewReader(bytes.NewReader(archive))
			if err != nil {
				t.Fatalf("NewReader: %v", err)
			}
			defer r.Close()

			if got, want := r.NumTiles(), 1+4+16+64; got != want {
				t.Errorf("NumTiles() = %d, want %d", got, want)
			}

			for _, k := range [][3]int{{0, 0, 0}, {1, 1, 0}, {2, 3, 1}, {3, 5, 7}} {
				data, err := r.ReadTile(k[0], k[1], k[2])
				if err != nil {
					t.Fatalf("ReadTile(%v): %v", k, err)
				}
				if want := tileBytes(k[0], k[1], k[2]); !bytes.Equal(data, want) {
					t.Errorf("ReadTile(%v) = %q, want %q", k, data, want)
				}
			}

			data, err := r.ReadTile(4, 0, 0)
			if err != nil || data != nil {
				t.Errorf("ReadTile(missing) = %q, %v; want nil, nil", data, err)
			}
		})
	}
}

func TestReader_RunLength(t *testing.T) {
	// Four tiles at z1 with the same content share one entry.
	same := []byte("ocean")
	var tiles []fixtureTile
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			tiles = append(tiles, fixtureTile{1, x, y, same})
		}
	}
	archive := buildArchive(t, tiles, fixtureOptions{runLengths: true})

	r, err := NewReader(bytes.NewReader(archive))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if h := r.Header(); h.NumTileEntries != 1 {
		t.Fatalf("fixture has %d entries, want 1", h.NumTileEntries)
	}
	if r.NumTiles() != 4 {
		t.Errorf("NumTiles() = %d, want 4", r.NumTiles())
	}
	for _, tl := range tiles {
		data, err := r.ReadTile(tl.z, tl.x, tl.y)
		if err != nil || !bytes.Equal(data, same) {
			t.Errorf("ReadTile(%d/%d/%d) = %q, %v", tl.z, tl.x, tl.y, data, err)
		}
	}
}

func TestReader_TilesAtZoom(t *testing.T) {
	tiles := []fixtureTile{
		{0, 0, 0, []byte("a")},
		{2, 1, 1, []byte("b")},
		{2, 3, 0, []byte("c")},
		{3, 0, 0, []byte("d")},
	}
	r, err := NewReader(bytes.NewReader(buildArchive(t, tiles, fixtureOptions{})))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	got := r.TilesAtZoom(2)
	if len(got) != 2 {
		t.Fatalf("TilesAtZoom(2) = %v, want 2 tiles", got)
	}
	seen := map[[3]int]bool{}
	for _, k := range got {
		seen[k] = true
	}
	if !seen[[3]int{2, 1, 1}] || !seen[[3]int{2, 3, 0}] {
		t.Errorf("TilesAtZoom(2) = %v", got)
	}
	if n := len(r.TilesAtZoom(1)); n != 0 {
		t.Errorf("TilesAtZoom(1) returned %d tiles", n)
	}
}

func TestReader_Metadata(t *testing.T) {
	archive := buildArchive(t, pyramid(1), fixtureOptions{
		metadata: map[string]any{"name": "swissimage", "attribution": "swisstopo"},
	})
	r, err := NewReader(bytes.NewReader(archive))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	meta, err := r.ReadMetadata()
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if meta["name"] != "swissimage" || meta["attribution"] != "swisstopo" {
		t.Errorf("metadata = %v", meta)
	}

	// No metadata section.
	r, err = NewReader(bytes.NewReader(buildArchive(t, pyramid(0), fixtureOptions{})))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if meta, err := r.ReadMetadata(); err != nil || meta != nil {
		t.Errorf("ReadMetadata() = %v, %v; want nil, nil", meta, err)
	}
}

func TestReader_Invalid(t *testing.T) {
	if _, err := NewReader(bytes.NewReader([]byte("short"))); err == nil {
		t.Error("expected error for truncated archive")
	}

	archive := buildArchive(t, pyramid(1), fixtureOptions{})
	copy(archive, "NOTPMTs")
	if _, err := NewReader(bytes.NewReader(archive)); !errors.Is(err, ErrInvalidHeader) {
		t.Errorf("error = %v, want ErrInvalidHeader", err)
	}
}

func TestOpenReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.pmtiles")
	if err := os.WriteFile(path, buildArchive(t, pyramid(2), fixtureOptions{}), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	data, err := r.ReadTile(2, 2, 3)
	if err != nil || !bytes.Equal(data, tileBytes(2, 2, 3)) {
		t.Errorf("ReadTile(2/2/3) = %q, %v", data, err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	if _, err := OpenReader(filepath.Join(t.TempDir(), "missing.pmtiles")); err == nil {
		t.Error("expected error for missing file")
	}
}
