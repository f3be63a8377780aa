package fetch

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pspoerri/tileview/internal/pmtiles"
	"github.com/pspoerri/tileview/internal/tile"
)

// singleTileArchive returns an uncompressed PMTiles archive holding data
// at key.
func singleTileArchive(t *testing.T, key tile.Key, data []byte) []byte {
	t.Helper()
	var dir []byte
	dir = binary.AppendUvarint(dir, 1)
	dir = binary.AppendUvarint(dir, pmtiles.ZXYToTileID(key.Zoom, key.X, key.Y))
	dir = binary.AppendUvarint(dir, 1)
	dir = binary.AppendUvarint(dir, uint64(len(data)))
	dir = binary.AppendUvarint(dir, 1) // offset 0, stored as offset+1

	h := pmtiles.Header{
		RootDirOffset:       pmtiles.HeaderSize,
		RootDirLength:       uint64(len(dir)),
		MetadataOffset:      pmtiles.HeaderSize + uint64(len(dir)),
		LeafDirOffset:       pmtiles.HeaderSize + uint64(len(dir)),
		TileDataOffset:      pmtiles.HeaderSize + uint64(len(dir)),
		TileDataLength:      uint64(len(data)),
		NumAddressedTiles:   1,
		NumTileEntries:      1,
		NumTileContents:     1,
		Clustered:           true,
		InternalCompression: pmtiles.CompressionNone,
		TileCompression:     pmtiles.CompressionNone,
		MinZoom:             uint8(key.Zoom),
		MaxZoom:             uint8(key.Zoom),
	}
	var buf bytes.Buffer
	buf.Write(h.Serialize())
	buf.Write(dir)
	buf.Write(data)
	return buf.Bytes()
}

func TestArchiveFetcher(t *testing.T) {
	key := tile.Key{X: 5, Y: 9, Zoom: 4}
	archive := singleTileArchive(t, key, []byte("tile-data"))
	r, err := pmtiles.NewReader(bytes.NewReader(archive))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	a := NewArchiveFetcher(r)

	if a.NumTiles() != 1 || a.TilesAtZoom(4) != 1 || a.TilesAtZoom(3) != 0 {
		t.Errorf("coverage = %d total, %d at z4, %d at z3", a.NumTiles(), a.TilesAtZoom(4), a.TilesAtZoom(3))
	}
	if meta, err := a.Metadata(); err != nil || meta != nil {
		t.Errorf("Metadata() = %v, %v; want nil, nil", meta, err)
	}

	data, err := a.Fetch(context.Background(), key)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != "tile-data" {
		t.Errorf("data = %q", data)
	}

	_, err = a.Fetch(context.Background(), tile.Key{X: 6, Y: 9, Zoom: 4})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing tile error = %v, want ErrNotFound", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Fetch(ctx, key); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Fetch error = %v", err)
	}
}

func TestOpenArchive(t *testing.T) {
	key := tile.Key{X: 1, Y: 0, Zoom: 1}
	path := filepath.Join(t.TempDir(), "tiles.pmtiles")
	if err := os.WriteFile(path, singleTileArchive(t, key, []byte("x")), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := OpenArchive(path)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	defer a.Close()
	if a.Header().MaxZoom != 1 {
		t.Errorf("MaxZoom = %d, want 1", a.Header().MaxZoom)
	}
	if _, err := a.Fetch(context.Background(), key); err != nil {
		t.Errorf("Fetch: %v", err)
	}

	if _, err := OpenArchive(filepath.Join(t.TempDir(), "missing.pmtiles")); err == nil {
		t.Error("OpenArchive of a missing file succeeded")
	}
}
