package pmtiles

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"sort"
	"testing"
)

// Archive fixtures are assembled in memory. The package only reads
// archives, so the directory encoder lives here with the tests.

type fixtureTile struct {
	z, x, y int
	data    []byte
}

type fixtureOptions struct {
	leafSize        int // split into leaf directories of this many entries; 0 keeps a single root
	tileCompression uint8
	metadata        map[string]any
	runLengths      bool // merge consecutive tile IDs with identical data
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// serializeDirectory serializes entries into the gzip-compressed v3 layout.
func serializeDirectory(t *testing.T, entries []Entry) []byte {
	t.Helper()
	var raw bytes.Buffer
	buf := make([]byte, binary.MaxVarintLen64)
	put := func(v uint64) {
		n := binary.PutUvarint(buf, v)
		raw.Write(buf[:n])
	}

	put(uint64(len(entries)))

	var lastID uint64
	for _, e := range entries {
		put(e.TileID - lastID)
		lastID = e.TileID
	}
	for _, e := range entries {
		put(uint64(e.RunLength))
	}
	for _, e := range entries {
		put(uint64(e.Length))
	}
	for i, e := range entries {
		if i > 0 && e.Offset == entries[i-1].Offset+uint64(entries[i-1].Length) {
			// Offset is exactly contiguous with previous entry, encode as 0.
			put(0)
		} else {
			put(e.Offset + 1)
		}
	}

	return gzipBytes(t, raw.Bytes())
}

// buildArchive lays out header | root dir | metadata | leaf dirs | tile data.
func buildArchive(t *testing.T, tiles []fixtureTile, opts fixtureOptions) []byte {
	t.Helper()

	sort.Slice(tiles, func(i, j int) bool {
		return ZXYToTileID(tiles[i].z, tiles[i].x, tiles[i].y) < ZXYToTileID(tiles[j].z, tiles[j].x, tiles[j].y)
	})

	var tileData bytes.Buffer
	var entries []Entry
	var prev []byte
	minZoom, maxZoom := 255, 0
	for _, tl := range tiles {
		minZoom, maxZoom = min(minZoom, tl.z), max(maxZoom, tl.z)
		id := ZXYToTileID(tl.z, tl.x, tl.y)
		if opts.runLengths && len(entries) > 0 {
			last := &entries[len(entries)-1]
			if last.TileID+uint64(last.RunLength) == id && bytes.Equal(prev, tl.data) {
				last.RunLength++
				continue
			}
		}
		d := tl.data
		if opts.tileCompression == CompressionGzip {
			d = gzipBytes(t, d)
		}
		entries = append(entries, Entry{
			TileID:    id,
			Offset:    uint64(tileData.Len()),
			Length:    uint32(len(d)),
			RunLength: 1,
		})
		tileData.Write(d)
		prev = tl.data
	}

	var rootDir, leafDirs []byte
	if opts.leafSize > 0 && len(entries) > opts.leafSize {
		var leafBuf bytes.Buffer
		var rootEntries []Entry
		for i := 0; i < len(entries); i += opts.leafSize {
			chunk := entries[i:min(i+opts.leafSize, len(entries))]
			leaf := serializeDirectory(t, chunk)
			rootEntries = append(rootEntries, Entry{
				TileID: chunk[0].TileID,
				Offset: uint64(leafBuf.Len()),
				Length: uint32(len(leaf)),
			})
			leafBuf.Write(leaf)
		}
		rootDir = serializeDirectory(t, rootEntries)
		leafDirs = leafBuf.Bytes()
	} else {
		rootDir = serializeDirectory(t, entries)
	}

	var meta []byte
	if opts.metadata != nil {
		js, err := json.Marshal(opts.metadata)
		if err != nil {
			t.Fatalf("marshal metadata: %v", err)
		}
		meta = gzipBytes(t, js)
	}

	tileCompression := opts.tileCompression
	if tileCompression == CompressionUnknown {
		tileCompression = CompressionNone
	}

	h := Header{
		RootDirOffset:       HeaderSize,
		RootDirLength:       uint64(len(rootDir)),
		MetadataOffset:      HeaderSize + uint64(len(rootDir)),
		MetadataLength:      uint64(len(meta)),
		LeafDirOffset:       HeaderSize + uint64(len(rootDir)) + uint64(len(meta)),
		LeafDirLength:       uint64(len(leafDirs)),
		TileDataOffset:      HeaderSize + uint64(len(rootDir)) + uint64(len(meta)) + uint64(len(leafDirs)),
		TileDataLength:      uint64(tileData.Len()),
		NumAddressedTiles:   uint64(len(tiles)),
		NumTileEntries:      uint64(len(entries)),
		NumTileContents:     uint64(len(entries)),
		Clustered:           true,
		InternalCompression: CompressionGzip,
		TileCompression:     tileCompression,
		TileType:            2, // png
		MinZoom:             uint8(minZoom),
		MaxZoom:             uint8(maxZoom),
		MinLon:              5.95,
		MinLat:              45.82,
		MaxLon:              10.49,
		MaxLat:              47.81,
		CenterZoom:          uint8(maxZoom),
		CenterLon:           8.2,
		CenterLat:           46.8,
	}

	var out bytes.Buffer
	out.Write(h.Serialize())
	out.Write(rootDir)
	out.Write(meta)
	out.Write(leafDirs)
	out.Write(tileData.Bytes())
	return out.Bytes()
}
