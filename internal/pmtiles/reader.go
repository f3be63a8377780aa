package pmtiles

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// maxDirectoryDepth bounds leaf directory nesting. PMTiles writers use one
// level in practice; the format allows a few more.
const maxDirectoryDepth = 4

// Reader provides read access to an existing PMTiles v3 archive.
// It is safe for concurrent use once constructed.
type Reader struct {
	src     io.ReaderAt
	closer  io.Closer
	header  Header
	entries []Entry            // all tile entries (expanded from run lengths)
	tileIdx map[uint64]tileRef // tileID -> location in archive
}

// tileRef records the absolute offset and length of a tile's data.
type tileRef struct {
	offset uint64
	length uint32
}

// OpenReader opens a PMTiles v3 archive on disk for reading.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

// NewReader reads the header and all directories of the archive in src.
func NewReader(src io.ReaderAt) (*Reader, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := src.ReadAt(headerBuf, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	header, err := DeserializeHeader(headerBuf)
	if err != nil {
		return nil, err
	}

	r := &Reader{src: src, header: header}

	rootEntries, err := r.readDirectory(header.RootDirOffset, header.RootDirLength)
	if err != nil {
		return nil, fmt.Errorf("root directory: %w", err)
	}

	var tileEntries []Entry
	if err := r.collect(rootEntries, 0, &tileEntries); err != nil {
		return nil, err
	}

	// Expand run-length entries and build index.
	r.tileIdx = make(map[uint64]tileRef, len(tileEntries)*2)
	for _, e := range tileEntries {
		for i := uint32(0); i < e.RunLength; i++ {
			tileID := e.TileID + uint64(i)
			ref := tileRef{
				offset: header.TileDataOffset + e.Offset,
				length: e.Length,
			}
			r.tileIdx[tileID] = ref
			r.entries = append(r.entries, Entry{
				TileID:    tileID,
				Offset:    ref.offset,
				Length:    ref.length,
				RunLength: 1,
			})
		}
	}

	sort.Slice(r.entries, func(i, j int) bool {
		return r.entries[i].TileID < r.entries[j].TileID
	})
	return r, nil
}

// collect appends the tile entries under dir to out, following leaf
// directory pointers.
func (r *Reader) collect(dir []Entry, depth int, out *[]Entry) error {
	for _, e := range dir {
		if e.RunLength > 0 {
			*out = append(*out, e)
			continue
		}
		if depth >= maxDirectoryDepth {
			return fmt.Errorf("leaf directories nested deeper than %d", maxDirectoryDepth)
		}
		// Leaf directory pointer: offset/length are relative to leaf dir section.
		leaf, err := r.readDirectory(r.header.LeafDirOffset+e.Offset, uint64(e.Length))
		if err != nil {
			return fmt.Errorf("leaf directory at offset %d: %w", e.Offset, err)
		}
		if err := r.collect(leaf, depth+1, out); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) readDirectory(offset, length uint64) ([]Entry, error) {
	data := make([]byte, length)
	if _, err := r.src.ReadAt(data, int64(offset)); err != nil {
		return nil, fmt.Errorf("reading %d bytes at %d: %w", length, offset, err)
	}
	return DeserializeDirectory(data, r.header.InternalCompression)
}

// Header returns the parsed PMTiles header.
func (r *Reader) Header() Header {
	return r.header
}

// ReadTile returns the decompressed bytes for a tile at z/x/y.
// Returns nil, nil if the tile does not exist.
func (r *Reader) ReadTile(z, x, y int) ([]byte, error) {
	ref, ok := r.tileIdx[ZXYToTileID(z, x, y)]
	if !ok {
		return nil, nil
	}

	data := make([]byte, ref.length)
	if _, err := r.src.ReadAt(data, int64(ref.offset)); err != nil {
		return nil, fmt.Errorf("reading tile z%d/%d/%d: %w", z, x, y, err)
	}
	data, err := decompress(data, r.header.TileCompression)
	if err != nil {
		return nil, fmt.Errorf("tile z%d/%d/%d: %w", z, x, y, err)
	}
	return data, nil
}

// TilesAtZoom returns all [z, x, y] coordinates that have tiles at the given zoom level.
func (r *Reader) TilesAtZoom(z int) [][3]int {
	minID := zoomStart(z)
	n := uint64(1) << uint(z)
	maxID := minID + n*n // exclusive

	// Binary search for the first entry >= minID.
	start := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].TileID >= minID
	})

	var tiles [][3]int
	for i := start; i < len(r.entries); i++ {
		e := r.entries[i]
		if e.TileID >= maxID {
			break
		}
		_, x, y := TileIDToZXY(e.TileID)
		tiles = append(tiles, [3]int{z, x, y})
	}
	return tiles
}

// NumTiles returns the total number of addressed tiles in the archive.
func (r *Reader) NumTiles() int {
	return len(r.entries)
}

// ReadMetadata reads and decompresses the JSON metadata from the archive.
// Returns nil if the archive has no metadata.
func (r *Reader) ReadMetadata() (map[string]any, error) {
	if r.header.MetadataLength == 0 {
		return nil, nil
	}

	metaRaw := make([]byte, r.header.MetadataLength)
	if _, err := r.src.ReadAt(metaRaw, int64(r.header.MetadataOffset)); err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}

	jsonData, err := decompress(metaRaw, r.header.InternalCompression)
	if err != nil {
		return nil, fmt.Errorf("decompressing metadata: %w", err)
	}

	var meta map[string]any
	if err := json.Unmarshal(jsonData, &meta); err != nil {
		return nil, fmt.Errorf("parsing metadata JSON: %w", err)
	}

	return meta, nil
}

// Close closes the underlying file when the reader was opened from a path.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
