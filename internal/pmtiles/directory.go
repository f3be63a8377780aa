package pmtiles

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/pspoerri/tileview/internal/coord"
)

// ErrUnsupportedCompression is returned for brotli, zstd and unknown
// compression modes.
var ErrUnsupportedCompression = errors.New("unsupported compression")

// Entry represents a single entry in the PMTiles directory.
type Entry struct {
	TileID    uint64
	Offset    uint64
	Length    uint32
	RunLength uint32 // 0 marks a pointer to a leaf directory
}

// zoomStart returns the first tile ID of zoom z: the number of tiles on all
// lower levels.
func zoomStart(z int) uint64 {
	var acc uint64
	for i := 0; i < z; i++ {
		n := uint64(1) << uint(i)
		acc += n * n
	}
	return acc
}

// ZXYToTileID converts z/x/y coordinates to a PMTiles v3 tile ID using Hilbert curve ordering.
func ZXYToTileID(z, x, y int) uint64 {
	if z == 0 {
		return 0
	}
	return zoomStart(z) + coord.HilbertIndex(x, y, z)
}

// TileIDToZXY converts a PMTiles v3 tile ID back to z/x/y coordinates.
func TileIDToZXY(tileID uint64) (z, x, y int) {
	if tileID == 0 {
		return 0, 0, 0
	}

	// Find the zoom level: tile IDs for zoom z start at sum of 4^i for i in [0, z-1].
	var acc uint64
	for {
		n := uint64(1) << uint(z)
		count := n * n // 4^z tiles at this zoom
		if acc+count > tileID {
			break
		}
		acc += count
		z++
	}

	n := uint64(1) << uint(z)
	hx, hy := hilbertToXY(tileID-acc, n)
	return z, int(hx), int(hy)
}

// hilbertToXY converts a Hilbert curve index to (x, y) for an n x n grid.
func hilbertToXY(d, n uint64) (x, y uint64) {
	var rx, ry uint64
	s := uint64(1)
	for s < n {
		rx = 1 & (d / 2)
		ry = 1 & (d ^ rx)
		if ry == 0 {
			if rx == 1 {
				x = s - 1 - x
				y = s - 1 - y
			}
			x, y = y, x
		}
		x += s * rx
		y += s * ry
		d /= 4
		s *= 2
	}
	return x, y
}

// decompress undoes the archive's internal or tile compression.
func decompress(data []byte, compression uint8) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gr.Close()
		return io.ReadAll(gr)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCompression, compression)
	}
}

// DeserializeDirectory decompresses and parses a PMTiles v3 directory.
func DeserializeDirectory(data []byte, compression uint8) ([]Entry, error) {
	raw, err := decompress(data, compression)
	if err != nil {
		return nil, fmt.Errorf("decompressing directory: %w", err)
	}

	r := bytes.NewReader(raw)

	numEntries, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("reading entry count: %w", err)
	}
	// Each entry takes at least one byte in each of the four columns.
	if numEntries > uint64(len(raw))/4 {
		return nil, fmt.Errorf("entry count %d exceeds directory size %d", numEntries, len(raw))
	}

	entries := make([]Entry, numEntries)

	// Read tile IDs (delta-encoded).
	var lastID uint64
	for i := uint64(0); i < numEntries; i++ {
		delta, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("reading tile ID delta %d: %w", i, err)
		}
		lastID += delta
		entries[i].TileID = lastID
	}

	// Read run lengths.
	for i := uint64(0); i < numEntries; i++ {
		rl, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("reading run length %d: %w", i, err)
		}
		entries[i].RunLength = uint32(rl)
	}

	// Read lengths.
	for i := uint64(0); i < numEntries; i++ {
		length, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("reading length %d: %w", i, err)
		}
		entries[i].Length = uint32(length)
	}

	// Read offsets (special encoding: 0 means contiguous with previous).
	var lastOffset uint64
	for i := uint64(0); i < numEntries; i++ {
		val, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("reading offset %d: %w", i, err)
		}
		if val == 0 && i > 0 {
			entries[i].Offset = lastOffset + uint64(entries[i-1].Length)
		} else {
			entries[i].Offset = val - 1
		}
		lastOffset = entries[i].Offset
	}

	return entries, nil
}
