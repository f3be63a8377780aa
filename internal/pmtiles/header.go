package pmtiles

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// PMTiles v3 constants.
const (
	HeaderSize = 127

	// Internal compression for directories.
	CompressionUnknown = 0
	CompressionNone    = 1
	CompressionGzip    = 2
	CompressionBrotli  = 3
	CompressionZstd    = 4
)

// ErrInvalidHeader is returned for data that is not a PMTiles v3 header.
var ErrInvalidHeader = errors.New("invalid pmtiles header")

// Header represents the PMTiles v3 header (127 bytes).
type Header struct {
	RootDirOffset       uint64
	RootDirLength       uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	LeafDirOffset       uint64
	LeafDirLength       uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	NumAddressedTiles   uint64
	NumTileEntries      uint64
	NumTileContents     uint64
	Clustered           bool
	InternalCompression uint8
	TileCompression     uint8
	TileType            uint8
	MinZoom             uint8
	MaxZoom             uint8
	MinLon              float32
	MinLat              float32
	MaxLon              float32
	MaxLat              float32
	CenterZoom          uint8
	CenterLon           float32
	CenterLat           float32
}

// Bound returns the geographic extent declared by the archive.
func (h Header) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{float64(h.MinLon), float64(h.MinLat)},
		Max: orb.Point{float64(h.MaxLon), float64(h.MaxLat)},
	}
}

// Center returns the declared center point.
func (h Header) Center() orb.Point {
	return orb.Point{float64(h.CenterLon), float64(h.CenterLat)}
}

// Serialize writes the 127-byte header.
func (h *Header) Serialize() []byte {
	buf := make([]byte, HeaderSize)

	// Magic number: "PMTiles" + version 3
	copy(buf[0:7], "PMTiles")
	buf[7] = 3

	binary.LittleEndian.PutUint64(buf[8:16], h.RootDirOffset)
	binary.LittleEndian.PutUint64(buf[16:24], h.RootDirLength)
	binary.LittleEndian.PutUint64(buf[24:32], h.MetadataOffset)
	binary.LittleEndian.PutUint64(buf[32:40], h.MetadataLength)
	binary.LittleEndian.PutUint64(buf[40:48], h.LeafDirOffset)
	binary.LittleEndian.PutUint64(buf[48:56], h.LeafDirLength)
	binary.LittleEndian.PutUint64(buf[56:64], h.TileDataOffset)
	binary.LittleEndian.PutUint64(buf[64:72], h.TileDataLength)
	binary.LittleEndian.PutUint64(buf[72:80], h.NumAddressedTiles)
	binary.LittleEndian.PutUint64(buf[80:88], h.NumTileEntries)
	binary.LittleEndian.PutUint64(buf[88:96], h.NumTileContents)

	if h.Clustered {
		buf[96] = 1
	}
	buf[97] = h.InternalCompression
	buf[98] = h.TileCompression
	buf[99] = h.TileType
	buf[100] = h.MinZoom
	buf[101] = h.MaxZoom

	// Bounds as E7 (int32 * 1e7) encoded in little-endian
	binary.LittleEndian.PutUint32(buf[102:106], lonLatToE7(h.MinLon))
	binary.LittleEndian.PutUint32(buf[106:110], lonLatToE7(h.MinLat))
	binary.LittleEndian.PutUint32(buf[110:114], lonLatToE7(h.MaxLon))
	binary.LittleEndian.PutUint32(buf[114:118], lonLatToE7(h.MaxLat))

	buf[118] = h.CenterZoom
	binary.LittleEndian.PutUint32(buf[119:123], lonLatToE7(h.CenterLon))
	binary.LittleEndian.PutUint32(buf[123:127], lonLatToE7(h.CenterLat))

	return buf
}

// DeserializeHeader parses the 127-byte header at the start of an archive.
func DeserializeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidHeader, len(buf), HeaderSize)
	}
	if string(buf[0:7]) != "PMTiles" {
		return Header{}, fmt.Errorf("%w: bad magic %q", ErrInvalidHeader, buf[0:7])
	}
	if buf[7] != 3 {
		return Header{}, fmt.Errorf("%w: version %d, only 3 is supported", ErrInvalidHeader, buf[7])
	}

	u64 := func(off int) uint64 { return binary.LittleEndian.Uint64(buf[off : off+8]) }
	e7 := func(off int) float32 { return e7ToLonLat(binary.LittleEndian.Uint32(buf[off : off+4])) }

	return Header{
		RootDirOffset:       u64(8),
		RootDirLength:       u64(16),
		MetadataOffset:      u64(24),
		MetadataLength:      u64(32),
		LeafDirOffset:       u64(40),
		LeafDirLength:       u64(48),
		TileDataOffset:      u64(56),
		TileDataLength:      u64(64),
		NumAddressedTiles:   u64(72),
		NumTileEntries:      u64(80),
		NumTileContents:     u64(88),
		Clustered:           buf[96] == 1,
		InternalCompression: buf[97],
		TileCompression:     buf[98],
		TileType:            buf[99],
		MinZoom:             buf[100],
		MaxZoom:             buf[101],
		MinLon:              e7(102),
		MinLat:              e7(106),
		MaxLon:              e7(110),
		MaxLat:              e7(114),
		CenterZoom:          buf[118],
		CenterLon:           e7(119),
		CenterLat:           e7(123),
	}, nil
}

func lonLatToE7(v float32) uint32 {
	return uint32(int32(math.Round(float64(v) * 1e7)))
}

func e7ToLonLat(v uint32) float32 {
	return float32(float64(int32(v)) / 1e7)
}
