package encode

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/gen2brain/webp"
)

// TileType constants matching PMTiles v3 spec.
const (
	TileTypeUnknown = 0
	TileTypeMVT     = 1
	TileTypePNG     = 2
	TileTypeJPEG    = 3
	TileTypeWebP    = 4
	TileTypeAVIF    = 5
)

// FormatForTileType maps a PMTiles tile type to a decode format name, or ""
// for types that are not raster images this package can decode.
func FormatForTileType(t uint8) string {
	switch t {
	case TileTypePNG:
		return "png"
	case TileTypeJPEG:
		return "jpeg"
	case TileTypeWebP:
		return "webp"
	default:
		return ""
	}
}

// Encoder re-encodes a decoded tile for serving.
type Encoder interface {
	// Encode encodes an image to bytes in the tile format.
	Encode(img image.Image) ([]byte, error)

	// Format returns the format name (e.g. "jpeg", "png", "webp").
	Format() string

	// ContentType returns the MIME type of the encoded bytes.
	ContentType() string
}

// NewEncoder creates an encoder for the given format and quality.
func NewEncoder(format string, quality int) (Encoder, error) {
	if quality <= 0 {
		quality = 85
	}
	switch format {
	case "", "png":
		return &PNGEncoder{}, nil
	case "jpeg", "jpg":
		return &JPEGEncoder{Quality: quality}, nil
	case "webp":
		return &WebPEncoder{Quality: quality}, nil
	default:
		return nil, fmt.Errorf("unsupported tile format: %q (supported: png, jpeg, webp)", format)
	}
}

// PNGEncoder encodes tiles as PNG.
type PNGEncoder struct{}

func (e *PNGEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := &png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *PNGEncoder) Format() string      { return "png" }
func (e *PNGEncoder) ContentType() string { return "image/png" }

// JPEGEncoder encodes tiles as JPEG.
type JPEGEncoder struct {
	Quality int // 1-100, default 85
}

func (e *JPEGEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.Quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *JPEGEncoder) Format() string      { return "jpeg" }
func (e *JPEGEncoder) ContentType() string { return "image/jpeg" }

// WebPEncoder encodes tiles as WebP using a pure-Go (WASM-based) encoder.
// Uses a system libwebp via purego if available, otherwise falls back to WASM.
type WebPEncoder struct {
	Quality int
}

func (e *WebPEncoder) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, webp.Options{Quality: e.Quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *WebPEncoder) Format() string      { return "webp" }
func (e *WebPEncoder) ContentType() string { return "image/webp" }
