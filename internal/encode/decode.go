package encode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gen2brain/webp"
)

// MaxPixels bounds the declared size of a decoded tile. Map tiles are 256
// or 512 pixels a side; 4096x4096 leaves room for high-DPI sources.
const MaxPixels = 4096 * 4096

var (
	// ErrUnknownFormat is returned when tile bytes are not a supported image.
	ErrUnknownFormat = errors.New("unknown image format")
	// ErrTooLarge is returned for images declaring more than MaxPixels.
	ErrTooLarge = errors.New("image too large")
)

// DecodeConfig reads the dimensions of image bytes in the specified format
// without decoding the pixels.
func DecodeConfig(data []byte, format string) (image.Config, error) {
	r := bytes.NewReader(data)
	switch format {
	case "png":
		return png.DecodeConfig(r)
	case "jpeg", "jpg":
		return jpeg.DecodeConfig(r)
	case "webp":
		return webp.DecodeConfig(r)
	default:
		return image.Config{}, fmt.Errorf("unsupported decode format: %q", format)
	}
}

// DecodeImage decodes image bytes in the specified format.
// Supported formats: "png", "jpeg"/"jpg", "webp".
func DecodeImage(data []byte, format string) (image.Image, error) {
	r := bytes.NewReader(data)
	switch format {
	case "png":
		return png.Decode(r)
	case "jpeg", "jpg":
		return jpeg.Decode(r)
	case "webp":
		return webp.Decode(r)
	default:
		return nil, fmt.Errorf("unsupported decode format: %q", format)
	}
}

// Detect sniffs the image format of data from its magic bytes.
func Detect(data []byte) (string, error) {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is("image/png"):
		return "png", nil
	case mt.Is("image/jpeg"):
		return "jpeg", nil
	case mt.Is("image/webp"):
		return "webp", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, mt.String())
	}
}

// Decode sniffs and decodes tile bytes. Images declaring more than
// MaxPixels are rejected before any pixel buffer is allocated.
func Decode(data []byte) (image.Image, error) {
	format, err := Detect(data)
	if err != nil {
		return nil, err
	}
	cfg, err := DecodeConfig(data, format)
	if err != nil {
		return nil, fmt.Errorf("decode %s header: %w", format, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("decode %s: empty image %dx%d", format, cfg.Width, cfg.Height)
	}
	if cfg.Width > MaxPixels/cfg.Height {
		return nil, fmt.Errorf("%w: %s %dx%d", ErrTooLarge, format, cfg.Width, cfg.Height)
	}
	img, err := DecodeImage(data, format)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	return img, nil
}

// Allocator hands out zeroed RGBA buffers, typically from a pool.
type Allocator interface {
	Get(w, h int) *image.RGBA
}

// ToRGBA converts img to an *image.RGBA anchored at (0,0), drawing into a
// buffer from alloc. Images that already have that shape are returned as is.
func ToRGBA(img image.Image, alloc Allocator) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := alloc.Get(b.Dx(), b.Dy())
	draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
	return dst
}
