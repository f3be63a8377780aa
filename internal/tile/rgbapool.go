package tile

import (
	"image"
	"sync"
)

// rgbaPoolKey identifies a pool by image dimensions.
type rgbaPoolKey struct {
	w, h int
}

// ImagePool recycles decoded tile images. It maps (width, height) to a
// *sync.Pool of *image.RGBA; in practice a map only ever shows one tile
// size, so the sync.Map stays tiny. The zero value is ready to use.
//
// ImagePool implements Disposer, so evicted tiles hand their image back.
type ImagePool struct {
	pools sync.Map
}

// DefaultPool is shared by the decoder and the cache unless configured
// otherwise.
var DefaultPool = &ImagePool{}

// Get returns a zeroed *image.RGBA from the pool, or allocates a new one.
// The returned image has Rect (0,0)-(w,h) with all pixels set to zero.
func (p *ImagePool) Get(w, h int) *image.RGBA {
	key := rgbaPoolKey{w, h}
	if sp, ok := p.pools.Load(key); ok {
		if v := sp.(*sync.Pool).Get(); v != nil {
			img := v.(*image.RGBA)
			clear(img.Pix)
			return img
		}
	}
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

// Put returns an *image.RGBA to the pool for reuse.
// Nil images and sub-images are silently ignored.
func (p *ImagePool) Put(img *image.RGBA) {
	if img == nil || img.Rect.Min != (image.Point{}) {
		return
	}
	key := rgbaPoolKey{img.Rect.Dx(), img.Rect.Dy()}
	sp, _ := p.pools.LoadOrStore(key, &sync.Pool{})
	sp.(*sync.Pool).Put(img)
}

// Release puts RGBA images back into the pool. Other image types are left
// to the garbage collector.
func (p *ImagePool) Release(img image.Image) {
	if rgba, ok := img.(*image.RGBA); ok {
		p.Put(rgba)
	}
}
