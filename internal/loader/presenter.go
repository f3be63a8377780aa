package loader

import (
	"context"
	"fmt"

	"github.com/pspoerri/tileview/internal/encode"
	"github.com/pspoerri/tileview/internal/metrics"
	"github.com/pspoerri/tileview/internal/tile"
)

// DecodePresenter decodes tile bytes into pooled RGBA images and attaches
// them to their tile.
type DecodePresenter struct {
	Pool *tile.ImagePool
}

// NewDecodePresenter returns a presenter drawing into pool, or into
// tile.DefaultPool when pool is nil.
func NewDecodePresenter(pool *tile.ImagePool) *DecodePresenter {
	if pool == nil {
		pool = tile.DefaultPool
	}
	return &DecodePresenter{Pool: pool}
}

// Present decodes data and completes t. A tile disposed while its bytes
// were in flight is left alone and the decoded image goes back to the pool.
func (p *DecodePresenter) Present(_ context.Context, t *tile.Tile, data []byte) error {
	if t.State() == tile.Disposed {
		return nil
	}
	img, err := encode.Decode(data)
	if err != nil {
		return fmt.Errorf("tile %s: %w", t.Key, err)
	}
	rgba := encode.ToRGBA(img, p.Pool)
	if !t.Complete(rgba) {
		p.Pool.Put(rgba)
		return nil
	}
	metrics.TilesReady.Inc()
	return nil
}
