// Package fetch provides the byte sources tiles are loaded from: an HTTP
// tile server, a local PMTiles archive, and the caches layered in front of
// them.
package fetch

import (
	"context"
	"errors"
	"io"

	"github.com/pspoerri/tileview/internal/tile"
)

// ErrNotFound is returned when a source has no data for a tile.
var ErrNotFound = errors.New("tile not found")

// Fetcher returns the raw encoded bytes of one tile.
type Fetcher interface {
	Fetch(ctx context.Context, key tile.Key) ([]byte, error)
}

// FetcherFunc adapts an ordinary function to Fetcher.
type FetcherFunc func(ctx context.Context, key tile.Key) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, key tile.Key) ([]byte, error) {
	return f(ctx, key)
}

// Chain is a composed fetcher plus the resources it holds open.
type Chain struct {
	Fetcher
	closers []io.Closer
}

// Close releases every layer of the chain, outermost first.
func (c *Chain) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
