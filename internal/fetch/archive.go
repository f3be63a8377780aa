package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/pspoerri/tileview/internal/metrics"
	"github.com/pspoerri/tileview/internal/pmtiles"
	"github.com/pspoerri/tileview/internal/tile"
)

// ArchiveFetcher serves tiles from a PMTiles archive.
type ArchiveFetcher struct {
	r *pmtiles.Reader
}

// OpenArchive opens the PMTiles file at path.
func OpenArchive(path string) (*ArchiveFetcher, error) {
	r, err := pmtiles.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	return &ArchiveFetcher{r: r}, nil
}

// NewArchiveFetcher serves tiles from an open reader.
func NewArchiveFetcher(r *pmtiles.Reader) *ArchiveFetcher {
	return &ArchiveFetcher{r: r}
}

// Header returns the archive header.
func (a *ArchiveFetcher) Header() pmtiles.Header { return a.r.Header() }

// NumTiles returns the number of tiles the archive addresses.
func (a *ArchiveFetcher) NumTiles() int { return a.r.NumTiles() }

// TilesAtZoom returns how many tiles the archive holds at zoom.
func (a *ArchiveFetcher) TilesAtZoom(zoom int) int { return len(a.r.TilesAtZoom(zoom)) }

// Metadata returns the archive's JSON metadata, or nil when it has none.
func (a *ArchiveFetcher) Metadata() (map[string]any, error) { return a.r.ReadMetadata() }

// Fetch implements Fetcher.
func (a *ArchiveFetcher) Fetch(ctx context.Context, key tile.Key) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	metrics.FetchRequests.WithLabelValues("archive").Inc()
	start := time.Now()
	data, err := a.r.ReadTile(key.Zoom, key.X, key.Y)
	metrics.FetchLatency.WithLabelValues("archive").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("reading tile %s: %w", key, err)
	}
	if data == nil {
		return nil, fmt.Errorf("tile %s: %w", key, ErrNotFound)
	}
	return data, nil
}

// Close closes the underlying archive.
func (a *ArchiveFetcher) Close() error { return a.r.Close() }
