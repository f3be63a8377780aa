package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pspoerri/tileview/internal/metrics"
	"github.com/pspoerri/tileview/internal/tile"
)

// DefaultUserAgent identifies tileview to tile servers. Public servers such
// as tile.openstreetmap.org reject requests without one.
const DefaultUserAgent = "tileview/1.0 (+https://github.com/pspoerri/tileview)"

// maxTileBytes bounds the size of a single tile response.
const maxTileBytes = 16 << 20

// StatusError reports a non-200 response from a tile server.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tile server returned status %d for %s", e.StatusCode, e.URL)
}

// Unwrap maps 404 and 204 to ErrNotFound.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusNoContent {
		return ErrNotFound
	}
	return nil
}

// HTTPConfig configures an HTTPFetcher.
type HTTPConfig struct {
	Template  *Template
	UserAgent string
	Referer   string
	Timeout   time.Duration
	// Client overrides the default client; Timeout is ignored when set.
	Client *http.Client
}

// HTTPFetcher downloads tiles from a URL template. Concurrent requests for
// the same URL share one round trip.
type HTTPFetcher struct {
	tmpl      *Template
	client    *http.Client
	userAgent string
	referer   string
	log       *zap.Logger
	inflight  singleflight.Group
}

// NewHTTPFetcher creates a fetcher for cfg.Template.
func NewHTTPFetcher(cfg HTTPConfig, log *zap.Logger) *HTTPFetcher {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPFetcher{
		tmpl:      cfg.Template,
		client:    client,
		userAgent: ua,
		referer:   cfg.Referer,
		log:       log,
	}
}

// Fetch implements Fetcher. The shared request outlives a cancelled caller
// so that other waiters still get the result; each caller stops waiting
// when its own ctx is done.
func (f *HTTPFetcher) Fetch(ctx context.Context, key tile.Key) ([]byte, error) {
	url := f.tmpl.Expand(key)
	ch := f.inflight.DoChan(url, func() (any, error) {
		return f.get(context.WithoutCancel(ctx), url)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *HTTPFetcher) get(ctx context.Context, url string) ([]byte, error) {
	metrics.FetchRequests.WithLabelValues("http").Inc()
	start := time.Now()
	defer func() {
		metrics.FetchLatency.WithLabelValues("http").Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if f.referer != "" {
		req.Header.Set("Referer", f.referer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read tile data: %w", err)
	}
	if len(data) > maxTileBytes {
		return nil, fmt.Errorf("tile at %s exceeds %d bytes", url, maxTileBytes)
	}

	f.log.Debug("fetched tile", zap.String("url", url), zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)))
	return data, nil
}
