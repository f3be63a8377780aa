package fetch

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/pspoerri/tileview/internal/tile"
)

// countingFetcher returns fixed bytes (or an error) and counts calls.
type countingFetcher struct {
	data  []byte
	err   error
	calls atomic.Int64
}

func (f *countingFetcher) Fetch(_ context.Context, _ tile.Key) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

var errUpstream = errors.New("upstream unavailable")
