package loader

import (
	"context"
	"errors"
	"sync"

	"github.com/pspoerri/tileview/internal/metrics"
	"github.com/pspoerri/tileview/internal/tile"
)

// ErrClosed is returned by Pop once the queue has been closed.
var ErrClosed = errors.New("load queue closed")

// Queue is an unbounded FIFO of tiles waiting to be fetched. Push never
// blocks; Pop parks until a tile arrives. Safe for any number of producers
// and consumers.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*tile.Tile
	closed bool
}

func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends t. Tiles pushed after Close are dropped.
func (q *Queue) Push(t *tile.Tile) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, t)
	metrics.QueueDepth.Set(float64(len(q.items)))
	q.mu.Unlock()
	q.cond.Signal()
}

// Enqueue implements tile.Enqueuer.
func (q *Queue) Enqueue(t *tile.Tile) { q.Push(t) }

// Pop removes the oldest tile, waiting while the queue is empty. It returns
// ErrClosed after Close, or the context error once ctx is done.
func (q *Queue) Pop(ctx context.Context) (*tile.Tile, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed && ctx.Err() == nil {
		q.cond.Wait()
	}
	if q.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	metrics.QueueDepth.Set(float64(len(q.items)))
	return t, nil
}

// Close wakes every waiting Pop and drops queued tiles.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	metrics.QueueDepth.Set(0)
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Len returns the number of queued tiles.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
