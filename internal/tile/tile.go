package tile

import (
	"image"
	"sync"
	"time"

	"github.com/pspoerri/tileview/internal/coord"
)

// State is the load state of a Tile.
type State int32

const (
	Pending State = iota
	Ready
	Failed
	Disposed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	case Disposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Disposer releases the image held by an evicted tile.
type Disposer interface {
	Release(img image.Image)
}

// Tile is one cell of a zoom level, loading or loaded.
//
// Key and Origin are fixed at creation. The state and payload change only
// through Complete, Fail and Dispose, which are safe to call from any
// goroutine. Disposed is terminal.
type Tile struct {
	Key    Key
	Origin coord.PlanarPoint

	disposer Disposer

	// views is held shared by View callbacks and exclusively by Dispose
	// before the image is released.
	views sync.RWMutex

	mu       sync.Mutex
	state    State
	img      image.Image
	err      error
	failedAt time.Time
}

// NewTile returns a pending tile. d may be nil, in which case images are
// dropped for the garbage collector on dispose.
func NewTile(key Key, origin coord.PlanarPoint, d Disposer) *Tile {
	return &Tile{Key: key, Origin: origin, disposer: d}
}

func (t *Tile) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// payload returns the image of a ready tile, or nil. Outside View the
// image may already be back in the pool.
func (t *Tile) payload() image.Image {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Ready {
		return nil
	}
	return t.img
}

// View calls fn with the image of a ready tile and reports whether it did.
// The image is not released while fn runs, so fn may read its pixels even
// if the tile is disposed concurrently. fn must not retain img.
func (t *Tile) View(fn func(img image.Image) error) (bool, error) {
	t.views.RLock()
	defer t.views.RUnlock()
	img := t.payload()
	if img == nil {
		return false, nil
	}
	return true, fn(img)
}

// Err returns the load error of a failed tile.
func (t *Tile) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// FailedAt returns when the tile was marked failed, or the zero time.
func (t *Tile) FailedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failedAt
}

// Complete attaches img and moves a pending tile to Ready. It reports false
// if the tile is no longer pending; the caller then still owns img and must
// release it.
func (t *Tile) Complete(img image.Image) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Pending {
		return false
	}
	t.state = Ready
	t.img = img
	return true
}

// Fail moves a pending tile to Failed.
func (t *Tile) Fail(err error) bool {
	return t.failAt(err, time.Now())
}

func (t *Tile) failAt(err error, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Pending {
		return false
	}
	t.state = Failed
	t.err = err
	t.failedAt = now
	return true
}

// Dispose moves the tile to Disposed and releases its image. Only the first
// call has an effect and reports true.
func (t *Tile) Dispose() bool {
	t.mu.Lock()
	if t.state == Disposed {
		t.mu.Unlock()
		return false
	}
	img := t.img
	t.state = Disposed
	t.img = nil
	t.mu.Unlock()

	if img != nil && t.disposer != nil {
		// Wait for running View callbacks.
		t.views.Lock()
		t.views.Unlock()
		t.disposer.Release(img)
	}
	return true
}
