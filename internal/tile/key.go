package tile

import "fmt"

// Key identifies one tile of the grid. Keys stored in the cache are always
// canonical for their projection (see coord.Projection.Canonical).
type Key struct {
	X, Y, Zoom int
}

// String formats the key as z/x/y.
func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Zoom, k.X, k.Y)
}

// compareKeys orders keys by zoom, then row, then column.
func compareKeys(a, b Key) int {
	switch {
	case a.Zoom != b.Zoom:
		return a.Zoom - b.Zoom
	case a.Y != b.Y:
		return a.Y - b.Y
	default:
		return a.X - b.X
	}
}
