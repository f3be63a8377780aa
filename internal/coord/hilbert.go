package coord

import "sort"

// xyToHilbert converts (x, y) to a Hilbert curve index for an n x n grid.
// n must be a power of two.
func xyToHilbert(x, y, n uint64) uint64 {
	var d uint64
	s := n / 2
	for s > 0 {
		var rx, ry uint64
		if (x & s) > 0 {
			rx = 1
		}
		if (y & s) > 0 {
			ry = 1
		}
		d += s * s * ((3 * rx) ^ ry)
		// Rotate quadrant.
		if ry == 0 {
			if rx == 1 {
				x = s*2 - 1 - x
				y = s*2 - 1 - y
			}
			x, y = y, x
		}
		s /= 2
	}
	return d
}

// HilbertIndex returns the Hilbert curve index of tile x/y within its zoom
// level. x and y must be canonical.
func HilbertIndex(x, y, zoom int) uint64 {
	return xyToHilbert(uint64(x), uint64(y), uint64(TilesPerAxis(zoom)))
}

// SortByHilbert sorts canonical tile indices of one zoom level by their
// Hilbert curve index, so that items close in the slice are close in the
// grid. xy extracts the tile index of an item.
func SortByHilbert[T any](items []T, zoom int, xy func(T) (int, int)) {
	if len(items) <= 1 {
		return
	}
	// Precompute Hilbert indices so each value is computed once (O(n))
	// rather than on every comparison (O(n log n) times).
	indices := make([]uint64, len(items))
	for i, it := range items {
		x, y := xy(it)
		indices[i] = HilbertIndex(x, y, zoom)
	}

	sort.Sort(hilbertSorter[T]{items: items, indices: indices})
}

type hilbertSorter[T any] struct {
	items   []T
	indices []uint64
}

func (s hilbertSorter[T]) Len() int           { return len(s.items) }
func (s hilbertSorter[T]) Less(i, j int) bool { return s.indices[i] < s.indices[j] }
func (s hilbertSorter[T]) Swap(i, j int) {
	s.items[i], s.items[j] = s.items[j], s.items[i]
	s.indices[i], s.indices[j] = s.indices[j], s.indices[i]
}
