package featnum

import (
	"sort"

	"github.com/paulmach/orb"
)

// SortByCoordinate orders the identifiers in centroids by the chosen
// coordinate axis, ascending or descending. Ties on the sort coordinate
// break on identifier order ascending, so the result is deterministic for
// the same input regardless of map iteration order.
func SortByCoordinate(centroids map[string]orb.Point, axis Axis, ascending bool) []string {
	ids := make([]string, 0, len(centroids))
	for id := range centroids {
		ids = append(ids, id)
	}

	coord := func(id string) float64 {
		p := centroids[id]
		if axis == AxisY {
			return p.Y()
		}
		return p.X()
	}

	sort.Slice(ids, func(i, j int) bool {
		ci, cj := coord(ids[i]), coord(ids[j])
		if ci != cj {
			if ascending {
				return ci < cj
			}
			return ci > cj
		}
		return ids[i] < ids[j]
	})

	return ids
}
