package featnum

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Collect reads the selected features of layer and maps each identifier to
// the centroid of its geometry. Features without geometry are skipped.
// Returns ErrEmptySelection when nothing matches and ErrDuplicateID when
// two features share an identifier value.
func Collect(layer Layer, sel Selection, idField string) (map[string]orb.Point, error) {
	features, err := layer.Select(sel, idField)
	if err != nil {
		return nil, err
	}

	centroids := make(map[string]orb.Point, len(features))
	for _, f := range features {
		if f.Geometry == nil {
			continue
		}
		if _, seen := centroids[f.ID]; seen {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, f.ID)
		}
		center, _ := planar.CentroidArea(f.Geometry)
		centroids[f.ID] = center
	}

	if len(centroids) == 0 {
		return nil, ErrEmptySelection
	}

	return centroids, nil
}
