package featnum

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func TestCollect_PointCentroids(t *testing.T) {
	layer := newMemLayer()

	centroids, err := Collect(layer, Selection{All: true}, "parcel_id")
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	if len(centroids) != 3 {
		t.Fatalf("expected 3 centroids, got %d", len(centroids))
	}
	if got := centroids["A"]; got.X() != 0 || got.Y() != 5 {
		t.Errorf("A: got %v, want (0,5)", got)
	}
}

func TestCollect_PolygonCentroid(t *testing.T) {
	layer := newMemLayer()
	layer.features = []Feature{
		{
			ID: "P",
			Geometry: orb.Polygon{
				{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
			},
			Properties: geojson.Properties{"parcel_id": "P"},
		},
	}

	centroids, err := Collect(layer, Selection{All: true}, "parcel_id")
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	got := centroids["P"]
	if got.X() != 5 || got.Y() != 5 {
		t.Errorf("square centroid: got %v, want (5,5)", got)
	}
}

func TestCollect_SkipsNilGeometry(t *testing.T) {
	layer := newMemLayer()
	layer.features = append(layer.features, Feature{ID: "ghost"})

	centroids, err := Collect(layer, Selection{All: true}, "parcel_id")
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if _, ok := centroids["ghost"]; ok {
		t.Error("feature without geometry must not produce a centroid")
	}
}

func TestCollect_EmptySelection(t *testing.T) {
	layer := newMemLayer()

	_, err := Collect(layer, Selection{IDs: []string{"nope"}}, "parcel_id")
	if !errors.Is(err, ErrEmptySelection) {
		t.Errorf("expected ErrEmptySelection, got %v", err)
	}
}

func TestCollect_DuplicateIdentifier(t *testing.T) {
	layer := newMemLayer()
	layer.features = append(layer.features, Feature{
		ID:         "A",
		Geometry:   orb.Point{9, 9},
		Properties: geojson.Properties{"parcel_id": "A"},
	})

	_, err := Collect(layer, Selection{All: true}, "parcel_id")
	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("expected ErrDuplicateID, got %v", err)
	}
}

func TestCollect_BoundSelection(t *testing.T) {
	layer := newMemLayer()
	bound := orb.Bound{Min: orb.Point{0.5, 0}, Max: orb.Point{3, 6}}

	centroids, err := Collect(layer, Selection{Bound: &bound}, "parcel_id")
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	// A at (0,5) lies outside the box, B and C inside.
	if _, ok := centroids["A"]; ok {
		t.Error("A should be outside the bound")
	}
	if len(centroids) != 2 {
		t.Errorf("expected 2 centroids, got %d", len(centroids))
	}
}
