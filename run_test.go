package featnum

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// memLayer is an in-memory Layer for pipeline tests. Numbering writes land
// in written, keyed by identifier.
type memLayer struct {
	name     string
	fields   []Field
	features []Feature
	written  map[string]int
	writeErr error
}

func newMemLayer() *memLayer {
	return &memLayer{
		name: "parcels",
		fields: []Field{
			{Name: "parcel_id", Type: FieldString},
			{Name: "lot_no", Type: FieldLong},
			{Name: "owner", Type: FieldString},
		},
		features: []Feature{
			{ID: "A", Geometry: orb.Point{0, 5}, Properties: geojson.Properties{"parcel_id": "A"}},
			{ID: "B", Geometry: orb.Point{2, 1}, Properties: geojson.Properties{"parcel_id": "B"}},
			{ID: "C", Geometry: orb.Point{1, 3}, Properties: geojson.Properties{"parcel_id": "C"}},
		},
		written: make(map[string]int),
	}
}

func (m *memLayer) Name() string             { return m.name }
func (m *memLayer) Fields() ([]Field, error) { return m.fields, nil }
func (m *memLayer) Close() error             { return nil }

func (m *memLayer) Select(sel Selection, idField string) ([]Feature, error) {
	var out []Feature
	for _, f := range m.features {
		if len(sel.IDs) > 0 {
			found := false
			for _, id := range sel.IDs {
				if id == f.ID {
					found = true
				}
			}
			if !found {
				continue
			}
		}
		if sel.Bound != nil && !sel.Bound.Intersects(f.Geometry.Bound()) {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (m *memLayer) UpdateNumbering(field, idField string, assignments []Assignment) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	for _, a := range assignments {
		m.written[a.ID] = a.Number
	}
	return nil
}

func TestRun_LeftToRight(t *testing.T) {
	layer := newMemLayer()

	result, err := Run(layer, Params{
		IDField:     "parcel_id",
		NumberField: "lot_no",
		Start:       1,
		Direction:   LeftToRight,
		Selection:   Selection{All: true},
	}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Count != 3 || result.First != 1 || result.Last != 3 {
		t.Errorf("unexpected result: %+v", result)
	}
	want := map[string]int{"A": 1, "C": 2, "B": 3}
	for id, n := range want {
		if layer.written[id] != n {
			t.Errorf("%s: got %d, want %d", id, layer.written[id], n)
		}
	}
}

func TestRun_TopToBottomStartTen(t *testing.T) {
	layer := newMemLayer()

	_, err := Run(layer, Params{
		IDField:     "parcel_id",
		NumberField: "lot_no",
		Start:       10,
		Direction:   TopToBottom,
		Selection:   Selection{All: true},
	}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := map[string]int{"A": 10, "C": 11, "B": 12}
	for id, n := range want {
		if layer.written[id] != n {
			t.Errorf("%s: got %d, want %d", id, layer.written[id], n)
		}
	}
}

func TestRun_CoversEverySelectedFeatureOnce(t *testing.T) {
	layer := newMemLayer()

	result, err := Run(layer, Params{
		IDField:     "parcel_id",
		NumberField: "lot_no",
		Start:       5,
		Direction:   RightToLeft,
		Selection:   Selection{IDs: []string{"A", "C"}},
	}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Count != 2 {
		t.Fatalf("expected 2 features numbered, got %d", result.Count)
	}
	if _, ok := layer.written["B"]; ok {
		t.Error("unselected feature B received a number")
	}
	seen := make(map[int]bool)
	for _, n := range layer.written {
		if n < 5 || n > 6 {
			t.Errorf("number %d outside 5..6", n)
		}
		if seen[n] {
			t.Errorf("number %d assigned twice", n)
		}
		seen[n] = true
	}
}

func TestRun_RerunOverwrites(t *testing.T) {
	layer := newMemLayer()
	params := Params{
		IDField:     "parcel_id",
		NumberField: "lot_no",
		Start:       1,
		Direction:   LeftToRight,
		Selection:   Selection{All: true},
	}

	if _, err := Run(layer, params, nil); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	first := make(map[string]int, len(layer.written))
	for id, n := range layer.written {
		first[id] = n
	}

	if _, err := Run(layer, params, nil); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	for id, n := range layer.written {
		if first[id] != n {
			t.Errorf("%s: rerun changed %d to %d", id, first[id], n)
		}
	}
}

func TestRun_EmptySelection(t *testing.T) {
	layer := newMemLayer()
	layer.features = nil

	_, err := Run(layer, Params{
		IDField:     "parcel_id",
		NumberField: "lot_no",
		Start:       1,
		Direction:   LeftToRight,
		Selection:   Selection{All: true},
	}, nil)
	if !errors.Is(err, ErrEmptySelection) {
		t.Errorf("expected ErrEmptySelection, got %v", err)
	}
	if len(layer.written) != 0 {
		t.Error("empty selection must not write")
	}
}

func TestRun_MissingNumberField(t *testing.T) {
	layer := newMemLayer()

	_, err := Run(layer, Params{
		IDField:     "parcel_id",
		NumberField: "no_such_field",
		Start:       1,
		Direction:   LeftToRight,
		Selection:   Selection{All: true},
	}, nil)
	if !errors.Is(err, ErrFieldNotFound) {
		t.Errorf("expected ErrFieldNotFound, got %v", err)
	}
}

func TestRun_MissingIDField(t *testing.T) {
	layer := newMemLayer()

	_, err := Run(layer, Params{
		IDField:     "no_such_field",
		NumberField: "lot_no",
		Start:       1,
		Direction:   LeftToRight,
		Selection:   Selection{All: true},
	}, nil)
	if !errors.Is(err, ErrMissingIDField) {
		t.Errorf("expected ErrMissingIDField, got %v", err)
	}
}

func TestRun_NonNumberableField(t *testing.T) {
	layer := newMemLayer()
	layer.fields = append(layer.fields, Field{Name: "photo", Type: FieldBinary})

	_, err := Run(layer, Params{
		IDField:     "parcel_id",
		NumberField: "photo",
		Start:       1,
		Direction:   LeftToRight,
		Selection:   Selection{All: true},
	}, nil)
	if !errors.Is(err, ErrFieldType) {
		t.Errorf("expected ErrFieldType, got %v", err)
	}
}

func TestRun_BadDirection(t *testing.T) {
	layer := newMemLayer()

	_, err := Run(layer, Params{
		IDField:     "parcel_id",
		NumberField: "lot_no",
		Start:       1,
		Direction:   Direction("Sideways"),
		Selection:   Selection{All: true},
	}, nil)
	if err == nil {
		t.Error("expected error for unknown direction")
	}
	if len(layer.written) != 0 {
		t.Error("failed run must not write")
	}
}

func TestRun_WriteFailureSurfaces(t *testing.T) {
	layer := newMemLayer()
	layer.writeErr = ErrWriteRejected

	_, err := Run(layer, Params{
		IDField:     "parcel_id",
		NumberField: "lot_no",
		Start:       1,
		Direction:   LeftToRight,
		Selection:   Selection{All: true},
	}, nil)
	if !errors.Is(err, ErrWriteRejected) {
		t.Errorf("expected ErrWriteRejected, got %v", err)
	}
}
