package gpkg

import (
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gisops/featnum"
)

func testFields() []featnum.Field {
	return []featnum.Field{
		{Name: "parcel_id", Type: featnum.FieldString},
		{Name: "lot_no", Type: featnum.FieldInteger},
		{Name: "owner", Type: featnum.FieldString},
	}
}

func testFeatures() []featnum.Feature {
	return []featnum.Feature{
		{Geometry: orb.Point{0, 5}, Properties: geojson.Properties{"parcel_id": "A", "owner": "Ashe"}},
		{Geometry: orb.Point{2, 1}, Properties: geojson.Properties{"parcel_id": "B", "owner": "Brook"}},
		{Geometry: orb.Point{1, 3}, Properties: geojson.Properties{"parcel_id": "C", "owner": "Cole"}},
	}
}

func createTestGeoPackage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parcels.gpkg")
	require.NoError(t, Create(path, "parcels", 4326, testFields(), testFeatures()))
	return path
}

func TestOpen_SingleTableByDefault(t *testing.T) {
	path := createTestGeoPackage(t)

	layer, err := Open(path, "")
	require.NoError(t, err)
	defer layer.Close()

	assert.Equal(t, "parcels", layer.Name())
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.gpkg"), "")
	assert.ErrorIs(t, err, featnum.ErrNoDataSource)
}

func TestFields(t *testing.T) {
	path := createTestGeoPackage(t)

	layer, err := Open(path, "parcels")
	require.NoError(t, err)
	defer layer.Close()

	fields, err := layer.Fields()
	require.NoError(t, err)

	byName := make(map[string]featnum.FieldType, len(fields))
	for _, f := range fields {
		byName[f.Name] = f.Type
	}
	assert.Equal(t, featnum.FieldLong, byName["fid"])
	assert.Equal(t, featnum.FieldString, byName["parcel_id"])
	assert.Equal(t, featnum.FieldInteger, byName["lot_no"])
	assert.NotContains(t, byName, "geom")
}

func TestSelect_All(t *testing.T) {
	path := createTestGeoPackage(t)

	layer, err := Open(path, "parcels")
	require.NoError(t, err)
	defer layer.Close()

	features, err := layer.Select(featnum.Selection{All: true}, "parcel_id")
	require.NoError(t, err)
	require.Len(t, features, 3)

	ids := make(map[string]orb.Geometry, len(features))
	for _, f := range features {
		ids[f.ID] = f.Geometry
	}
	require.Contains(t, ids, "A")
	assert.Equal(t, orb.Point{0, 5}, ids["A"])
	assert.Equal(t, "Brook", featureByID(t, features, "B").Properties["owner"])
}

func TestSelect_ByID(t *testing.T) {
	path := createTestGeoPackage(t)

	layer, err := Open(path, "parcels")
	require.NoError(t, err)
	defer layer.Close()

	features, err := layer.Select(featnum.Selection{IDs: []string{"A", "C"}}, "parcel_id")
	require.NoError(t, err)
	require.Len(t, features, 2)
	for _, f := range features {
		assert.NotEqual(t, "B", f.ID)
	}
}

func TestSelect_ByBound(t *testing.T) {
	path := createTestGeoPackage(t)

	layer, err := Open(path, "parcels")
	require.NoError(t, err)
	defer layer.Close()

	bound := orb.Bound{Min: orb.Point{0.5, 0}, Max: orb.Point{3, 6}}
	features, err := layer.Select(featnum.Selection{Bound: &bound}, "parcel_id")
	require.NoError(t, err)
	require.Len(t, features, 2)
	for _, f := range features {
		assert.NotEqual(t, "A", f.ID)
	}
}

func TestSelect_MissingIDField(t *testing.T) {
	path := createTestGeoPackage(t)

	layer, err := Open(path, "parcels")
	require.NoError(t, err)
	defer layer.Close()

	_, err = layer.Select(featnum.Selection{All: true}, "no_such_field")
	assert.ErrorIs(t, err, featnum.ErrMissingIDField)
}

func TestUpdateNumbering_InPlace(t *testing.T) {
	path := createTestGeoPackage(t)

	layer, err := Open(path, "parcels")
	require.NoError(t, err)

	err = layer.UpdateNumbering("lot_no", "parcel_id", []featnum.Assignment{
		{ID: "A", Number: 1},
		{ID: "C", Number: 2},
		{ID: "B", Number: 3},
	})
	require.NoError(t, err)
	require.NoError(t, layer.Close())

	reopened, err := Open(path, "parcels")
	require.NoError(t, err)
	defer reopened.Close()

	features, err := reopened.Select(featnum.Selection{All: true}, "parcel_id")
	require.NoError(t, err)

	want := map[string]int64{"A": 1, "C": 2, "B": 3}
	for id, n := range want {
		assert.EqualValues(t, n, featureByID(t, features, id).Properties["lot_no"], id)
	}
}

func TestUpdateNumbering_UnknownIdentifier(t *testing.T) {
	path := createTestGeoPackage(t)

	layer, err := Open(path, "parcels")
	require.NoError(t, err)
	defer layer.Close()

	err = layer.UpdateNumbering("lot_no", "parcel_id", []featnum.Assignment{
		{ID: "Z", Number: 1},
	})
	assert.ErrorIs(t, err, featnum.ErrWriteRejected)
}

func TestUpdateNumbering_MissingField(t *testing.T) {
	path := createTestGeoPackage(t)

	layer, err := Open(path, "parcels")
	require.NoError(t, err)
	defer layer.Close()

	err = layer.UpdateNumbering("no_such_field", "parcel_id", nil)
	assert.ErrorIs(t, err, featnum.ErrFieldNotFound)
}

// TestRunPipeline drives the whole numbering pipeline against a real
// GeoPackage file.
func TestRunPipeline(t *testing.T) {
	path := createTestGeoPackage(t)

	layer, err := Open(path, "parcels")
	require.NoError(t, err)

	result, err := featnum.Run(layer, featnum.Params{
		IDField:     "parcel_id",
		NumberField: "lot_no",
		Start:       10,
		Direction:   featnum.TopToBottom,
		Selection:   featnum.Selection{All: true},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, layer.Close())

	assert.Equal(t, 3, result.Count)
	assert.Equal(t, 10, result.First)
	assert.Equal(t, 12, result.Last)

	reopened, err := Open(path, "parcels")
	require.NoError(t, err)
	defer reopened.Close()

	features, err := reopened.Select(featnum.Selection{All: true}, "parcel_id")
	require.NoError(t, err)

	// y descending from start 10: A (y=5) first, then C, then B.
	want := map[string]int64{"A": 10, "C": 11, "B": 12}
	for id, n := range want {
		assert.EqualValues(t, n, featureByID(t, features, id).Properties["lot_no"], id)
	}
}

// TestNumbering_DoubleIdentifierField numbers a layer whose unique id
// column is REAL-typed. The canonical form of a whole double ("1", not
// "1.0") must match on the write side exactly as it does on the read
// side.
func TestNumbering_DoubleIdentifierField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pins.gpkg")
	fields := []featnum.Field{
		{Name: "pid", Type: featnum.FieldDouble},
		{Name: "lot_no", Type: featnum.FieldInteger},
	}
	features := []featnum.Feature{
		{Geometry: orb.Point{0, 5}, Properties: geojson.Properties{"pid": 1.0}},
		{Geometry: orb.Point{2, 1}, Properties: geojson.Properties{"pid": 2.0}},
		{Geometry: orb.Point{1, 3}, Properties: geojson.Properties{"pid": 3.0}},
	}
	require.NoError(t, Create(path, "pins", 4326, fields, features))

	layer, err := Open(path, "pins")
	require.NoError(t, err)

	selected, err := layer.Select(featnum.Selection{IDs: []string{"1", "3"}}, "pid")
	require.NoError(t, err)
	require.Len(t, selected, 2, "canonical ids must match REAL column values")

	result, err := featnum.Run(layer, featnum.Params{
		IDField:     "pid",
		NumberField: "lot_no",
		Start:       1,
		Direction:   featnum.LeftToRight,
		Selection:   featnum.Selection{All: true},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, layer.Close())
	assert.Equal(t, 3, result.Count)

	reopened, err := Open(path, "pins")
	require.NoError(t, err)
	defer reopened.Close()

	numbered, err := reopened.Select(featnum.Selection{All: true}, "pid")
	require.NoError(t, err)

	// x ascending: pid 1 at x=0, pid 3 at x=1, pid 2 at x=2.
	want := map[string]int64{"1": 1, "3": 2, "2": 3}
	for id, n := range want {
		assert.EqualValues(t, n, featureByID(t, numbered, id).Properties["lot_no"], id)
	}
}

func featureByID(t *testing.T, features []featnum.Feature, id string) featnum.Feature {
	t.Helper()
	for _, f := range features {
		if f.ID == id {
			return f
		}
	}
	t.Fatalf("feature %q not found", id)
	return featnum.Feature{}
}
