package featnum

import (
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature is a single spatial record read from a layer: the canonical
// identifier value, the geometry, and the attribute values.
type Feature struct {
	ID         string
	Geometry   orb.Geometry
	Properties geojson.Properties
}

// Field describes one attribute column of a layer.
type Field struct {
	Name string
	Type FieldType
}

// FieldType names an attribute column type.
type FieldType string

// Known field types. Backends map their native column types onto these.
const (
	FieldBool    FieldType = "Bool"
	FieldShort   FieldType = "Short"
	FieldInteger FieldType = "Integer"
	FieldLong    FieldType = "Long"
	FieldFloat   FieldType = "Float"
	FieldDouble  FieldType = "Double"
	FieldString  FieldType = "String"
	FieldDate    FieldType = "Date"
	FieldBinary  FieldType = "Binary"
)

// Numberable reports whether a field of this type may receive numbering
// values.
func (t FieldType) Numberable() bool {
	switch t {
	case FieldShort, FieldInteger, FieldLong, FieldFloat, FieldDouble, FieldString, FieldDate:
		return true
	}
	return false
}

// Selection describes which features of a layer participate in a run.
// Exactly one of IDs, Bound, or All should be set.
type Selection struct {
	IDs   []string   // explicit identifier values
	Bound *orb.Bound // spatial filter on feature bounds
	All   bool       // every feature in the layer
}

// Assignment pairs a feature identifier with its assigned number.
type Assignment struct {
	ID     string
	Number int
}

// Layer is read and write access to one feature layer of a geodatabase.
type Layer interface {
	// Name returns the layer name.
	Name() string

	// Fields returns the layer's attribute schema.
	Fields() ([]Field, error)

	// Select returns the features matched by sel. Each feature's ID is
	// the canonical form of its idField value.
	Select(sel Selection, idField string) ([]Feature, error)

	// UpdateNumbering writes each assignment's number into field on the
	// feature whose idField value matches the assignment's identifier.
	UpdateNumbering(field, idField string, assignments []Assignment) error

	// Close releases backend resources.
	Close() error
}

// CanonicalID renders an identifier field value to its canonical string
// form. Integer values of any width render base-10, so the same feature
// matches across backends that surface the column differently.
func CanonicalID(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case []byte:
		return string(val), true
	case int:
		return strconv.FormatInt(int64(val), 10), true
	case int8:
		return strconv.FormatInt(int64(val), 10), true
	case int16:
		return strconv.FormatInt(int64(val), 10), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case uint:
		return strconv.FormatUint(uint64(val), 10), true
	case uint8:
		return strconv.FormatUint(uint64(val), 10), true
	case uint16:
		return strconv.FormatUint(uint64(val), 10), true
	case uint32:
		return strconv.FormatUint(uint64(val), 10), true
	case uint64:
		return strconv.FormatUint(val, 10), true
	case float32:
		return canonicalFloat(float64(val)), true
	case float64:
		return canonicalFloat(val), true
	}
	return "", false
}

// canonicalFloat renders whole floats without a fraction so an identifier
// stored as REAL still matches its integer form.
func canonicalFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
