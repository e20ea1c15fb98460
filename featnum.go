// Package featnum numbers the features of a geodatabase layer sequentially
// by centroid coordinate. It collects the selected features of a layer,
// sorts them along one coordinate axis, and writes consecutive integers
// into a numbering attribute field. Layer access is pluggable: the gpkg
// and fgb subpackages provide GeoPackage and FlatGeobuf backends.
package featnum

import (
	"errors"
	"fmt"
)

// Common errors returned by this package. Backends wrap these so callers
// can classify failures with errors.Is.
var (
	ErrLayerNotFound  = errors.New("featnum: layer not found in project")
	ErrNoDataSource   = errors.New("featnum: layer has no data source")
	ErrEmptySelection = errors.New("featnum: no features selected")
	ErrMissingIDField = errors.New("featnum: identifier field not found")
	ErrDuplicateID    = errors.New("featnum: duplicate identifier value")
	ErrFieldNotFound  = errors.New("featnum: numbering field not found")
	ErrFieldType      = errors.New("featnum: numbering field has invalid type")
	ErrWriteRejected  = errors.New("featnum: write rejected")
)

// Axis selects which centroid coordinate orders the features.
type Axis string

const (
	AxisX Axis = "x"
	AxisY Axis = "y"
)

// Direction is a user-facing ordering label.
type Direction string

// Supported direction labels.
const (
	LeftToRight Direction = "Left to Right"
	RightToLeft Direction = "Right to Left"
	TopToBottom Direction = "Top to Bottom"
	BottomToTop Direction = "Bottom to Top"
)

// ParseDirection maps a direction label to its sort axis and order.
// "Up to Down" and "Down to Up" are accepted as aliases of "Top to Bottom"
// and "Bottom to Top".
func ParseDirection(label string) (Axis, bool, error) {
	switch Direction(label) {
	case LeftToRight:
		return AxisX, true, nil
	case RightToLeft:
		return AxisX, false, nil
	case TopToBottom, Direction("Up to Down"):
		return AxisY, false, nil
	case BottomToTop, Direction("Down to Up"):
		return AxisY, true, nil
	}
	return "", false, fmt.Errorf("featnum: unknown direction %q", label)
}
