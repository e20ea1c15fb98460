package featnum

import (
	"fmt"

	"go.uber.org/zap"
)

// Number assigns sequential values to ids in order, starting at start.
func Number(ids []string, start int) []Assignment {
	assignments := make([]Assignment, len(ids))
	for i, id := range ids {
		assignments[i] = Assignment{ID: id, Number: start + i}
	}
	return assignments
}

// Params configures a numbering run.
type Params struct {
	IDField     string    // unique identifier field
	NumberField string    // field that receives the sequence
	Start       int       // first number assigned
	Direction   Direction // ordering label, see ParseDirection
	Selection   Selection // which features participate
}

// Result summarizes a completed numbering run.
type Result struct {
	Count     int
	First     int
	Last      int
	Axis      Axis
	Ascending bool
}

// Run executes the numbering pipeline against layer: validate the schema,
// collect the selected features' centroids, sort along the requested
// direction, and write the sequence into the numbering field. The schema
// is validated before any write, but a failure partway through the write
// leaves already-written values in place (the backend's own transaction
// semantics apply).
func Run(layer Layer, p Params, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	axis, ascending, err := ParseDirection(string(p.Direction))
	if err != nil {
		return nil, err
	}

	fields, err := layer.Fields()
	if err != nil {
		return nil, err
	}
	if err := checkFields(fields, p.IDField, p.NumberField); err != nil {
		return nil, err
	}

	centroids, err := Collect(layer, p.Selection, p.IDField)
	if err != nil {
		return nil, err
	}

	ids := SortByCoordinate(centroids, axis, ascending)
	assignments := Number(ids, p.Start)

	logger.Info("writing numbering",
		zap.String("layer", layer.Name()),
		zap.String("field", p.NumberField),
		zap.Int("features", len(assignments)),
		zap.Int("start", p.Start),
		zap.String("axis", string(axis)),
		zap.Bool("ascending", ascending))

	if err := layer.UpdateNumbering(p.NumberField, p.IDField, assignments); err != nil {
		return nil, err
	}

	return &Result{
		Count:     len(assignments),
		First:     p.Start,
		Last:      p.Start + len(assignments) - 1,
		Axis:      axis,
		Ascending: ascending,
	}, nil
}

// checkFields verifies the identifier field exists and the numbering field
// exists with a type that can hold the sequence.
func checkFields(fields []Field, idField, numberField string) error {
	var haveID bool
	var target *Field
	for i := range fields {
		switch fields[i].Name {
		case idField:
			haveID = true
		case numberField:
			target = &fields[i]
		}
	}

	if !haveID {
		return fmt.Errorf("%w: %q", ErrMissingIDField, idField)
	}
	if target == nil {
		return fmt.Errorf("%w: %q", ErrFieldNotFound, numberField)
	}
	if !target.Type.Numberable() {
		return fmt.Errorf("%w: %q is %s", ErrFieldType, numberField, target.Type)
	}
	return nil
}
