// Package fgb backs featnum.Layer with a FlatGeobuf file. FlatGeobuf has
// no in-place update, so numbering writes rewrite the whole file and
// rename it over the original. Reading goes through the file's packed
// spatial index; files written without an index cannot be read back.
package fgb

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/gisops/featnum"
)

// Errors specific to this backend.
var (
	// ErrNoIndex is returned when a file lacks the spatial index the Go
	// FlatGeobuf reader needs to iterate features.
	ErrNoIndex = errors.New("fgb: file has no spatial index")

	// ErrClosed is returned by operations on a closed layer, including
	// one left closed by a failed rewrite.
	ErrClosed = errors.New("fgb: layer closed")
)

// Layer is a FlatGeobuf file opened for reading and numbering edits.
type Layer struct {
	path string
	fgb  *flatgeobuf.FlatGeoBuf
}

// Open memory-maps the FlatGeobuf file at path.
func Open(path string) (*Layer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", featnum.ErrNoDataSource, err)
	}

	f, err := flatgeobuf.New(path)
	if err != nil {
		return nil, fmt.Errorf("fgb: open %s: %w", path, err)
	}
	return &Layer{path: path, fgb: f}, nil
}

// Name returns the layer name from the header, falling back to the file
// name.
func (l *Layer) Name() string {
	if l.fgb == nil {
		base := filepath.Base(l.path)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	if h := l.fgb.Header(); h != nil {
		if name := string(h.Name()); name != "" {
			return name
		}
	}
	base := filepath.Base(l.path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Fields returns the property column schema.
func (l *Layer) Fields() ([]featnum.Field, error) {
	if l.fgb == nil {
		return nil, ErrClosed
	}
	h := l.fgb.Header()
	if h == nil {
		return nil, fmt.Errorf("fgb: %s has no header", l.path)
	}

	fields := make([]featnum.Field, 0, h.ColumnsLength())
	for i := 0; i < h.ColumnsLength(); i++ {
		var col flattypes.Column
		if h.Columns(&col, i) {
			fields = append(fields, featnum.Field{
				Name: string(col.Name()),
				Type: fieldTypeOf(col.Type()),
			})
		}
	}
	return fields, nil
}

// columnIndex returns the schema position of the named column, or -1.
func (l *Layer) columnIndex(name string) int {
	if l.fgb == nil {
		return -1
	}
	h := l.fgb.Header()
	if h == nil {
		return -1
	}
	for i := 0; i < h.ColumnsLength(); i++ {
		var col flattypes.Column
		if h.Columns(&col, i) && string(col.Name()) == name {
			return i
		}
	}
	return -1
}

// Select returns the features matched by sel, identified by idField.
// Spatial selections query the index directly; identifier selections
// filter after a full read.
func (l *Layer) Select(sel featnum.Selection, idField string) ([]featnum.Feature, error) {
	if l.fgb == nil {
		return nil, ErrClosed
	}
	if l.columnIndex(idField) < 0 {
		return nil, fmt.Errorf("%w: %q in %s", featnum.ErrMissingIDField, idField, l.Name())
	}

	records, err := l.read(sel.Bound)
	if err != nil {
		return nil, err
	}

	var wanted map[string]bool
	if len(sel.IDs) > 0 {
		wanted = make(map[string]bool, len(sel.IDs))
		for _, id := range sel.IDs {
			wanted[id] = true
		}
	}

	features := make([]featnum.Feature, 0, len(records))
	for _, rec := range records {
		id, ok := featnum.CanonicalID(rec.Properties[idField])
		if !ok {
			return nil, fmt.Errorf("%w: feature without %q value in %s",
				featnum.ErrMissingIDField, idField, l.Name())
		}
		if wanted != nil && !wanted[id] {
			continue
		}
		rec.ID = id
		features = append(features, rec)
	}
	return features, nil
}

// read returns every feature intersecting bound, or every feature in the
// file when bound is nil.
func (l *Layer) read(bound *orb.Bound) ([]featnum.Feature, error) {
	if l.fgb == nil {
		return nil, ErrClosed
	}
	h := l.fgb.Header()
	if h == nil {
		return nil, fmt.Errorf("fgb: %s has no header", l.path)
	}
	if h.IndexNodeSize() == 0 {
		return nil, ErrNoIndex
	}

	minX, minY := -math.MaxFloat64, -math.MaxFloat64
	maxX, maxY := math.MaxFloat64, math.MaxFloat64
	if bound != nil {
		minX, minY = bound.Min[0], bound.Min[1]
		maxX, maxY = bound.Max[0], bound.Max[1]
	} else if h.EnvelopeLength() >= 4 {
		minX, minY, maxX, maxY = h.Envelope(0), h.Envelope(1), h.Envelope(2), h.Envelope(3)
	}

	raw, err := l.fgb.Search(minX, minY, maxX, maxY)
	if err != nil {
		return nil, fmt.Errorf("fgb: search %s: %w", l.path, err)
	}

	features := make([]featnum.Feature, 0, len(raw))
	for _, rf := range raw {
		if rf == nil {
			continue
		}

		var geomObj flattypes.Geometry
		geom := toOrb(rf.Geometry(&geomObj))

		var props geojson.Properties
		if n := rf.PropertiesLength(); n > 0 {
			data := make([]byte, n)
			for i := 0; i < n; i++ {
				data[i] = byte(rf.Properties(i))
			}
			props = decodeProps(data, h)
		}

		features = append(features, featnum.Feature{Geometry: geom, Properties: props})
	}
	return features, nil
}

// UpdateNumbering merges the assignments into the numbering column and
// rewrites the file. The rewrite lands in a temp file first and renames
// over the original, so a failed write leaves the file untouched.
func (l *Layer) UpdateNumbering(field, idField string, assignments []featnum.Assignment) error {
	if l.fgb == nil {
		return ErrClosed
	}
	if l.columnIndex(field) < 0 {
		return fmt.Errorf("%w: %q in %s", featnum.ErrFieldNotFound, field, l.Name())
	}
	if l.columnIndex(idField) < 0 {
		return fmt.Errorf("%w: %q in %s", featnum.ErrMissingIDField, idField, l.Name())
	}

	fields, err := l.Fields()
	if err != nil {
		return err
	}
	records, err := l.read(nil)
	if err != nil {
		return err
	}

	numbers := make(map[string]int, len(assignments))
	for _, a := range assignments {
		numbers[a.ID] = a.Number
	}

	matched := 0
	for _, rec := range records {
		id, ok := featnum.CanonicalID(rec.Properties[idField])
		if !ok {
			continue
		}
		if n, ok := numbers[id]; ok {
			rec.Properties[field] = n
			matched++
		}
	}
	if matched != len(numbers) {
		return fmt.Errorf("%w: %d of %d identifiers not found in %s",
			featnum.ErrWriteRejected, len(numbers)-matched, len(numbers), l.Name())
	}

	name := l.Name()
	srsID := l.srsID()

	tmp := l.path + ".tmp"
	if err := Create(tmp, name, srsID, fields, records); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", featnum.ErrWriteRejected, err)
	}

	// Drop the mapping of the old file before replacing it.
	l.fgb = nil
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", featnum.ErrWriteRejected, err)
	}

	reopened, err := flatgeobuf.New(l.path)
	if err != nil {
		return fmt.Errorf("fgb: reopen %s: %w", l.path, err)
	}
	l.fgb = reopened
	return nil
}

// srsID returns the file's CRS code, or 0 when none is recorded.
func (l *Layer) srsID() int32 {
	h := l.fgb.Header()
	if h == nil {
		return 0
	}
	var crs flattypes.Crs
	if h.Crs(&crs) == nil {
		return 0
	}
	return crs.Code()
}

// Close releases the layer. The underlying mapping is reclaimed by its
// finalizer once unreferenced.
func (l *Layer) Close() error {
	l.fgb = nil
	return nil
}

// Create writes features to a new FlatGeobuf file at path with a spatial
// index. srsID, when positive, is recorded as an EPSG CRS. Property
// values are taken from each feature's Properties by field name.
func Create(path, name string, srsID int32, fields []featnum.Field, features []featnum.Feature) error {
	builder := flatbuffers.NewBuilder(4096)

	header := writer.NewHeader(builder)
	header.SetGeometryType(commonGeometryType(features))
	if name != "" {
		header.SetName(name)
	}

	columns := make([]*writer.Column, 0, len(fields))
	for _, f := range fields {
		col := writer.NewColumn(builder)
		col.SetName(f.Name)
		col.SetTitle(f.Name)
		col.SetType(columnType(f.Type))
		col.SetNullable(true)
		columns = append(columns, col)
	}
	if len(columns) > 0 {
		header.SetColumns(columns)
	}

	if srsID > 0 {
		crs := writer.NewCrs(builder)
		crs.SetOrg("EPSG")
		crs.SetCode(srsID)
		header.SetCrs(crs)
	}

	gen := &featureGen{features: features, specs: columnSpecs(fields)}
	fgbWriter := writer.NewWriter(header, true, gen, nil)

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("fgb: create %s: %w", path, err)
	}
	if _, err := fgbWriter.Write(out); err != nil {
		out.Close()
		return fmt.Errorf("fgb: write %s: %w", path, err)
	}
	return out.Close()
}

// commonGeometryType returns the shared geometry type of features, or
// Unknown for a mixed set.
func commonGeometryType(features []featnum.Feature) flattypes.GeometryType {
	typ := flattypes.GeometryTypeUnknown
	for _, f := range features {
		if f.Geometry == nil {
			continue
		}
		t := geometryType(f.Geometry)
		if typ == flattypes.GeometryTypeUnknown {
			typ = t
		} else if t != typ {
			return flattypes.GeometryTypeUnknown
		}
	}
	return typ
}

// featureGen feeds features to the FlatGeobuf writer one at a time.
type featureGen struct {
	features []featnum.Feature
	specs    []columnSpec
	next     int
}

func (g *featureGen) Generate() *writer.Feature {
	for g.next < len(g.features) {
		f := g.features[g.next]
		g.next++

		if f.Geometry == nil {
			continue
		}
		builder := flatbuffers.NewBuilder(1024)
		geom := fromOrb(f.Geometry, builder)
		if geom == nil {
			continue
		}

		feature := writer.NewFeature(builder)
		feature.SetGeometry(geom)
		if props := encodeProps(f.Properties, g.specs); len(props) > 0 {
			feature.SetProperties(props)
		}
		return feature
	}
	return nil
}

var _ featnum.Layer = (*Layer)(nil)
