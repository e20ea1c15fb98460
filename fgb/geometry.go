package fgb

import (
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
)

// fromOrb converts an orb geometry to its FlatGeobuf writer form.
// Geometry types a feature layer cannot store return nil.
func fromOrb(geom orb.Geometry, builder *flatbuffers.Builder) *writer.Geometry {
	g := writer.NewGeometry(builder)

	switch v := geom.(type) {
	case orb.Point:
		g.SetType(flattypes.GeometryTypePoint)
		g.SetXY([]float64{v[0], v[1]})

	case orb.MultiPoint:
		g.SetType(flattypes.GeometryTypeMultiPoint)
		xy, _ := packParts([][]orb.Point{v})
		g.SetXY(xy)

	case orb.LineString:
		g.SetType(flattypes.GeometryTypeLineString)
		xy, _ := packParts([][]orb.Point{v})
		g.SetXY(xy)

	case orb.MultiLineString:
		g.SetType(flattypes.GeometryTypeMultiLineString)
		xy, ends := packParts(lineParts(v))
		g.SetXY(xy)
		g.SetEnds(ends)

	case orb.Polygon:
		g.SetType(flattypes.GeometryTypePolygon)
		xy, ends := packParts(ringParts(v))
		g.SetXY(xy)
		g.SetEnds(ends)

	case orb.MultiPolygon:
		g.SetType(flattypes.GeometryTypeMultiPolygon)
		parts := make([]writer.Geometry, 0, len(v))
		for _, poly := range v {
			pg := writer.NewGeometry(builder)
			pg.SetType(flattypes.GeometryTypePolygon)
			xy, ends := packParts(ringParts(poly))
			pg.SetXY(xy)
			pg.SetEnds(ends)
			parts = append(parts, *pg)
		}
		g.SetParts(parts)

	default:
		return nil
	}

	return g
}

// geometryType reports the FlatGeobuf geometry type of an orb geometry.
func geometryType(geom orb.Geometry) flattypes.GeometryType {
	switch geom.(type) {
	case orb.Point:
		return flattypes.GeometryTypePoint
	case orb.MultiPoint:
		return flattypes.GeometryTypeMultiPoint
	case orb.LineString:
		return flattypes.GeometryTypeLineString
	case orb.MultiLineString:
		return flattypes.GeometryTypeMultiLineString
	case orb.Polygon:
		return flattypes.GeometryTypePolygon
	case orb.MultiPolygon:
		return flattypes.GeometryTypeMultiPolygon
	default:
		return flattypes.GeometryTypeUnknown
	}
}

// toOrb converts a FlatGeobuf geometry to orb.
func toOrb(g *flattypes.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}

	switch g.Type() {
	case flattypes.GeometryTypePoint:
		pts := unpackPoints(g)
		if len(pts) == 0 {
			return nil
		}
		return pts[0]

	case flattypes.GeometryTypeMultiPoint:
		return orb.MultiPoint(unpackPoints(g))

	case flattypes.GeometryTypeLineString:
		return orb.LineString(unpackPoints(g))

	case flattypes.GeometryTypeMultiLineString:
		parts := unpackParts(g)
		mls := make(orb.MultiLineString, len(parts))
		for i, p := range parts {
			mls[i] = orb.LineString(p)
		}
		return mls

	case flattypes.GeometryTypePolygon:
		parts := unpackParts(g)
		poly := make(orb.Polygon, len(parts))
		for i, p := range parts {
			poly[i] = orb.Ring(p)
		}
		return poly

	case flattypes.GeometryTypeMultiPolygon:
		n := g.PartsLength()
		mp := make(orb.MultiPolygon, 0, n)
		for i := 0; i < n; i++ {
			var part flattypes.Geometry
			if !g.Parts(&part, i) {
				continue
			}
			if poly, ok := toOrb(&part).(orb.Polygon); ok && len(poly) > 0 {
				mp = append(mp, poly)
			}
		}
		return mp

	default:
		return nil
	}
}

// packParts flattens coordinate parts into the xy array and cumulative
// ends array FlatGeobuf expects.
func packParts(parts [][]orb.Point) ([]float64, []uint32) {
	total := 0
	for _, p := range parts {
		total += len(p)
	}

	xy := make([]float64, 0, total*2)
	ends := make([]uint32, 0, len(parts))
	cum := uint32(0)
	for _, part := range parts {
		for _, p := range part {
			xy = append(xy, p[0], p[1])
		}
		cum += uint32(len(part))
		ends = append(ends, cum)
	}
	return xy, ends
}

func lineParts(mls orb.MultiLineString) [][]orb.Point {
	parts := make([][]orb.Point, len(mls))
	for i, ls := range mls {
		parts[i] = ls
	}
	return parts
}

func ringParts(poly orb.Polygon) [][]orb.Point {
	parts := make([][]orb.Point, len(poly))
	for i, r := range poly {
		parts[i] = r
	}
	return parts
}

// unpackPoints reads the geometry's flat xy array as points.
func unpackPoints(g *flattypes.Geometry) []orb.Point {
	n := g.XyLength() / 2
	pts := make([]orb.Point, 0, n)
	for i := 0; i < n; i++ {
		pts = append(pts, orb.Point{g.Xy(i * 2), g.Xy(i*2 + 1)})
	}
	return pts
}

// unpackParts splits the flat xy array at the ends markers. Without an
// ends array all points form a single part.
func unpackParts(g *flattypes.Geometry) [][]orb.Point {
	pts := unpackPoints(g)
	n := g.EndsLength()
	if n == 0 {
		if len(pts) == 0 {
			return nil
		}
		return [][]orb.Point{pts}
	}

	parts := make([][]orb.Point, 0, n)
	start := uint32(0)
	for i := 0; i < n; i++ {
		end := g.Ends(i)
		if end > uint32(len(pts)) {
			end = uint32(len(pts))
		}
		if end > start {
			parts = append(parts, pts[start:end])
		}
		start = end
	}
	return parts
}
