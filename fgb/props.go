package fgb

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb/geojson"

	"github.com/gisops/featnum"
)

// columnSpec is one property column of a file being written: its name and
// declared FlatGeobuf type, at its schema position.
type columnSpec struct {
	name string
	typ  flattypes.ColumnType
}

func columnSpecs(fields []featnum.Field) []columnSpec {
	specs := make([]columnSpec, len(fields))
	for i, f := range fields {
		specs[i] = columnSpec{name: f.Name, typ: columnType(f.Type)}
	}
	return specs
}

// columnType maps a portable field type to its FlatGeobuf column type.
func columnType(t featnum.FieldType) flattypes.ColumnType {
	switch t {
	case featnum.FieldBool:
		return flattypes.ColumnTypeBool
	case featnum.FieldShort:
		return flattypes.ColumnTypeShort
	case featnum.FieldInteger:
		return flattypes.ColumnTypeInt
	case featnum.FieldLong:
		return flattypes.ColumnTypeLong
	case featnum.FieldFloat:
		return flattypes.ColumnTypeFloat
	case featnum.FieldDouble:
		return flattypes.ColumnTypeDouble
	case featnum.FieldDate:
		return flattypes.ColumnTypeDateTime
	case featnum.FieldBinary:
		return flattypes.ColumnTypeBinary
	default:
		return flattypes.ColumnTypeString
	}
}

// fieldTypeOf maps a FlatGeobuf column type back to the portable names.
func fieldTypeOf(t flattypes.ColumnType) featnum.FieldType {
	switch t {
	case flattypes.ColumnTypeBool:
		return featnum.FieldBool
	case flattypes.ColumnTypeByte, flattypes.ColumnTypeUByte, flattypes.ColumnTypeShort, flattypes.ColumnTypeUShort:
		return featnum.FieldShort
	case flattypes.ColumnTypeInt, flattypes.ColumnTypeUInt:
		return featnum.FieldInteger
	case flattypes.ColumnTypeLong, flattypes.ColumnTypeULong:
		return featnum.FieldLong
	case flattypes.ColumnTypeFloat:
		return featnum.FieldFloat
	case flattypes.ColumnTypeDouble:
		return featnum.FieldDouble
	case flattypes.ColumnTypeDateTime:
		return featnum.FieldDate
	case flattypes.ColumnTypeBinary:
		return featnum.FieldBinary
	default:
		return featnum.FieldString
	}
}

// encodeProps encodes property values against the column schema. The wire
// format is a repeated [uint16 column index][value] sequence, values laid
// out by the column's declared type. Columns are visited in schema order
// so the output is deterministic; absent and nil values are omitted.
func encodeProps(props geojson.Properties, specs []columnSpec) []byte {
	if len(props) == 0 || len(specs) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for i, spec := range specs {
		v, ok := props[spec.name]
		if !ok || v == nil {
			continue
		}
		var idx [2]byte
		binary.LittleEndian.PutUint16(idx[:], uint16(i))
		buf.Write(idx[:])
		writeValue(&buf, v, spec.typ)
	}
	return buf.Bytes()
}

// writeValue writes one value in the layout of its declared column type,
// coercing numeric values as needed.
func writeValue(buf *bytes.Buffer, v interface{}, typ flattypes.ColumnType) {
	switch typ {
	case flattypes.ColumnTypeBool:
		b := byte(0)
		if t, _ := v.(bool); t {
			b = 1
		}
		buf.WriteByte(b)

	case flattypes.ColumnTypeByte, flattypes.ColumnTypeUByte:
		buf.WriteByte(byte(asInt64(v)))

	case flattypes.ColumnTypeShort, flattypes.ColumnTypeUShort:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(asInt64(v)))
		buf.Write(b[:])

	case flattypes.ColumnTypeInt, flattypes.ColumnTypeUInt:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(asInt64(v)))
		buf.Write(b[:])

	case flattypes.ColumnTypeLong, flattypes.ColumnTypeULong:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(asInt64(v)))
		buf.Write(b[:])

	case flattypes.ColumnTypeFloat:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(float32(asFloat64(v))))
		buf.Write(b[:])

	case flattypes.ColumnTypeDouble:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(asFloat64(v)))
		buf.Write(b[:])

	case flattypes.ColumnTypeBinary:
		raw, _ := v.([]byte)
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(len(raw)))
		buf.Write(b[:])
		buf.Write(raw)

	default: // String, DateTime, Json: null-terminated text
		buf.WriteString(asString(v))
		buf.WriteByte(0)
	}
}

// decodeProps decodes a feature's property bytes against the file header's
// column schema.
func decodeProps(data []byte, header *flattypes.Header) geojson.Properties {
	if len(data) == 0 || header == nil {
		return nil
	}

	props := make(geojson.Properties)
	offset := 0
	for offset+2 <= len(data) {
		idx := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2

		var col flattypes.Column
		if idx >= header.ColumnsLength() || !header.Columns(&col, idx) {
			break
		}

		value, n := readValue(data[offset:], col.Type())
		if n == 0 {
			break
		}
		offset += n
		props[string(col.Name())] = value
	}
	return props
}

// readValue reads one value of the given column type, returning the value
// and the number of bytes consumed. Zero bytes consumed means the data is
// truncated.
func readValue(data []byte, typ flattypes.ColumnType) (interface{}, int) {
	switch typ {
	case flattypes.ColumnTypeBool:
		if len(data) < 1 {
			return nil, 0
		}
		return data[0] != 0, 1

	case flattypes.ColumnTypeByte:
		if len(data) < 1 {
			return nil, 0
		}
		return int8(data[0]), 1

	case flattypes.ColumnTypeUByte:
		if len(data) < 1 {
			return nil, 0
		}
		return data[0], 1

	case flattypes.ColumnTypeShort:
		if len(data) < 2 {
			return nil, 0
		}
		return int16(binary.LittleEndian.Uint16(data)), 2

	case flattypes.ColumnTypeUShort:
		if len(data) < 2 {
			return nil, 0
		}
		return binary.LittleEndian.Uint16(data), 2

	case flattypes.ColumnTypeInt:
		if len(data) < 4 {
			return nil, 0
		}
		return int32(binary.LittleEndian.Uint32(data)), 4

	case flattypes.ColumnTypeUInt:
		if len(data) < 4 {
			return nil, 0
		}
		return binary.LittleEndian.Uint32(data), 4

	case flattypes.ColumnTypeLong:
		if len(data) < 8 {
			return nil, 0
		}
		return int64(binary.LittleEndian.Uint64(data)), 8

	case flattypes.ColumnTypeULong:
		if len(data) < 8 {
			return nil, 0
		}
		return binary.LittleEndian.Uint64(data), 8

	case flattypes.ColumnTypeFloat:
		if len(data) < 4 {
			return nil, 0
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(data)), 4

	case flattypes.ColumnTypeDouble:
		if len(data) < 8 {
			return nil, 0
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), 8

	case flattypes.ColumnTypeBinary:
		if len(data) < 4 {
			return nil, 0
		}
		n := int(binary.LittleEndian.Uint32(data))
		if len(data) < 4+n {
			return nil, 0
		}
		return data[4 : 4+n], 4 + n

	default: // String, DateTime, Json
		end := bytes.IndexByte(data, 0)
		if end == -1 {
			return string(data), len(data)
		}
		return string(data[:end]), end + 1
	}
}

// Numeric coercions for values arriving as generic property types.

func asInt64(v interface{}) int64 {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case int64:
		return val
	case uint:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return int64(val)
	case float64:
		return int64(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
	}
	return 0
}

func asFloat64(v interface{}) float64 {
	switch val := v.(type) {
	case float32:
		return float64(val)
	case float64:
		return val
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return 0
	default:
		return float64(asInt64(v))
	}
}

func asString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
