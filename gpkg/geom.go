package gpkg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// GeoPackage geometry blobs are a fixed header followed by standard WKB:
// magic "GP", a version byte, a flags byte (header byte order, envelope
// indicator, empty flag), the srs_id, and an optional envelope.
const (
	magic0 = 0x47 // 'G'
	magic1 = 0x50 // 'P'

	flagByteOrderLE = 0x01
	flagEmpty       = 0x10
)

// ErrBadBlob is returned when a geometry blob does not carry a valid
// GeoPackage header.
var ErrBadBlob = errors.New("gpkg: invalid geometry blob")

// envelopeSize returns the number of float64 values the envelope indicator
// announces.
func envelopeSize(indicator byte) (int, error) {
	switch indicator {
	case 0:
		return 0, nil
	case 1: // XY
		return 4, nil
	case 2, 3: // XYZ or XYM
		return 6, nil
	case 4: // XYZM
		return 8, nil
	}
	return 0, fmt.Errorf("%w: envelope indicator %d", ErrBadBlob, indicator)
}

// EncodeGeometry wraps g in a GeoPackage binary header with the given
// srs_id. The header is little-endian with an XY envelope, the payload
// standard WKB.
func EncodeGeometry(g orb.Geometry, srsID int32) ([]byte, error) {
	if g == nil {
		blob := make([]byte, 8)
		blob[0] = magic0
		blob[1] = magic1
		blob[3] = flagByteOrderLE | flagEmpty
		binary.LittleEndian.PutUint32(blob[4:8], uint32(srsID))
		return blob, nil
	}

	payload, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("gpkg: encode geometry: %w", err)
	}

	bound := g.Bound()
	blob := make([]byte, 8+4*8, 8+4*8+len(payload))
	blob[0] = magic0
	blob[1] = magic1
	blob[2] = 0 // version
	blob[3] = flagByteOrderLE | 1<<1
	binary.LittleEndian.PutUint32(blob[4:8], uint32(srsID))
	for i, v := range []float64{bound.Min[0], bound.Max[0], bound.Min[1], bound.Max[1]} {
		binary.LittleEndian.PutUint64(blob[8+i*8:], math.Float64bits(v))
	}

	return append(blob, payload...), nil
}

// DecodeGeometry parses a GeoPackage geometry blob. A blob flagged empty
// decodes to a nil geometry.
func DecodeGeometry(blob []byte) (orb.Geometry, int32, error) {
	if len(blob) < 8 || blob[0] != magic0 || blob[1] != magic1 {
		return nil, 0, ErrBadBlob
	}

	flags := blob[3]
	order := binary.ByteOrder(binary.BigEndian)
	if flags&flagByteOrderLE != 0 {
		order = binary.LittleEndian
	}
	srsID := int32(order.Uint32(blob[4:8]))

	envLen, err := envelopeSize(flags >> 1 & 0x07)
	if err != nil {
		return nil, 0, err
	}

	offset := 8 + envLen*8
	if len(blob) < offset {
		return nil, 0, ErrBadBlob
	}

	if flags&flagEmpty != 0 {
		return nil, srsID, nil
	}

	g, err := wkb.Unmarshal(blob[offset:])
	if err != nil {
		return nil, 0, fmt.Errorf("gpkg: decode geometry: %w", err)
	}
	return g, srsID, nil
}
