package client

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/c360/gatherd/errors"
	"github.com/c360/gatherd/gather"
)

// decodeWord turns one encoded channel value into a float64. Scalar codes
// map directly onto their machine representation; bit-field codes extract
// the addressed bits from the stored 32-bit word.
func decodeWord(tc gather.TypeCode, raw []byte) float64 {
	if tc == gather.TypeDouble {
		return math.Float64frombits(binary.BigEndian.Uint64(raw))
	}

	u := binary.BigEndian.Uint32(raw)
	if tc.IsBitField() {
		return float64(tc.Extract(u))
	}

	switch tc {
	case gather.TypeInt32, gather.TypeSbits:
		return float64(int32(u))
	case gather.TypeUint24:
		return float64(u & 0x00FFFFFF)
	case gather.TypeInt24:
		// Sign extend from bit 23.
		return float64(int32(u<<8) >> 8)
	case gather.TypeFloat:
		return float64(math.Float32frombits(u))
	default: // TypeUint32, TypeUbits
		return float64(u)
	}
}

// Rows decodes raw capture bytes into one slice per sample, each holding
// the decoded value of every channel in capture order. Trailing bytes that
// do not fill a whole row are discarded.
func Rows(types []gather.TypeCode, raw []byte) ([][]float64, error) {
	rowSize := gather.LineSize(types)
	if rowSize == 0 {
		return nil, nil
	}
	if len(types) > 0 && rowSize > len(raw) && len(raw) > 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("raw data is %d bytes, shorter than one %d-byte row", len(raw), rowSize),
			"client", "Rows", "decode")
	}

	rows := make([][]float64, 0, len(raw)/rowSize)
	for off := 0; off+rowSize <= len(raw); off += rowSize {
		row := make([]float64, len(types))
		p := off
		for i, tc := range types {
			row[i] = decodeWord(tc, raw[p:p+tc.Size()])
			p += tc.Size()
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Columns decodes raw capture bytes into one slice per channel, which is
// the layout plotting and analysis tools want.
func Columns(types []gather.TypeCode, raw []byte) ([][]float64, error) {
	rows, err := Rows(types, raw)
	if err != nil {
		return nil, err
	}

	cols := make([][]float64, len(types))
	for i := range cols {
		cols[i] = make([]float64, len(rows))
	}
	for r, row := range rows {
		for c, v := range row {
			cols[c][r] = v
		}
	}
	return cols, nil
}
