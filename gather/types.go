package gather

import "fmt"

// TypeCode is the raw 16-bit per-channel encoding tag from Gather.Type[i].
// Values 0..7 index the fixed scalar vocabulary below. Any larger value is a
// packed bit-field descriptor: the controller stores the full 32-bit register
// and the code says which bits of it the channel occupies. The high 5 bits
// give the starting bit number and bits 6-10 hold 32 minus the bit count.
//
// Servers forward these codes unmodified; interpreting them is a client
// concern.
type TypeCode uint16

// Scalar type codes.
const (
	TypeUint32 TypeCode = iota
	TypeInt32
	TypeUint24
	TypeInt24
	TypeFloat
	TypeDouble
	TypeUbits
	TypeSbits

	// NumScalarTypes is the size of the scalar vocabulary; codes at or
	// above this value are bit-field descriptors.
	NumScalarTypes
)

// Masks splitting a bit-field descriptor into its start and count parts.
const (
	startMask    = 0xF800
	bitCountMask = 0x07FF
)

var scalarNames = [NumScalarTypes]string{
	"uint32",
	"int32",
	"uint24",
	"int24",
	"float",
	"double",
	"ubits",
	"sbits",
}

// IsBitField reports whether the code is a packed bit-field descriptor
// rather than a scalar type.
func (tc TypeCode) IsBitField() bool {
	return tc >= NumScalarTypes
}

// BitField returns the starting bit and bit count of a packed bit-field
// descriptor. For Motor[x].AmpEna the controller reports $67c6: 1 bit
// starting at bit 12. Results are meaningless for scalar codes.
func (tc TypeCode) BitField() (start, count uint) {
	start = uint(tc&startMask) >> 11
	count = 32 - uint(tc&bitCountMask)>>6
	return start, count
}

// Size returns the storage width in bytes of one sample of this channel.
// Doubles take 8 bytes; every other type, including 24-bit integers and
// bit fields, occupies a full 32-bit word.
func (tc TypeCode) Size() int {
	if tc == TypeDouble {
		return 8
	}
	return 4
}

// Extract isolates a bit-field channel's value from the gathered 32-bit
// register. The gathered value is always the full register; the descriptor
// only says which part of it to keep.
func (tc TypeCode) Extract(word uint32) uint32 {
	start, count := tc.BitField()
	if count >= 32 {
		return word >> start
	}
	return (word >> start) & (1<<count - 1)
}

// String renders the code as a type name, or as a bit-field description
// for descriptor codes.
func (tc TypeCode) String() string {
	if !tc.IsBitField() {
		return scalarNames[tc]
	}
	start, count := tc.BitField()
	return fmt.Sprintf("%d bits @ %d", count, start)
}

// LineSize returns the number of bytes one sample row occupies for the
// given channel set.
func LineSize(types []TypeCode) int {
	var n int
	for _, tc := range types {
		n += tc.Size()
	}
	return n
}
