package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/c360/gatherd/errors"
)

// MaxFrameSize bounds how large a declared frame a reader will accept.
// The historical client trusted the length field blindly; a bounds-checked
// reimplementation refuses lengths no real gather buffer can reach rather
// than allocating them.
const MaxFrameSize = 1 << 28

// ReadFrame reads one frame: the big-endian length prefix, then that many
// payload bytes. The first payload byte is returned as the tag ('T', 'D',
// 'K', or 'E') and the rest as the body.
func ReadFrame(r io.Reader) (tag byte, body []byte, err error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return 0, nil, errors.WrapTransient(err, "wire", "ReadFrame", "read length prefix")
	}

	n := binary.BigEndian.Uint32(length[:])
	if n == 0 {
		return 0, nil, errors.WrapInvalid(fmt.Errorf("zero-length frame"),
			"wire", "ReadFrame", "length validation")
	}
	if n > MaxFrameSize {
		return 0, nil, errors.WrapInvalid(fmt.Errorf("declared frame length %d exceeds %d", n, MaxFrameSize),
			"wire", "ReadFrame", "length validation")
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, errors.WrapTransient(err, "wire", "ReadFrame", "read payload")
	}
	return payload[0], payload[1:], nil
}
