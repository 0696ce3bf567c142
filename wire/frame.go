package wire

import (
	"encoding/binary"
	"io"

	"github.com/c360/gatherd/gather"
)

// Frame tags. Acknowledgments are untagged: their payload is just "K".
const (
	TagType = 'T'
	TagData = 'D'
	// TagError is reserved in the protocol for server-side errors; the
	// server never sends it, but clients must recognize it.
	TagError = 'E'
)

// AckPayload is the mode-switch acknowledgment payload.
const AckPayload = "K"

// sendFrame writes one frame as the two writes the protocol promises: the
// big-endian length prefix, then the payload.
func sendFrame(w io.Writer, payload []byte) error {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(payload)))
	if err := SendAll(w, length[:]); err != nil {
		return err
	}
	return SendAll(w, payload)
}

// SendAck sends the mode-switch acknowledgment: length 1, payload "K".
func SendAck(w io.Writer) error {
	return sendFrame(w, []byte(AckPayload))
}

// SendTypes builds and sends a type frame from the selected buffer set,
// read at call time. It reports whether the set has any items; the "all"
// command uses that to decide whether a data frame follows.
//
// Payload: tag 'T', uint8 itemCount, itemCount big-endian uint16 codes.
// The declared length is 1 + 2*itemCount + 1 for the tag byte.
func SendTypes(w io.Writer, src gather.Source, m gather.Mode) (bool, error) {
	items, types := src.TypeInfo(m)

	payload := make([]byte, 2+2*int(items))
	payload[0] = TagType
	payload[1] = items
	for i := 0; i < int(items); i++ {
		// A torn source may hand back fewer codes than items; missing
		// entries stay zero so the frame keeps its declared shape.
		if i < len(types) {
			binary.BigEndian.PutUint16(payload[2+2*i:], uint16(types[i]))
		}
	}

	if err := sendFrame(w, payload); err != nil {
		return false, err
	}
	return items > 0, nil
}

// SendData builds and sends a data frame from the selected buffer set, read
// at call time. It always sends, even for an empty set: a zero sample count
// with no raw bytes is a well-formed frame.
//
// Payload: tag 'D', big-endian uint32 sampleCount, then lineWords*4*
// sampleCount raw buffer bytes forwarded untouched.
func SendData(w io.Writer, src gather.Source, m gather.Mode) error {
	samples, lineWords, buf := src.Data(m)

	// A source caught mid-update can hand back wild counts. A frame above
	// MaxFrameSize could never be read back, so bound the sample count
	// there; the math stays in uint64 so the product cannot wrap.
	lineBytes := uint64(lineWords) * 4
	if lineBytes > 0 && uint64(samples) > (MaxFrameSize-5)/lineBytes {
		samples = uint32((MaxFrameSize - 5) / lineBytes)
	}
	raw := int(lineBytes) * int(samples)
	payload := make([]byte, 5+raw)
	payload[0] = TagData
	binary.BigEndian.PutUint32(payload[1:5], samples)
	// A short source buffer leaves the tail zeroed rather than shrinking
	// the frame below its declared length.
	copy(payload[5:], buf)

	return sendFrame(w, payload)
}
