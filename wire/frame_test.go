package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gatherd/gather"
)

func mustSet(t *testing.T, types []gather.TypeCode, lineWords, samples uint32, buf []byte) *gather.MemSet {
	t.Helper()
	set, err := gather.NewMemSet(types, lineWords, samples, buf)
	require.NoError(t, err)
	return set
}

func TestSendAckExactBytes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SendAck(&buf))
	assert.Equal(t, []byte{0, 0, 0, 1, 'K'}, buf.Bytes())
}

func TestSendTypesScenario(t *testing.T) {
	// itemCount=2, typeCodes=[4,5] (float, double), lineWords=1, samples=3
	src := gather.NewMemSource(
		mustSet(t, []gather.TypeCode{gather.TypeFloat, gather.TypeDouble}, 1, 3, make([]byte, 12)),
		nil,
	)

	var buf bytes.Buffer
	hasItems, err := SendTypes(&buf, src, gather.Servo)
	require.NoError(t, err)
	assert.True(t, hasItems)

	assert.Equal(t, []byte{
		0, 0, 0, 6, // length = 1 + 2*2 + 1
		'T',
		2,    // itemCount
		0, 4, // float
		0, 5, // double
	}, buf.Bytes())
}

func TestSendTypesEmptySet(t *testing.T) {
	src := gather.NewMemSource(nil, nil)

	var buf bytes.Buffer
	hasItems, err := SendTypes(&buf, src, gather.Servo)
	require.NoError(t, err)
	assert.False(t, hasItems)

	assert.Equal(t, []byte{0, 0, 0, 2, 'T', 0}, buf.Bytes())
}

func TestSendDataScenario(t *testing.T) {
	raw := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	src := gather.NewMemSource(
		mustSet(t, []gather.TypeCode{gather.TypeFloat, gather.TypeDouble}, 1, 3, raw),
		nil,
	)

	var buf bytes.Buffer
	require.NoError(t, SendData(&buf, src, gather.Servo))

	want := append([]byte{
		0, 0, 0, 17, // length = 4 + 1*4*3 + 1
		'D',
		0, 0, 0, 3, // sampleCount
	}, raw...)
	assert.Equal(t, want, buf.Bytes())
}

func TestSendDataEmptySet(t *testing.T) {
	src := gather.NewMemSource(nil, nil)

	var buf bytes.Buffer
	require.NoError(t, SendData(&buf, src, gather.Phase))

	assert.Equal(t, []byte{0, 0, 0, 5, 'D', 0, 0, 0, 0}, buf.Bytes())
}

// tornSource reports more items than it has type codes and more samples
// than its buffer holds, like a live region caught mid-update.
type tornSource struct{}

func (tornSource) TypeInfo(gather.Mode) (uint8, []gather.TypeCode) {
	return 3, []gather.TypeCode{gather.TypeFloat}
}

func (tornSource) Data(gather.Mode) (uint32, uint32, []byte) {
	return 2, 1, []byte{0xAA, 0xBB} // want 8 bytes, have 2
}

func TestSendTypesTornSourceKeepsDeclaredShape(t *testing.T) {
	var buf bytes.Buffer
	hasItems, err := SendTypes(&buf, tornSource{}, gather.Servo)
	require.NoError(t, err)
	assert.True(t, hasItems)

	assert.Equal(t, []byte{
		0, 0, 0, 8,
		'T',
		3,
		0, 4, // the one real code
		0, 0, // missing codes zero-filled
		0, 0,
	}, buf.Bytes())
}

func TestSendDataTornSourceZeroPads(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SendData(&buf, tornSource{}, gather.Servo))

	assert.Equal(t, []byte{
		0, 0, 0, 13, // 4 + 1*4*2 + 1
		'D',
		0, 0, 0, 2,
		0xAA, 0xBB, 0, 0,
		0, 0, 0, 0,
	}, buf.Bytes())
}

// wildSource reports counts whose byte product overflows integer math,
// like a corrupt region descriptor slipping past a naive clamp.
type wildSource struct{}

func (wildSource) TypeInfo(gather.Mode) (uint8, []gather.TypeCode) {
	return 1, []gather.TypeCode{gather.TypeUint32}
}

func (wildSource) Data(gather.Mode) (uint32, uint32, []byte) {
	return 1 << 31, 1 << 30, nil
}

func TestSendDataBoundsWildCounts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SendData(&buf, wildSource{}, gather.Servo))

	// One line alone exceeds MaxFrameSize, so no rows fit the frame.
	assert.Equal(t, []byte{0, 0, 0, 5, 'D', 0, 0, 0, 0}, buf.Bytes())
}

func TestSendAbortsOnWriteFailure(t *testing.T) {
	src := gather.NewMemSource(
		mustSet(t, []gather.TypeCode{gather.TypeUint32}, 1, 1, make([]byte, 4)),
		nil,
	)

	w := &failAfterWriter{limit: 2} // dies inside the length prefix
	_, err := SendTypes(w, src, gather.Servo)
	require.Error(t, err)
	assert.Equal(t, 2, w.seen)
}

func TestReadFrameRoundTrip(t *testing.T) {
	src := gather.NewMemSource(
		mustSet(t, []gather.TypeCode{gather.TypeFloat, gather.TypeDouble}, 1, 3, make([]byte, 12)),
		nil,
	)

	var buf bytes.Buffer
	_, err := SendTypes(&buf, src, gather.Servo)
	require.NoError(t, err)

	tag, body, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, byte(TagType), tag)
	assert.Equal(t, []byte{2, 0, 4, 0, 5}, body)
}

func TestReadFrameAck(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SendAck(&buf))

	tag, body, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, byte('K'), tag)
	assert.Empty(t, body)
}

func TestReadFrameRejectsZeroLength(t *testing.T) {
	_, _, err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 0}))
	require.Error(t, err)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	_, _, err := ReadFrame(bytes.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFF}))
	require.Error(t, err)
}

func TestReadFrameShortPayload(t *testing.T) {
	_, _, err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 5, 'T'}))
	require.Error(t, err)
}
