package wire

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gatherd/errors"
)

// trickleWriter accepts at most max bytes per Write call, exercising the
// partial-write loop.
type trickleWriter struct {
	buf bytes.Buffer
	max int
}

func (w *trickleWriter) Write(p []byte) (int, error) {
	if len(p) > w.max {
		p = p[:w.max]
	}
	return w.buf.Write(p)
}

// failAfterWriter fails with a hard error once limit bytes have been taken.
type failAfterWriter struct {
	limit int
	seen  int
}

func (w *failAfterWriter) Write(p []byte) (int, error) {
	if w.seen >= w.limit {
		return 0, fmt.Errorf("connection reset by peer")
	}
	n := len(p)
	if w.seen+n > w.limit {
		n = w.limit - w.seen
	}
	w.seen += n
	return n, nil
}

func TestSendAllCompleteWrite(t *testing.T) {
	var buf bytes.Buffer
	data := []byte("the whole message")

	require.NoError(t, SendAll(&buf, data))
	assert.Equal(t, data, buf.Bytes())
}

func TestSendAllLoopsOverPartialWrites(t *testing.T) {
	w := &trickleWriter{max: 3}
	data := bytes.Repeat([]byte{0xA5}, 100)

	require.NoError(t, SendAll(w, data))
	assert.Equal(t, data, w.buf.Bytes())
}

func TestSendAllEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SendAll(&buf, nil))
	assert.Zero(t, buf.Len())
}

func TestSendAllHardFailure(t *testing.T) {
	w := &failAfterWriter{limit: 5}
	err := SendAll(w, make([]byte, 10))

	require.Error(t, err)
	assert.True(t, errors.IsTransient(err), "send failures are connection-local")
	assert.Equal(t, 5, w.seen, "no retry after a hard failure")
}
