package wire

import (
	"io"

	"github.com/c360/gatherd/errors"
)

// SendAll writes the whole slice to w, looping over partial writes until
// every byte is out or the underlying write fails. On failure the caller
// must treat the connection as broken: there are no retries across calls,
// and a hard failure aborts any frames not yet sent for the same command.
func SendAll(w io.Writer, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := w.Write(buf[total:])
		if err != nil {
			return errors.WrapTransient(err, "wire", "SendAll", "socket write")
		}
		if n <= 0 {
			return errors.WrapTransient(io.ErrShortWrite, "wire", "SendAll", "socket write")
		}
		total += n
	}
	return nil
}
