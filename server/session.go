package server

import (
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/c360/gatherd/gather"
	"github.com/c360/gatherd/wire"
)

// readBufSize bounds one read from the client. Commands are short fixed
// keywords; the historical server used the same 100-byte buffer, reading at
// most 99 bytes of it. Longer input is truncated by the bounded read and
// then ignored as an unrecognized command. Each read is parsed as one
// command attempt; there is no line assembly across reads.
const readBufSize = 100

// session runs the per-connection command loop. The servo/phase mode is an
// orthogonal flag, not a protocol state: the loop always waits for the next
// command, and mode only selects which buffer set the frame builders read.
type session struct {
	id      string
	conn    net.Conn
	w       io.Writer
	src     gather.Source
	mode    gather.Mode
	logger  *slog.Logger
	metrics *Metrics
}

// meteredWriter counts response bytes as they leave.
type meteredWriter struct {
	conn    net.Conn
	metrics *Metrics
}

func (w meteredWriter) Write(p []byte) (int, error) {
	n, err := w.conn.Write(p)
	if w.metrics != nil && n > 0 {
		w.metrics.bytesSent.Add(float64(n))
	}
	return n, err
}

func newSession(conn net.Conn, src gather.Source, logger *slog.Logger, metrics *Metrics) *session {
	id := uuid.NewString()
	return &session{
		id:      id,
		conn:    conn,
		w:       meteredWriter{conn: conn, metrics: metrics},
		src:     src,
		mode:    gather.Servo,
		logger:  logger.With("conn_id", id, "remote", conn.RemoteAddr().String()),
		metrics: metrics,
	}
}

// run reads commands until the peer closes or a read fails, then releases
// the connection. Frames for one command are fully sent before the next
// command is read, so responses never interleave on the socket.
func (s *session) run() {
	defer func() { _ = s.conn.Close() }()

	s.logger.Info("client connected")

	buf := make([]byte, readBufSize)
	for {
		n, err := s.conn.Read(buf[:readBufSize-1])
		if err != nil || n <= 0 {
			s.logger.Info("client closed", "error", errText(err))
			return
		}

		cmd := stripCommand(buf[:n])
		if err := s.dispatch(cmd); err != nil {
			if s.metrics != nil {
				s.metrics.sendErrors.Inc()
			}
			s.logger.Warn("send failed, dropping connection", "command", cmd, "error", err)
			return
		}
	}
}

// dispatch runs one command. Unrecognized input, including an empty line,
// produces no reply and keeps the session alive.
func (s *session) dispatch(cmd string) error {
	start := time.Now()
	var err error

	switch cmd {
	case "phase":
		s.mode = gather.Phase
		s.countCommand("phase")
		err = wire.SendAck(s.w)
		s.countFrame("ack", err)
		s.logger.Info("phase mode")

	case "servo":
		s.mode = gather.Servo
		s.countCommand("servo")
		err = wire.SendAck(s.w)
		s.countFrame("ack", err)
		s.logger.Info("servo mode")

	case "types":
		s.countCommand("types")
		_, err = wire.SendTypes(s.w, s.src, s.mode)
		s.countFrame("type", err)
		s.logger.Debug("types request", "mode", s.mode.String())

	case "data":
		s.countCommand("data")
		err = wire.SendData(s.w, s.src, s.mode)
		s.countFrame("data", err)
		s.logger.Debug("data request", "mode", s.mode.String())

	case "all":
		s.countCommand("all")
		var hasItems bool
		hasItems, err = wire.SendTypes(s.w, s.src, s.mode)
		s.countFrame("type", err)
		if err == nil && hasItems {
			err = wire.SendData(s.w, s.src, s.mode)
			s.countFrame("data", err)
		}
		s.logger.Debug("all request", "mode", s.mode.String(), "has_items", hasItems)

	default:
		s.countCommand("other")
		return nil
	}

	if s.metrics != nil {
		s.metrics.commandDuration.Observe(time.Since(start).Seconds())
	}
	return err
}

func (s *session) countCommand(command string) {
	if s.metrics == nil {
		return
	}
	s.metrics.commands.WithLabelValues(command).Inc()
}

// countFrame records a sent frame. An aborted send is not a sent frame; it
// shows up in send_errors instead.
func (s *session) countFrame(kind string, err error) {
	if s.metrics == nil || err != nil {
		return
	}
	s.metrics.framesSent.WithLabelValues(kind).Inc()
}

// stripCommand returns the text before the first LF, CR, or NUL. A chunk
// with no terminator is taken whole, which truncates over-long input into
// an unknown command rather than overrunning anything.
func stripCommand(b []byte) string {
	for i, c := range b {
		if c == '\n' || c == '\r' || c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func errText(err error) string {
	if err == nil {
		return "eof"
	}
	return err.Error()
}
