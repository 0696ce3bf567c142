package server

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gatherd/errors"
	"github.com/c360/gatherd/gather"
	"github.com/c360/gatherd/metric"
	"github.com/c360/gatherd/wire"
)

func startServer(t *testing.T, cfg Config, src gather.Source) *Server {
	t.Helper()

	if cfg.Bind == "" {
		cfg.Bind = "127.0.0.1"
	}
	srv := New(cfg, Deps{Source: src})
	require.NoError(t, srv.Initialize())
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop(2 * time.Second) })
	return srv
}

func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestInitializeRequiresSource(t *testing.T) {
	srv := New(DefaultConfig(), Deps{})
	err := srv.Initialize()
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestInitializeRejectsBadPort(t *testing.T) {
	srv := New(Config{Port: 70000}, Deps{Source: gather.NewMemSource(nil, nil)})
	err := srv.Initialize()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestStartFailsOnOccupiedPort(t *testing.T) {
	first := startServer(t, Config{Port: 0}, testSource(t))
	port := first.Addr().(*net.TCPAddr).Port

	second := New(Config{Bind: "127.0.0.1", Port: port}, Deps{Source: testSource(t)})
	require.NoError(t, second.Initialize())
	err := second.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestServerEndToEnd(t *testing.T) {
	srv := startServer(t, Config{Port: 0}, testSource(t))
	conn := dial(t, srv)

	_, err := conn.Write([]byte("types\n"))
	require.NoError(t, err)

	tag, body, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	assert.Equal(t, byte(wire.TagType), tag)
	assert.Equal(t, []byte{2, 0, 4, 0, 5}, body)
}

func TestServerConcurrentSessionsAreIndependent(t *testing.T) {
	srv := startServer(t, Config{Port: 0}, testSource(t))

	first := dial(t, srv)
	second := dial(t, srv)

	// Put the two sessions in different modes.
	_, err := first.Write([]byte("phase\n"))
	require.NoError(t, err)
	_, _, err = wire.ReadFrame(first)
	require.NoError(t, err)

	// Kill the first connection mid-session; the second must be unaffected.
	require.NoError(t, first.Close())

	_, err = second.Write([]byte("data\n"))
	require.NoError(t, err)
	tag, body, err := wire.ReadFrame(second)
	require.NoError(t, err)
	assert.Equal(t, byte(wire.TagData), tag)
	assert.Equal(t, []byte{0, 0, 0, 3}, body[:4], "second session still reads servo data")
}

func TestServerSessionLimit(t *testing.T) {
	srv := startServer(t, Config{Port: 0, MaxSessions: 1}, testSource(t))

	keeper := dial(t, srv)
	_, err := keeper.Write([]byte("servo\n"))
	require.NoError(t, err)
	_, _, err = wire.ReadFrame(keeper)
	require.NoError(t, err)

	// The second connection is accepted by the kernel but closed by the
	// supervisor without a session.
	rejected := dial(t, srv)
	require.NoError(t, rejected.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1)
	_, err = rejected.Read(buf)
	assert.Error(t, err, "supervisor must close over-limit connections")

	// Releasing the slot lets a new client in.
	require.NoError(t, keeper.Close())
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", srv.Addr().String())
		if err != nil {
			return false
		}
		defer func() { _ = conn.Close() }()
		if _, err := conn.Write([]byte("servo\n")); err != nil {
			return false
		}
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		ack := make([]byte, 5)
		_, err = io.ReadFull(conn, ack)
		return err == nil
	}, 3*time.Second, 50*time.Millisecond)
}

func TestServerStopClosesSessions(t *testing.T) {
	srv := startServer(t, Config{Port: 0}, testSource(t))
	conn := dial(t, srv)

	// Session is idle, blocked in Read with no deadline.
	require.NoError(t, srv.Stop(2*time.Second))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1)
	_, err := conn.Read(buf)
	assert.Error(t, err, "server-side close must reach the peer")
}

func TestServerStopDrainsWithRacingConnections(t *testing.T) {
	srv := startServer(t, Config{Port: 0, MaxSessions: 64}, testSource(t))
	addr := srv.Addr().String()

	// Dial as fast as possible while Stop runs, so some connections land
	// between the listener sweep and their session starting up. Every one
	// of them must still be closed server-side, or the drain would hang on
	// a session blocked in Read.
	var mu sync.Mutex
	var conns []net.Conn
	dialsDone := make(chan struct{})
	go func() {
		defer close(dialsDone)
		for {
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, srv.Stop(2*time.Second), "drain must not wait on straggler sessions")
	<-dialsDone

	mu.Lock()
	defer mu.Unlock()
	for _, conn := range conns {
		_ = conn.Close()
	}
}

func TestServerStopIdempotent(t *testing.T) {
	srv := startServer(t, Config{Port: 0}, testSource(t))
	require.NoError(t, srv.Stop(time.Second))
	require.NoError(t, srv.Stop(time.Second))
}

func TestServerStartIdempotent(t *testing.T) {
	srv := startServer(t, Config{Port: 0}, testSource(t))
	require.NoError(t, srv.Start(context.Background()))
}

func TestServerWithMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	srv := New(Config{Bind: "127.0.0.1", Port: 0}, Deps{
		Source:          testSource(t),
		MetricsRegistry: registry,
	})
	require.NoError(t, srv.Initialize())
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop(2 * time.Second) })

	conn := dial(t, srv)
	_, err := conn.Write([]byte("types\n"))
	require.NoError(t, err)
	_, _, err = wire.ReadFrame(conn)
	require.NoError(t, err)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["gatherd_server_connections_accepted_total"])
	assert.True(t, names["gatherd_server_commands_total"])
	assert.True(t, names["gatherd_server_bytes_sent_total"])
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 2332, cfg.Port)
	assert.Equal(t, DefaultMaxSessions, cfg.MaxSessions)
	assert.Equal(t, "0.0.0.0", cfg.Bind)
}
