// Package server implements the gather data TCP server: a connection
// supervisor that accepts clients and runs one independent session
// goroutine per connection, each streaming telemetry frames built from a
// shared read-only gather source.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/c360/gatherd/errors"
	"github.com/c360/gatherd/gather"
	"github.com/c360/gatherd/metric"
)

const (
	// DefaultPort is the historical gather server port.
	DefaultPort = 2332

	// DefaultMaxSessions caps concurrent sessions. The original design
	// targeted a few clients at a time (its listen backlog was 1); Go's
	// net package does not expose the backlog, so the same intent is
	// kept as a small concurrent-session bound.
	DefaultMaxSessions = 4
)

// Config holds the server's listen settings.
type Config struct {
	Bind        string `json:"bind"`
	Port        int    `json:"port"`
	MaxSessions int    `json:"max_sessions"`
}

// DefaultConfig returns the historical defaults.
func DefaultConfig() Config {
	return Config{
		Bind:        "0.0.0.0",
		Port:        DefaultPort,
		MaxSessions: DefaultMaxSessions,
	}
}

// Deps holds runtime dependencies for the server.
type Deps struct {
	Source          gather.Source           // Required telemetry handle
	MetricsRegistry *metric.MetricsRegistry // Optional
	Logger          *slog.Logger            // Optional
}

// Server owns the listening socket and supervises sessions. Sessions share
// nothing mutable with each other or with the accept loop; their only
// common dependency is the read-only gather source.
type Server struct {
	bind        string
	port        int
	maxSessions int

	src     gather.Source
	logger  *slog.Logger
	metrics *Metrics
	sem     *semaphore.Weighted

	mu       sync.Mutex
	listener net.Listener
	conns    map[string]net.Conn
	shutdown chan struct{}
	wg       sync.WaitGroup
	running  atomic.Bool
}

// New creates a server from config and dependencies.
func New(cfg Config, deps Deps) *Server {
	maxSessions := cfg.MaxSessions
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "server")

	return &Server{
		bind:        cfg.Bind,
		port:        cfg.Port,
		maxSessions: maxSessions,
		src:         deps.Source,
		logger:      logger,
		metrics:     newMetrics(deps.MetricsRegistry),
		sem:         semaphore.NewWeighted(int64(maxSessions)),
		conns:       make(map[string]net.Conn),
	}
}

// Initialize validates configuration and dependencies before Start. A
// missing telemetry source is fatal: the server has no degraded mode
// without it.
func (s *Server) Initialize() error {
	if s.src == nil {
		return errors.WrapFatal(errors.ErrSourceUnavailable, "server", "Initialize", "telemetry source check")
	}
	// Port 0 is allowed for OS auto-assignment in tests
	if s.port < 0 || s.port > 65535 {
		return errors.WrapInvalid(fmt.Errorf("invalid port %d", s.port),
			"server", "Initialize", "port validation")
	}
	return nil
}

// Start binds the listening socket and launches the accept loop. Setup
// failures are fatal; the process has nothing to serve without a listener.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return nil // Already running, idempotent
	}

	addr := fmt.Sprintf("%s:%d", s.bind, s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WrapFatal(err, "server", "Start", "listen")
	}

	s.mu.Lock()
	s.listener = listener
	s.shutdown = make(chan struct{})
	s.mu.Unlock()
	s.running.Store(true)

	s.logger.Info("listening", "addr", listener.Addr().String(), "max_sessions", s.maxSessions)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx)
	}()

	return nil
}

// Addr returns the bound listen address, or nil before Start. Tests bind
// port 0 and read the assigned port from here.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// acceptLoop accepts connections serially and hands each to its own
// session goroutine. It blocks only on Accept, never on a session, and a
// failed accept is logged and survived.
func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-s.shutdown:
				return
			default:
			}
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			if s.metrics != nil {
				s.metrics.acceptErrors.Inc()
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		if !s.sem.TryAcquire(1) {
			if s.metrics != nil {
				s.metrics.connectionsRejected.Inc()
			}
			s.logger.Warn("session limit reached, closing connection",
				"remote", conn.RemoteAddr().String(), "max_sessions", s.maxSessions)
			_ = conn.Close()
			continue
		}

		if s.metrics != nil {
			s.metrics.connectionsAccepted.Inc()
			s.metrics.connectionsActive.Inc()
		}

		sess := newSession(conn, s.src, s.logger, s.metrics)
		s.track(sess.id, conn)
		// Stop may have swept the conns map between Accept and track;
		// close the straggler so its session cannot outlive the drain.
		if !s.running.Load() {
			_ = conn.Close()
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.sem.Release(1)
			defer s.untrack(sess.id)
			defer func() {
				if s.metrics != nil {
					s.metrics.connectionsActive.Dec()
				}
			}()
			sess.run()
		}()
	}
}

func (s *Server) track(id string, conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[id] = conn
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, id)
}

// Stop closes the listener and every live session, then waits up to
// timeout for the workers to drain. Sessions have no read deadline in
// normal operation; closing their connections is what unblocks them here.
func (s *Server) Stop(timeout time.Duration) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.mu.Lock()
	if s.shutdown != nil {
		close(s.shutdown)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("server stopped")
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(errors.ErrStopTimeout, "server", "Stop", "session drain")
	}
}
