// Package natsclient manages the NATS connection used to relay gather
// frames onto the message bus. It wraps the raw connection with
// reconnect-aware logging and a small publish surface.
package natsclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/gatherd/errors"
)

// Client owns one NATS connection. Connect must succeed before Publish is
// usable; the underlying connection then rides out broker restarts via the
// nats.go reconnect machinery.
type Client struct {
	url    string
	logger *slog.Logger

	name          string
	maxReconnects int
	reconnectWait time.Duration
	pingInterval  time.Duration
	connectWait   time.Duration

	mu   sync.RWMutex
	conn *nats.Conn
}

// New creates an unconnected client for the given server URL.
func New(url string, logger *slog.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		url:           url,
		logger:        logger.With("component", "natsclient"),
		name:          "gatherd",
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		pingInterval:  30 * time.Second,
		connectWait:   5 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "natsclient", "New", "apply option")
		}
	}
	return c, nil
}

// Connect establishes the connection, honoring ctx for the initial dial.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() {
		return nil
	}

	wait := c.connectWait
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < wait {
			wait = until
		}
	}

	conn, err := nats.Connect(c.url,
		nats.Name(c.name),
		nats.Timeout(wait),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.PingInterval(c.pingInterval),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return errors.WrapTransient(err, "natsclient", "Connect", "dial")
	}

	c.conn = conn
	c.logger.Info("connected to NATS", "url", conn.ConnectedUrl())
	return nil
}

// Publish sends data on subject. It fails when the client never connected
// or the connection is permanently closed.
func (c *Client) Publish(subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return errors.WrapTransient(errors.ErrNotStarted, "natsclient", "Publish", "connection check")
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "natsclient", "Publish", "publish message")
	}
	return nil
}

// IsConnected reports whether the connection is currently up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Close drains in-flight messages and shuts the connection down.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("NATS drain failed, closing hard", "error", err)
		c.conn.Close()
	}
	c.conn = nil
}
