package natsclient

import (
	"fmt"
	"time"
)

// Option configures a Client at construction.
type Option func(*Client) error

// WithName sets the connection name advertised to the server.
func WithName(name string) Option {
	return func(c *Client) error {
		if name == "" {
			return fmt.Errorf("connection name must not be empty")
		}
		c.name = name
		return nil
	}
}

// WithMaxReconnects bounds reconnection attempts; -1 means retry forever.
func WithMaxReconnects(n int) Option {
	return func(c *Client) error {
		c.maxReconnects = n
		return nil
	}
}

// WithReconnectWait sets the delay between reconnection attempts.
func WithReconnectWait(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("reconnect wait must be positive, got %v", d)
		}
		c.reconnectWait = d
		return nil
	}
}

// WithConnectTimeout bounds the initial dial.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("connect timeout must be positive, got %v", d)
		}
		c.connectWait = d
		return nil
	}
}
