package hub

import (
	"time"

	"Nestcare/internal/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Option configures a Client.
type Option func(*Client)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.Named("hub")
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(c *Client) { c.policy = p }
}

func WithManualReconnect(m ManualReconnect) Option {
	return func(c *Client) { c.manual = m }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// WithKeepAlive sets the client ping interval and how long the client waits
// for any frame from the hub before treating the connection as lost.
func WithKeepAlive(interval, timeout time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.keepAlive = interval
		}
		if timeout > 0 {
			c.serverTimeout = timeout
		}
	}
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.handshakeTimeout = d
		}
	}
}
