package session

import (
	"time"

	"go.uber.org/zap"
)

type Option func(*Coordinator)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger.Named("session")
	}
}

// WithOnConnected registers a callback fired every time the transport
// reaches Connected, reconnects included.
func WithOnConnected(fn func()) Option {
	return func(c *Coordinator) {
		c.onConnected = fn
	}
}

// WithOnDisconnected registers a callback fired when an established
// connection ends. err is nil for an intentional disconnect.
func WithOnDisconnected(fn func(err error)) Option {
	return func(c *Coordinator) {
		c.onDisconnected = fn
	}
}

func withClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}
