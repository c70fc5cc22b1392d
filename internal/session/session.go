package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"Nestcare/internal/hub"
	"Nestcare/internal/model"

	"go.uber.org/zap"
)

// Transport is the hub connection the coordinator drives. *hub.Client
// implements it.
type Transport interface {
	Connect(ctx context.Context, token string) error
	Disconnect(ctx context.Context) error
	State() hub.ConnectionState

	JoinConversation(ctx context.Context, conversationID int64) error
	LeaveConversation(ctx context.Context, conversationID int64) error
	SendMessage(ctx context.Context, conversationID int64, content string) (json.RawMessage, error)
	NotifyTyping(ctx context.Context, conversationID int64, isTyping bool) error
	MarkAsRead(ctx context.Context, conversationID int64) error
	RequestSupport(ctx context.Context, conversationID int64, reason string) error
	AcceptSupportRequest(ctx context.Context, requestID int64) error
	ResolveSupport(ctx context.Context, requestID int64) error

	On(name string, fn func(args []json.RawMessage)) hub.Disposer
	Off(name string)
	RemoveAllListeners()
	OnStateChange(fn func(hub.StateChange)) hub.Disposer
}

var _ Transport = (*hub.Client)(nil)

// Coordinator adapts the shared transport for the UI layer. Connection
// state is mirrored from transport state-change events.
type Coordinator struct {
	transport Transport
	token     string
	userID    string
	logger    *zap.Logger
	now       func() time.Time

	onConnected    func()
	onDisconnected func(err error)

	mu          sync.RWMutex
	isConnected bool
	state       hub.ConnectionState
	err         error

	disposeState hub.Disposer
}

// New wires a coordinator to an existing transport. The token is only
// checked when Connect is called.
func New(transport Transport, token string, opts ...Option) *Coordinator {
	c := &Coordinator{
		transport: transport,
		token:     token,
		logger:    zap.NewNop(),
		now:       time.Now,
		state:     transport.State(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.isConnected = c.state == hub.StateConnected
	c.userID = userIDFromToken(token)
	c.disposeState = transport.OnStateChange(c.handleStateChange)
	return c
}

func (c *Coordinator) handleStateChange(change hub.StateChange) {
	c.mu.Lock()
	c.state = change.To
	c.isConnected = change.To == hub.StateConnected
	if change.Err != nil {
		c.err = change.Err
	} else if change.To == hub.StateConnected {
		c.err = nil
	}
	c.mu.Unlock()

	c.logger.Debug("connection state changed",
		zap.Stringer("from", change.From),
		zap.Stringer("to", change.To),
		zap.Error(change.Err),
	)

	switch {
	case change.To == hub.StateConnected:
		if c.onConnected != nil {
			c.onConnected()
		}
	case change.To == hub.StateDisconnected &&
		(change.From == hub.StateConnected || change.From == hub.StateReconnecting):
		if c.onDisconnected != nil {
			c.onDisconnected(change.Err)
		}
	}
}

// Connect validates the token and opens the transport. An invalid token is
// reported without touching the network.
func (c *Coordinator) Connect(ctx context.Context) error {
	if err := checkToken(c.token, c.now()); err != nil {
		c.setErr(err)
		c.logger.Warn("refusing to connect", zap.Error(err))
		return err
	}

	if err := c.transport.Connect(ctx, c.token); err != nil {
		c.setErr(err)
		c.logger.Error("connect failed", zap.Error(err))
		return err
	}
	// a Connect during a reconnect returns early; keep the loss cause
	if c.transport.State() == hub.StateConnected {
		c.setErr(nil)
	}
	return nil
}

// Disconnect closes the shared transport. Only the session owner should
// call it.
func (c *Coordinator) Disconnect(ctx context.Context) error {
	if err := c.transport.Disconnect(ctx); err != nil {
		c.logger.Error("disconnect failed", zap.Error(err))
		return err
	}
	return nil
}

// Close stops mirroring transport state. Subscriptions made through the
// coordinator stay registered until their disposers run.
func (c *Coordinator) Close() {
	c.disposeState()
}

// RemoveAllListeners clears every server-push subscription on the transport.
func (c *Coordinator) RemoveAllListeners() {
	c.transport.RemoveAllListeners()
}

// IsConnected is advisory: re-check right before an action, or handle the
// NotConnectedError it returns.
func (c *Coordinator) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// Err returns the last connection error, or nil.
func (c *Coordinator) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// UserID is the subject of the access token when it is a JWT.
func (c *Coordinator) UserID() string { return c.userID }

// Status returns a snapshot for the status endpoint.
func (c *Coordinator) Status() model.SessionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info := model.SessionInfo{
		State:       c.state.String(),
		IsConnected: c.isConnected,
		UserID:      c.userID,
	}
	if c.err != nil {
		info.LastError = c.err.Error()
	}
	return info
}

func (c *Coordinator) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}
