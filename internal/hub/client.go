package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"Nestcare/internal/event"
	"Nestcare/internal/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client owns the single hub connection of a session. It is shared by every
// conversation; only the top-level owner should call Disconnect.
type Client struct {
	url     string
	logger  *zap.Logger
	metrics *metrics.Metrics
	dialer  *websocket.Dialer

	policy           ReconnectPolicy
	manual           ManualReconnect
	keepAlive        time.Duration
	serverTimeout    time.Duration
	handshakeTimeout time.Duration

	listeners *registry[[]json.RawMessage]
	stateSubs *registry[StateChange]

	mu             sync.Mutex
	state          ConnectionState
	token          string
	conn           *connection
	intentional    bool
	runCtx         context.Context
	runCancel      context.CancelFunc
	manualTimer    *time.Timer
	manualAttempts int

	invocationSeq atomic.Uint64
}

// NewClient creates a disconnected client for the given hub URL
// (ws:// or wss://).
func NewClient(hubURL string, opts ...Option) *Client {
	c := &Client{
		url:              hubURL,
		logger:           zap.NewNop(),
		dialer:           websocket.DefaultDialer,
		policy:           DefaultReconnectPolicy(),
		manual:           DefaultManualReconnect(),
		keepAlive:        keepAlive,
		serverTimeout:    serverTimeout,
		handshakeTimeout: handshakeTimeout,
		state:            StateDisconnected,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.NewMetrics()
	}

	onPanic := panicLogger(c.logger, func(name string) {
		c.metrics.HandlerPanics.WithLabelValues(name).Inc()
	})
	c.listeners = newRegistry[[]json.RawMessage](onPanic)
	c.stateSubs = newRegistry[StateChange](onPanic)

	return c
}

// URL returns the hub endpoint.
func (c *Client) URL() string { return c.url }

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether invocations are currently accepted. Treat it
// as advisory: the connection can drop right after the check.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// -----------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------

// Connect opens the hub connection. It is a no-op while connected or while a
// connect or reconnect is already in progress.
func (c *Client) Connect(ctx context.Context, token string) error {
	if token == "" {
		return &ConnectionError{URL: c.url, Err: ErrMissingToken}
	}

	c.mu.Lock()
	c.manualAttempts = 0
	c.mu.Unlock()

	return c.connect(ctx, token)
}

func (c *Client) connect(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	c.token = token
	c.intentional = false
	c.stopManualLocked()
	if c.runCtx == nil || c.runCtx.Err() != nil {
		c.runCtx, c.runCancel = context.WithCancel(context.Background())
	}
	change := c.swapStateLocked(StateConnecting, nil)
	c.mu.Unlock()
	c.notify(change)

	conn, initial, err := c.start(ctx, token)

	c.mu.Lock()
	if err != nil {
		change = c.swapStateLocked(StateDisconnected, err)
		c.mu.Unlock()
		c.notify(change)

		c.logger.Error("failed to connect to hub", zap.String("url", c.url), zap.Error(err))
		return &ConnectionError{URL: c.url, Err: err}
	}
	if c.intentional {
		// Disconnect won the race
		c.mu.Unlock()
		conn.close()
		return ErrConnectionClosed
	}
	c.conn = conn
	c.manualAttempts = 0
	change = c.swapStateLocked(StateConnected, nil)
	c.mu.Unlock()

	c.run(conn, initial)
	c.notify(change)

	c.logger.Info("connected to hub", zap.String("url", c.url))
	return nil
}

// Disconnect gracefully stops the connection. Calling it while already
// disconnected is a no-op.
func (c *Client) Disconnect(_ context.Context) error {
	c.mu.Lock()
	c.intentional = true
	c.stopManualLocked()
	if c.runCancel != nil {
		c.runCancel()
	}
	conn := c.conn
	c.conn = nil

	if c.state == StateDisconnected && conn == nil {
		c.mu.Unlock()
		return nil
	}
	change := c.swapStateLocked(StateDisconnected, nil)
	c.mu.Unlock()

	if conn != nil {
		conn.close()
	}
	c.notify(change)

	c.logger.Info("disconnected from hub", zap.String("url", c.url))
	return nil
}

// start dials and performs the protocol handshake. The pumps are not running
// yet when it returns.
func (c *Client) start(ctx context.Context, token string) (*connection, [][]byte, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, nil, err
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialCtx, cancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer cancel()

	ws, resp, err := c.dialer.DialContext(dialCtx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, nil, errors.Join(err, errors.New("http status "+strconv.Itoa(resp.StatusCode)))
		}
		return nil, nil, err
	}

	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, event.HandshakeRequest()); err != nil {
		ws.Close()
		return nil, nil, err
	}

	ws.SetReadDeadline(time.Now().Add(c.handshakeTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return nil, nil, err
	}

	initial, err := event.ParseHandshakeResponse(data)
	if err != nil {
		ws.Close()
		return nil, nil, err
	}

	return newConnection(ws, c.logger, c.keepAlive, c.serverTimeout), initial, nil
}

func (c *Client) run(conn *connection, initial [][]byte) {
	go conn.writePump()
	go conn.dispatchLoop(c.dispatch)
	go conn.readPump(initial, func() { c.onConnectionLost(conn) })
}

func (c *Client) dispatch(ev pushEvent) {
	c.metrics.EventsReceived.WithLabelValues(ev.target).Inc()
	c.listeners.emit(ev.target, ev.args)
}

// onConnectionLost runs when a read pump exits. Losses of a connection that
// was already replaced or closed on purpose are ignored.
func (c *Client) onConnectionLost(conn *connection) {
	conn.close()

	cause, allowReconnect := conn.closeReason()
	if cause == nil {
		cause = ErrConnectionClosed
	}

	c.mu.Lock()
	if c.conn != conn || c.intentional {
		c.mu.Unlock()
		return
	}
	c.conn = nil

	if !allowReconnect {
		c.mu.Unlock()
		c.logger.Warn("hub closed the connection without reconnect", zap.Error(cause))
		c.terminalClose(cause)
		return
	}

	runCtx := c.runCtx
	change := c.swapStateLocked(StateReconnecting, cause)
	c.mu.Unlock()
	c.notify(change)

	go c.reconnect(runCtx, cause)
}

// reconnect retries with the automatic policy until it succeeds, the policy
// gives up or Disconnect is called.
func (c *Client) reconnect(ctx context.Context, cause error) {
	lastErr := cause
	for retry := 0; ; retry++ {
		delay, ok := c.policy.NextDelay(retry)
		if !ok {
			c.mu.Lock()
			owned := c.ownsRunLocked(ctx)
			c.mu.Unlock()
			if !owned {
				return
			}
			c.logger.Warn("automatic reconnection exhausted", zap.Int("retries", retry), zap.Error(lastErr))
			c.terminalClose(lastErr)
			return
		}

		c.logger.Info("reconnecting to hub",
			zap.Int("attempt", retry+1),
			zap.Duration("delay", delay),
		)
		c.metrics.ReconnectAttempts.WithLabelValues("automatic").Inc()

		if !sleepCtx(ctx, delay) {
			return
		}

		c.mu.Lock()
		if !c.ownsRunLocked(ctx) {
			c.mu.Unlock()
			return
		}
		token := c.token
		c.mu.Unlock()

		conn, initial, err := c.start(ctx, token)
		if err != nil {
			lastErr = err
			c.logger.Warn("reconnect attempt failed", zap.Int("attempt", retry+1), zap.Error(err))
			continue
		}

		c.mu.Lock()
		if !c.ownsRunLocked(ctx) {
			// a Disconnect, or a Disconnect and Connect, happened meanwhile
			c.mu.Unlock()
			conn.close()
			return
		}
		c.conn = conn
		c.manualAttempts = 0
		change := c.swapStateLocked(StateConnected, nil)
		c.mu.Unlock()

		c.run(conn, initial)
		c.notify(change)
		c.logger.Info("reconnected to hub", zap.Int("attempt", retry+1))
		return
	}
}

// ownsRunLocked reports whether a reconnect loop started under ctx may still
// change the connection.
func (c *Client) ownsRunLocked(ctx context.Context) bool {
	return ctx.Err() == nil && ctx == c.runCtx && !c.intentional && c.state == StateReconnecting
}

// terminalClose marks the connection as closed and, within the manual
// attempt budget, schedules a fresh connect.
func (c *Client) terminalClose(cause error) {
	c.mu.Lock()
	if c.intentional {
		c.mu.Unlock()
		return
	}
	change := c.swapStateLocked(StateDisconnected, cause)

	if c.manualAttempts < c.manual.MaxAttempts {
		c.manualAttempts++
		attempt := c.manualAttempts
		token := c.token
		c.stopManualLocked()
		c.manualTimer = time.AfterFunc(c.manual.Delay, func() {
			c.metrics.ReconnectAttempts.WithLabelValues("manual").Inc()
			c.logger.Info("manual reconnect attempt", zap.Int("attempt", attempt))

			ctx, cancel := context.WithTimeout(context.Background(), c.handshakeTimeout)
			defer cancel()
			if err := c.connect(ctx, token); err != nil {
				c.terminalClose(err)
			}
		})
	} else {
		c.logger.Error("giving up on hub connection",
			zap.Int("manual_attempts", c.manualAttempts),
			zap.Error(cause),
		)
	}
	c.mu.Unlock()

	c.notify(change)
}

func (c *Client) stopManualLocked() {
	if c.manualTimer != nil {
		c.manualTimer.Stop()
		c.manualTimer = nil
	}
}

func (c *Client) swapStateLocked(to ConnectionState, err error) StateChange {
	change := StateChange{From: c.state, To: to, Err: err}
	c.state = to
	c.metrics.ConnectionState.Set(float64(to))
	return change
}

func (c *Client) notify(change StateChange) {
	if change.From == change.To {
		return
	}
	c.stateSubs.emit("", change)
}

// -----------------------------------------------------------------
// Invocation
// -----------------------------------------------------------------

// Invoke calls a hub method and waits for its completion. It fails with a
// *NotConnectedError unless the connection is Connected.
func (c *Client) Invoke(ctx context.Context, method string, args ...any) (json.RawMessage, error) {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()

	if state != StateConnected || conn == nil {
		c.metrics.InvocationsTotal.WithLabelValues(method, "not_connected").Inc()
		return nil, &NotConnectedError{Method: method, State: state}
	}

	start := time.Now()
	defer func() {
		c.metrics.InvocationDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	id := strconv.FormatUint(c.invocationSeq.Add(1), 10)
	frame, err := event.Invocation(id, method, args...)
	if err != nil {
		return nil, err
	}
	data, err := event.Encode(frame)
	if err != nil {
		return nil, err
	}

	ch := conn.addPending(id)
	defer conn.removePending(id)

	if err := conn.send(ctx, data); err != nil {
		c.metrics.InvocationsTotal.WithLabelValues(method, "error").Inc()
		return nil, err
	}

	select {
	case res := <-ch:
		if res.err != nil {
			c.metrics.InvocationsTotal.WithLabelValues(method, "error").Inc()
			return nil, res.err
		}
		if res.frame.Error != "" {
			c.metrics.InvocationsTotal.WithLabelValues(method, "rejected").Inc()
			return nil, &InvocationError{Method: method, Message: res.frame.Error}
		}
		c.metrics.InvocationsTotal.WithLabelValues(method, "ok").Inc()
		return res.frame.Result, nil
	case <-ctx.Done():
		c.metrics.InvocationsTotal.WithLabelValues(method, "timeout").Inc()
		return nil, ctx.Err()
	}
}

// -----------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------

// On registers a callback for a server-push event.
func (c *Client) On(name string, fn func(args []json.RawMessage)) Disposer {
	return c.listeners.add(name, fn)
}

// Off removes every callback registered for name. Use the Disposer returned
// by On to remove a single one.
func (c *Client) Off(name string) {
	c.listeners.removeAll(name)
}

// RemoveAllListeners clears every known server-push event. The owning UI
// calls it on teardown.
func (c *Client) RemoveAllListeners() {
	c.listeners.clear(event.KnownEvents)
}

// ListenerCount returns the number of callbacks registered for name.
func (c *Client) ListenerCount(name string) int {
	return c.listeners.count(name)
}

// OnStateChange registers a callback for connection state transitions.
func (c *Client) OnStateChange(fn func(StateChange)) Disposer {
	return c.stateSubs.add("", fn)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
