package hub

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"Nestcare/internal/event"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// tuning parameters
	writeWait        = 10 * time.Second // time allowed to write a frame to the hub
	maxMessageSize   = 512 * 1024       // max inbound websocket message size
	sendBufSize      = 256              // outbound frame buffer
	eventBufSize     = 256              // server-push events waiting for dispatch
	handshakeTimeout = 15 * time.Second
	keepAlive        = 15 * time.Second // client ping frame interval
	serverTimeout    = 30 * time.Second // no frame from the hub within this closes the connection
)

type completion struct {
	frame event.HubFrame
	err   error
}

type pushEvent struct {
	target string
	args   []json.RawMessage
}

// connection is one live websocket session. A Client replaces it on every
// reconnect; nothing survives across connections except the listeners.
type connection struct {
	ws     *websocket.Conn
	egress chan []byte
	events chan pushEvent
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	keepAlive     time.Duration
	serverTimeout time.Duration

	pendingMu sync.Mutex
	pending   map[string]chan completion

	closeOnce sync.Once
	closeMu   sync.Mutex
	closeErr  error
	// allowReconnect is false only when the server said so in a close frame
	allowReconnect bool
}

func newConnection(ws *websocket.Conn, logger *zap.Logger, keepAlive, serverTimeout time.Duration) *connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &connection{
		ws:             ws,
		egress:         make(chan []byte, sendBufSize),
		events:         make(chan pushEvent, eventBufSize),
		ctx:            ctx,
		cancel:         cancel,
		logger:         logger,
		keepAlive:      keepAlive,
		serverTimeout:  serverTimeout,
		pending:        make(map[string]chan completion),
		allowReconnect: true,
	}
}

// readPump reads hub frames until the socket fails or the server closes it.
// Completions are resolved inline; invocations go to the dispatch loop so a
// subscriber may itself invoke without deadlocking the reader.
func (c *connection) readPump(initial [][]byte, onExit func()) {
	defer onExit()

	c.ws.SetReadLimit(int64(maxMessageSize))
	c.ws.SetReadDeadline(time.Now().Add(c.serverTimeout))

	for _, rec := range initial {
		if !c.handleRecord(rec) {
			return
		}
	}

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.recordReadError(err)
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(c.serverTimeout))

		for _, rec := range event.Split(data) {
			if !c.handleRecord(rec) {
				return
			}
		}
	}
}

func (c *connection) recordReadError(err error) {
	select {
	case <-c.ctx.Done():
		// closed locally
		return
	default:
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Info("hub connection closed by peer", zap.Error(err))
	} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
		c.logger.Warn("hub connection timed out", zap.Duration("server_timeout", c.serverTimeout))
	} else {
		c.logger.Warn("error reading from hub", zap.Error(err))
	}
	c.setCloseErr(err, true)
}

// handleRecord returns false when the connection must stop reading.
func (c *connection) handleRecord(rec []byte) bool {
	var frame event.HubFrame
	if err := json.Unmarshal(rec, &frame); err != nil {
		c.logger.Warn("dropping malformed hub frame", zap.Error(err))
		return true
	}

	switch frame.Type {
	case event.FrameInvocation:
		select {
		case c.events <- pushEvent{target: frame.Target, args: frame.Arguments}:
		case <-c.ctx.Done():
			return false
		}
	case event.FrameCompletion:
		c.resolve(frame)
	case event.FramePing:
		// the read deadline was already extended
	case event.FrameClose:
		c.setCloseErr(&CloseError{Message: frame.Error, AllowReconnect: frame.AllowReconnect}, frame.AllowReconnect)
		return false
	default:
		c.logger.Debug("ignoring hub frame", zap.Int("type", frame.Type))
	}
	return true
}

// writePump owns every write to the socket, including keep-alive pings.
func (c *connection) writePump() {
	ticker := time.NewTicker(c.keepAlive)
	ping, _ := event.Encode(event.HubFrame{Type: event.FramePing})

	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case data := <-c.egress:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("write to hub failed", zap.Error(err))
				c.setCloseErr(err, true)
				c.cancel()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, ping); err != nil {
				c.logger.Warn("keep-alive ping failed", zap.Error(err))
				c.setCloseErr(err, true)
				c.cancel()
				return
			}
		}
	}
}

// dispatchLoop delivers server-push events one at a time, in arrival order.
func (c *connection) dispatchLoop(emit func(pushEvent)) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.events:
			emit(ev)
		}
	}
}

func (c *connection) send(ctx context.Context, data []byte) error {
	select {
	case c.egress <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *connection) addPending(id string) chan completion {
	ch := make(chan completion, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	return ch
}

func (c *connection) removePending(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *connection) resolve(frame event.HubFrame) {
	c.pendingMu.Lock()
	ch, ok := c.pending[frame.InvocationID]
	delete(c.pending, frame.InvocationID)
	c.pendingMu.Unlock()

	if !ok {
		c.logger.Debug("completion for unknown invocation", zap.String("invocation_id", frame.InvocationID))
		return
	}
	ch <- completion{frame: frame}
}

func (c *connection) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	for id, ch := range c.pending {
		ch <- completion{err: err}
		delete(c.pending, id)
	}
}

func (c *connection) setCloseErr(err error, allowReconnect bool) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closeErr == nil {
		c.closeErr = err
		c.allowReconnect = allowReconnect
	}
}

func (c *connection) closeReason() (error, bool) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closeErr, c.allowReconnect
}

// close stops the pumps and fails anything still waiting on a completion.
func (c *connection) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.failPending(ErrConnectionClosed)

		// writePump closes the socket after its close frame; force it if the
		// pump is stuck on a write
		time.AfterFunc(writeWait, func() { _ = c.ws.Close() })
	})
}
