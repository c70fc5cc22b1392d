package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"Nestcare/internal/event"

	"github.com/gorilla/websocket"
)

// fakeHub speaks just enough of the JSON hub protocol for client tests.
type fakeHub struct {
	t        *testing.T
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*serverConn
	hold  chan struct{}

	invocations chan event.HubFrame
	tokens      chan string
	upgrades    atomic.Int32
	connects    atomic.Int32

	// reply builds the completion for an invocation; nil means a null result
	reply           func(f event.HubFrame) event.HubFrame
	rejectHandshake atomic.Bool
}

type serverConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *serverConn) write(v any) error {
	data, err := event.Encode(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func newFakeHub(t *testing.T) *fakeHub {
	h := &fakeHub{
		t:           t,
		invocations: make(chan event.HubFrame, 64),
		tokens:      make(chan string, 16),
	}
	h.srv = httptest.NewServer(http.HandlerFunc(h.serve))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *fakeHub) URL() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/hubs/chat"
}

func (h *fakeHub) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()
	h.upgrades.Add(1)

	h.mu.Lock()
	hold := h.hold
	h.hold = nil
	h.mu.Unlock()
	if hold != nil {
		<-hold
	}

	select {
	case h.tokens <- r.URL.Query().Get("access_token"):
	default:
	}

	// handshake
	if _, _, err := ws.ReadMessage(); err != nil {
		return
	}
	sc := &serverConn{ws: ws}
	if h.rejectHandshake.Load() {
		_ = sc.write(map[string]string{"error": "unsupported protocol"})
		return
	}
	_ = sc.write(struct{}{})

	h.connects.Add(1)
	h.mu.Lock()
	h.conns = append(h.conns, sc)
	h.mu.Unlock()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		for _, rec := range event.Split(data) {
			var f event.HubFrame
			if err := json.Unmarshal(rec, &f); err != nil {
				continue
			}
			if f.Type != event.FrameInvocation {
				continue
			}
			h.invocations <- f

			if f.InvocationID == "" {
				continue
			}
			resp := event.HubFrame{Type: event.FrameCompletion, InvocationID: f.InvocationID}
			if h.reply != nil {
				resp = h.reply(f)
				resp.Type = event.FrameCompletion
				resp.InvocationID = f.InvocationID
			}
			_ = sc.write(resp)
		}
	}
}

func (h *fakeHub) latest() *serverConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.conns) == 0 {
		h.t.Fatal("no hub connection")
	}
	return h.conns[len(h.conns)-1]
}

// push sends a server-to-client invocation on the latest connection.
func (h *fakeHub) push(target string, args ...any) {
	f, err := event.Invocation("", target, args...)
	if err != nil {
		h.t.Fatal(err)
	}
	if err := h.latest().write(f); err != nil {
		h.t.Fatal(err)
	}
}

// broadcast sends a server-to-client invocation on every connection the hub
// has accepted, live or not.
func (h *fakeHub) broadcast(target string, args ...any) {
	f, err := event.Invocation("", target, args...)
	if err != nil {
		h.t.Fatal(err)
	}
	h.mu.Lock()
	conns := append([]*serverConn(nil), h.conns...)
	h.mu.Unlock()
	for _, sc := range conns {
		_ = sc.write(f)
	}
}

// holdNextHandshake parks the next connection right after the upgrade until
// release is called.
func (h *fakeHub) holdNextHandshake() (release func()) {
	ch := make(chan struct{})
	var once sync.Once
	release = func() { once.Do(func() { close(ch) }) }
	h.t.Cleanup(release)

	h.mu.Lock()
	h.hold = ch
	h.mu.Unlock()
	return release
}

// drop kills the latest connection without a close handshake.
func (h *fakeHub) drop() {
	_ = h.latest().ws.UnderlyingConn().Close()
}

func (h *fakeHub) sendClose(msg string, allowReconnect bool) {
	_ = h.latest().write(event.HubFrame{Type: event.FrameClose, Error: msg, AllowReconnect: allowReconnect})
}
