// Package sessiontest provides an in-memory hub transport for tests.
package sessiontest

import (
	"context"
	"encoding/json"
	"sync"

	"Nestcare/internal/event"
	"Nestcare/internal/hub"
)

// Call is one recorded hub invocation.
type Call struct {
	Method string
	Args   []any
}

// Transport implements session.Transport without a network. Listeners run
// synchronously on the goroutine that calls Emit.
type Transport struct {
	mu        sync.Mutex
	state     hub.ConnectionState
	token     string
	calls     []Call
	listeners map[string][]listener
	stateSubs []stateListener
	nextID    int

	// ConnectErr is returned by Connect when set.
	ConnectErr error
	// Handle overrides the result of an invocation. Returning handled=false
	// falls through to an empty successful completion.
	Handle func(method string, args []any) (result json.RawMessage, err error, handled bool)
}

type listener struct {
	id int
	fn func([]json.RawMessage)
}

type stateListener struct {
	id int
	fn func(hub.StateChange)
}

func NewTransport() *Transport {
	return &Transport{
		state:     hub.StateDisconnected,
		listeners: make(map[string][]listener),
	}
}

// Connect is a no-op unless the fake is disconnected, like hub.Client.
func (t *Transport) Connect(_ context.Context, token string) error {
	t.mu.Lock()
	if t.state != hub.StateDisconnected {
		t.mu.Unlock()
		return nil
	}
	if t.ConnectErr != nil {
		t.mu.Unlock()
		return &hub.ConnectionError{URL: "fake://hub", Err: t.ConnectErr}
	}
	t.token = token
	t.mu.Unlock()

	t.SetState(hub.StateConnected, nil)
	return nil
}

func (t *Transport) Disconnect(context.Context) error {
	t.SetState(hub.StateDisconnected, nil)
	return nil
}

func (t *Transport) State() hub.ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Token returns the token passed to the last successful Connect.
func (t *Transport) Token() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token
}

// SetState moves the fake connection and notifies state subscribers.
func (t *Transport) SetState(to hub.ConnectionState, err error) {
	t.mu.Lock()
	change := hub.StateChange{From: t.state, To: to, Err: err}
	t.state = to
	subs := append([]stateListener(nil), t.stateSubs...)
	t.mu.Unlock()

	if change.From == change.To {
		return
	}
	for _, s := range subs {
		s.fn(change)
	}
}

func (t *Transport) invoke(method string, args ...any) (json.RawMessage, error) {
	t.mu.Lock()
	state := t.state
	if state != hub.StateConnected {
		t.mu.Unlock()
		return nil, &hub.NotConnectedError{Method: method, State: state}
	}
	t.calls = append(t.calls, Call{Method: method, Args: args})
	handle := t.Handle
	t.mu.Unlock()

	if handle != nil {
		if res, err, ok := handle(method, args); ok {
			return res, err
		}
	}
	return nil, nil
}

// Calls returns the recorded invocations of method, or all of them when
// method is empty.
func (t *Transport) Calls(method string) []Call {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Call
	for _, c := range t.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (t *Transport) JoinConversation(_ context.Context, id int64) error {
	_, err := t.invoke(event.MethodJoinConversation, id)
	return err
}

func (t *Transport) LeaveConversation(_ context.Context, id int64) error {
	_, err := t.invoke(event.MethodLeaveConversation, id)
	return err
}

func (t *Transport) SendMessage(_ context.Context, id int64, content string) (json.RawMessage, error) {
	return t.invoke(event.MethodSendMessage, id, content)
}

func (t *Transport) NotifyTyping(_ context.Context, id int64, isTyping bool) error {
	_, err := t.invoke(event.MethodNotifyTyping, id, isTyping)
	return err
}

func (t *Transport) MarkAsRead(_ context.Context, id int64) error {
	_, err := t.invoke(event.MethodMarkAsRead, id)
	return err
}

func (t *Transport) RequestSupport(_ context.Context, id int64, reason string) error {
	_, err := t.invoke(event.MethodRequestSupport, id, reason)
	return err
}

func (t *Transport) AcceptSupportRequest(_ context.Context, requestID int64) error {
	_, err := t.invoke(event.MethodAcceptSupportRequest, requestID)
	return err
}

func (t *Transport) ResolveSupport(_ context.Context, requestID int64) error {
	_, err := t.invoke(event.MethodResolveSupport, requestID)
	return err
}

func (t *Transport) On(name string, fn func([]json.RawMessage)) hub.Disposer {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.listeners[name] = append(t.listeners[name], listener{id: id, fn: fn})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			list := t.listeners[name]
			for i, l := range list {
				if l.id == id {
					t.listeners[name] = append(list[:i:i], list[i+1:]...)
					return
				}
			}
		})
	}
}

func (t *Transport) Off(name string) {
	t.mu.Lock()
	delete(t.listeners, name)
	t.mu.Unlock()
}

func (t *Transport) RemoveAllListeners() {
	t.mu.Lock()
	for _, name := range event.KnownEvents {
		delete(t.listeners, name)
	}
	t.mu.Unlock()
}

func (t *Transport) OnStateChange(fn func(hub.StateChange)) hub.Disposer {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.stateSubs = append(t.stateSubs, stateListener{id: id, fn: fn})
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			for i, s := range t.stateSubs {
				if s.id == id {
					t.stateSubs = append(t.stateSubs[:i:i], t.stateSubs[i+1:]...)
					return
				}
			}
		})
	}
}

// ListenerCount returns the number of callbacks registered for name.
func (t *Transport) ListenerCount(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners[name])
}

// Emit delivers a server-push event with payload as its only argument.
func (t *Transport) Emit(name string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	t.EmitRaw(name, raw)
	return nil
}

// EmitRaw delivers a server-push event with pre-encoded arguments.
func (t *Transport) EmitRaw(name string, args ...json.RawMessage) {
	t.mu.Lock()
	list := append([]listener(nil), t.listeners[name]...)
	t.mu.Unlock()

	for _, l := range list {
		l.fn(args)
	}
}
