package conversation

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultTypingTTL  = 3 * time.Second
	DefaultTypingIdle = 2 * time.Second
)

type typingEntry struct {
	gen   uint64
	timer *time.Timer
}

// typingTracker expires each remote typist on its own timer. A generation
// token per name keeps a stale timer from removing a renewed entry.
type typingTracker struct {
	ttl     time.Duration
	onStart func(name string)
	onStop  func(name string)

	mu      sync.Mutex
	gen     uint64
	entries map[string]typingEntry
}

func newTypingTracker(ttl time.Duration, onStart, onStop func(string)) *typingTracker {
	return &typingTracker{
		ttl:     ttl,
		onStart: onStart,
		onStop:  onStop,
		entries: make(map[string]typingEntry),
	}
}

func (t *typingTracker) start(name string) {
	t.mu.Lock()
	if e, ok := t.entries[name]; ok {
		e.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.entries[name] = typingEntry{
		gen:   gen,
		timer: time.AfterFunc(t.ttl, func() { t.expire(name, gen) }),
	}
	t.mu.Unlock()

	t.onStart(name)
}

func (t *typingTracker) expire(name string, gen uint64) {
	t.mu.Lock()
	e, ok := t.entries[name]
	if !ok || e.gen != gen {
		t.mu.Unlock()
		return
	}
	delete(t.entries, name)
	t.mu.Unlock()

	t.onStop(name)
}

func (t *typingTracker) stop(name string) {
	t.mu.Lock()
	e, ok := t.entries[name]
	if ok {
		e.timer.Stop()
		delete(t.entries, name)
	}
	t.mu.Unlock()

	if ok {
		t.onStop(name)
	}
}

func (t *typingTracker) stopAll() {
	t.mu.Lock()
	for name, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, name)
	}
	t.mu.Unlock()
}

// typingNotifier debounces the local user's typing: true once per burst,
// false after idle or when the message is sent.
type typingNotifier struct {
	idle   time.Duration
	notify func(ctx context.Context, isTyping bool) error

	mu     sync.Mutex
	active bool
	gen    uint64
	timer  *time.Timer
}

func newTypingNotifier(idle time.Duration, notify func(context.Context, bool) error) *typingNotifier {
	return &typingNotifier{idle: idle, notify: notify}
}

func (n *typingNotifier) touch(ctx context.Context) error {
	n.mu.Lock()
	wasActive := n.active
	n.active = true
	n.gen++
	gen := n.gen
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.idle, func() { n.idleStop(gen) })
	n.mu.Unlock()

	if wasActive {
		return nil
	}
	return n.notify(ctx, true)
}

func (n *typingNotifier) idleStop(gen uint64) {
	n.mu.Lock()
	if !n.active || n.gen != gen {
		n.mu.Unlock()
		return
	}
	n.active = false
	n.timer = nil
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = n.notify(ctx, false)
}

// stop ends the burst now. It reports whether a burst was active.
func (n *typingNotifier) stop(ctx context.Context) bool {
	n.mu.Lock()
	if !n.active {
		n.mu.Unlock()
		return false
	}
	n.active = false
	n.gen++
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.mu.Unlock()

	_ = n.notify(ctx, false)
	return true
}
