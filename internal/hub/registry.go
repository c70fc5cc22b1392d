package hub

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Disposer removes exactly the subscription that returned it. Calling it
// more than once is safe.
type Disposer func()

type entry[T any] struct {
	id uint64
	fn func(T)
}

// registry is a tagged dispatch table: event name -> ordered callbacks.
type registry[T any] struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]entry[T]

	// onPanic is told about callbacks that panicked
	onPanic func(name string, recovered any)
}

func newRegistry[T any](onPanic func(string, any)) *registry[T] {
	return &registry[T]{
		handlers: make(map[string][]entry[T]),
		onPanic:  onPanic,
	}
}

func (r *registry[T]) add(name string, fn func(T)) Disposer {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.handlers[name] = append(r.handlers[name], entry[T]{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(name, id) })
	}
}

func (r *registry[T]) remove(name string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.handlers[name]
	for i, e := range list {
		if e.id == id {
			next := make([]entry[T], 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(r.handlers, name)
			} else {
				r.handlers[name] = next
			}
			return
		}
	}
}

func (r *registry[T]) removeAll(name string) {
	r.mu.Lock()
	delete(r.handlers, name)
	r.mu.Unlock()
}

func (r *registry[T]) clear(names []string) {
	r.mu.Lock()
	for _, name := range names {
		delete(r.handlers, name)
	}
	r.mu.Unlock()
}

func (r *registry[T]) count(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[name])
}

// emit calls every callback registered for name in subscription order. A
// panicking callback does not stop the others.
func (r *registry[T]) emit(name string, v T) {
	r.mu.RLock()
	list := r.handlers[name]
	r.mu.RUnlock()

	for _, e := range list {
		r.call(name, e.fn, v)
	}
}

func (r *registry[T]) call(name string, fn func(T), v T) {
	defer func() {
		if rec := recover(); rec != nil && r.onPanic != nil {
			r.onPanic(name, rec)
		}
	}()
	fn(v)
}

func panicLogger(logger *zap.Logger, count func(string)) func(string, any) {
	return func(name string, rec any) {
		logger.Error("subscriber callback panicked",
			zap.String("event", name),
			zap.String("panic", fmt.Sprint(rec)),
		)
		if count != nil {
			count(name)
		}
	}
}
