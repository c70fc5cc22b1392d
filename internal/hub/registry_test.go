package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_EmitInSubscriptionOrder(t *testing.T) {
	r := newRegistry[int](nil)

	var got []string
	r.add("tick", func(int) { got = append(got, "first") })
	r.add("tick", func(int) { got = append(got, "second") })
	r.add("other", func(int) { got = append(got, "other") })

	r.emit("tick", 1)
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestRegistry_DisposerIsIdempotent(t *testing.T) {
	r := newRegistry[int](nil)

	calls := 0
	dispose := r.add("tick", func(int) { calls++ })
	r.add("tick", func(int) { calls += 10 })

	dispose()
	dispose()
	r.emit("tick", 1)

	assert.Equal(t, 10, calls)
	assert.Equal(t, 1, r.count("tick"))
}

func TestRegistry_RecoversPanics(t *testing.T) {
	var panicked []string
	r := newRegistry[string](func(name string, _ any) { panicked = append(panicked, name) })

	reached := false
	r.add("msg", func(string) { panic("bad subscriber") })
	r.add("msg", func(string) { reached = true })

	assert.NotPanics(t, func() { r.emit("msg", "hello") })
	assert.True(t, reached)
	assert.Equal(t, []string{"msg"}, panicked)
}

func TestRegistry_DisposeDuringEmit(t *testing.T) {
	r := newRegistry[int](nil)

	var dispose Disposer
	calls := 0
	dispose = r.add("tick", func(int) {
		calls++
		dispose()
	})

	r.emit("tick", 1)
	r.emit("tick", 1)
	assert.Equal(t, 1, calls)
}

func TestRegistry_ClearNamed(t *testing.T) {
	r := newRegistry[int](nil)
	r.add("a", func(int) {})
	r.add("b", func(int) {})
	r.add("c", func(int) {})

	r.clear([]string{"a", "b"})

	assert.Equal(t, 0, r.count("a"))
	assert.Equal(t, 0, r.count("b"))
	assert.Equal(t, 1, r.count("c"))
}
