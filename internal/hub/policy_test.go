package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectPolicy_DefaultSchedule(t *testing.T) {
	p := DefaultReconnectPolicy()

	want := []time.Duration{
		0,
		2 * time.Second,
		10 * time.Second,
		30 * time.Second,
		60 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}
	for retry, expected := range want {
		delay, ok := p.NextDelay(retry)
		assert.True(t, ok, "retry %d", retry)
		assert.Equal(t, expected, delay, "retry %d", retry)
	}
}

func TestReconnectPolicy_MaxRetries(t *testing.T) {
	p := ReconnectPolicy{Delays: DefaultReconnectDelays, MaxRetries: 2}

	_, ok := p.NextDelay(1)
	assert.True(t, ok)

	_, ok = p.NextDelay(2)
	assert.False(t, ok)
}

func TestReconnectPolicy_EmptyNeverRetries(t *testing.T) {
	_, ok := ReconnectPolicy{}.NextDelay(0)
	assert.False(t, ok)
}

func TestDefaultManualReconnect(t *testing.T) {
	m := DefaultManualReconnect()
	assert.Equal(t, 5*time.Second, m.Delay)
	assert.Equal(t, 5, m.MaxAttempts)
}
