package hub

import "time"

// DefaultReconnectDelays is the automatic reconnect schedule, indexed by
// retry attempt and clamped to the last value.
var DefaultReconnectDelays = []time.Duration{
	0,
	2 * time.Second,
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// ReconnectPolicy drives automatic reconnection after an unexpected loss.
// MaxRetries of zero never gives up.
type ReconnectPolicy struct {
	Delays     []time.Duration
	MaxRetries int
}

// DefaultReconnectPolicy returns the clamped, unbounded schedule.
func DefaultReconnectPolicy() ReconnectPolicy {
	delays := make([]time.Duration, len(DefaultReconnectDelays))
	copy(delays, DefaultReconnectDelays)
	return ReconnectPolicy{Delays: delays}
}

// NextDelay returns the wait before the given zero-based retry, or false
// when the policy is exhausted.
func (p ReconnectPolicy) NextDelay(retry int) (time.Duration, bool) {
	if len(p.Delays) == 0 {
		return 0, false
	}
	if p.MaxRetries > 0 && retry >= p.MaxRetries {
		return 0, false
	}
	if retry < 0 {
		retry = 0
	}
	if retry >= len(p.Delays) {
		retry = len(p.Delays) - 1
	}
	return p.Delays[retry], true
}

// ManualReconnect bounds the reconnects scheduled after a terminal close.
type ManualReconnect struct {
	Delay       time.Duration
	MaxAttempts int
}

func DefaultManualReconnect() ManualReconnect {
	return ManualReconnect{
		Delay:       5 * time.Second,
		MaxAttempts: 5,
	}
}
