package hub

// ConnectionState is owned by the Client and only changes on hub lifecycle
// events.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// StateChange is delivered to OnStateChange listeners. Err carries the cause
// of an unexpected loss or terminal close.
type StateChange struct {
	From ConnectionState
	To   ConnectionState
	Err  error
}
