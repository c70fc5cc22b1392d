package hub

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected     = errors.New("hub connection is not connected")
	ErrConnectionClosed = errors.New("hub connection closed")
	ErrMissingToken     = errors.New("access token is required")
)

// NotConnectedError is returned by Invoke when the connection is not in the
// Connected state. Invocations are never queued.
type NotConnectedError struct {
	Method string
	State  ConnectionState
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("cannot invoke %s: connection is %s", e.Method, e.State)
}

func (e *NotConnectedError) Unwrap() error { return ErrNotConnected }

// ConnectionError is returned when the connection could not be started.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to hub %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// InvocationError carries a server-side rejection of a hub method.
type InvocationError struct {
	Method  string
	Message string
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("hub method %s failed: %s", e.Method, e.Message)
}

// CloseError is the reason given by a server close frame.
type CloseError struct {
	Message        string
	AllowReconnect bool
}

func (e *CloseError) Error() string {
	if e.Message == "" {
		return "server closed the connection"
	}
	return "server closed the connection: " + e.Message
}
