package event

import (
	"bytes"
	"encoding/json"
	"errors"
)

// RecordSeparator terminates every frame of the JSON hub protocol.
const RecordSeparator byte = 0x1e

// Frame types of the JSON hub protocol.
const (
	FrameInvocation       = 1
	FrameStreamItem       = 2
	FrameCompletion       = 3
	FrameStreamInvocation = 4
	FrameCancelInvocation = 5
	FramePing             = 6
	FrameClose            = 7
)

var ErrHandshakeRejected = errors.New("hub handshake rejected")

// HubFrame is the union of every frame the client reads or writes. Unused
// fields are omitted on the wire.
type HubFrame struct {
	Type           int               `json:"type"`
	InvocationID   string            `json:"invocationId,omitempty"`
	Target         string            `json:"target,omitempty"`
	Arguments      []json.RawMessage `json:"arguments,omitempty"`
	Result         json.RawMessage   `json:"result,omitempty"`
	Error          string            `json:"error,omitempty"`
	AllowReconnect bool              `json:"allowReconnect,omitempty"`
}

// Invocation builds a client-to-server invocation frame.
func Invocation(id, target string, args ...any) (HubFrame, error) {
	raw := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return HubFrame{}, err
		}
		raw = append(raw, b)
	}

	return HubFrame{
		Type:         FrameInvocation,
		InvocationID: id,
		Target:       target,
		Arguments:    raw,
	}, nil
}

type handshakeRequest struct {
	Protocol string `json:"protocol"`
	Version  int    `json:"version"`
}

type handshakeResponse struct {
	Error string `json:"error,omitempty"`
}

// Encode serializes a frame followed by the record separator.
func Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, RecordSeparator), nil
}

// HandshakeRequest is the first message sent after the socket opens.
func HandshakeRequest() []byte {
	b, _ := Encode(handshakeRequest{Protocol: "json", Version: 1})
	return b
}

// ParseHandshakeResponse validates the server's handshake reply and returns
// any frames that arrived in the same websocket message after it.
func ParseHandshakeResponse(data []byte) ([][]byte, error) {
	records := Split(data)
	if len(records) == 0 {
		return nil, ErrHandshakeRejected
	}

	var resp handshakeResponse
	if err := json.Unmarshal(records[0], &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.Join(ErrHandshakeRejected, errors.New(resp.Error))
	}

	return records[1:], nil
}

// Split breaks a websocket message into its protocol records.
func Split(data []byte) [][]byte {
	parts := bytes.Split(data, []byte{RecordSeparator})
	records := make([][]byte, 0, len(parts))
	for _, p := range parts {
		if len(bytes.TrimSpace(p)) == 0 {
			continue
		}
		records = append(records, p)
	}
	return records
}
