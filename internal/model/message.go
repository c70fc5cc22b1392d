package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderCustomer SenderType = "Customer"
	SenderStaff    SenderType = "Staff"
	SenderAI       SenderType = "AI"
	SenderSystem   SenderType = "System"
)

// MessageStatus is only set on client-optimistic entries.
type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

// Temporary id prefixes. Anything carrying one of these has not been
// confirmed by the server yet.
const (
	TempIDPrefix   = "temp-"
	StreamIDPrefix = "ai-stream-"
	SystemIDPrefix = "system-"
)

// MessageID is either a server-assigned integer or a client-generated
// temporary string. The hub and REST API send server ids as JSON numbers.
type MessageID string

func (id MessageID) String() string { return string(id) }

// IsTemporary reports whether the id was generated on the client.
func (id MessageID) IsTemporary() bool {
	s := string(id)
	return strings.HasPrefix(s, TempIDPrefix) ||
		strings.HasPrefix(s, StreamIDPrefix) ||
		strings.HasPrefix(s, SystemIDPrefix)
}

// IsZero reports whether no id is set.
func (id MessageID) IsZero() bool { return id == "" }

func (id MessageID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return json.Marshal(string(id))
}

func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = MessageID(n.String())
	return nil
}

// Message is a single chat bubble.
type Message struct {
	ID             MessageID       `json:"id"`
	ConversationID int64           `json:"conversationId"`
	Content        string          `json:"content"`
	SenderType     SenderType      `json:"senderType"`
	SenderID       string          `json:"senderId,omitempty"`
	SenderName     string          `json:"senderName,omitempty"`
	CreatedAt      Timestamp       `json:"createdAt"`
	IsRead         bool            `json:"isRead"`
	Status         MessageStatus   `json:"status,omitempty"`
	StructuredData json.RawMessage `json:"structuredData,omitempty"`
}

// IsOptimistic reports whether the message is a client-side placeholder.
func (m Message) IsOptimistic() bool {
	return m.ID.IsTemporary()
}

// SendMessageResponse is returned by the non-streaming send endpoint.
type SendMessageResponse struct {
	UserMessage      Message         `json:"userMessage"`
	AIMessage        *Message        `json:"aiMessage,omitempty"`
	AIStructuredData json.RawMessage `json:"aiStructuredData,omitempty"`
}

// ErrorPayload represents an error sent by the hub's Error event.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
