package model

// -----------------------------------------------------------------
// Status API Response Models
// -----------------------------------------------------------------

// StatusResponse is the main response for the local status API
type StatusResponse struct {
	Status        string             `json:"status"`        // "connected", "reconnecting", "disconnected"
	Session       SessionInfo        `json:"session"`       // Hub session details
	Conversations []ConversationInfo `json:"conversations"` // Open conversations
	Support       SupportQueueInfo   `json:"support"`       // Pending support requests (staff clients)
}

// SessionInfo describes the hub session
type SessionInfo struct {
	State       string `json:"state"`
	IsConnected bool   `json:"isConnected"`
	UserID      string `json:"userId,omitempty"`
	LastError   string `json:"lastError,omitempty"`
}

// ConversationInfo contains information about a single open conversation
type ConversationInfo struct {
	ConversationID   int64    `json:"conversationId"`
	TotalMessages    int      `json:"totalMessages"`
	PendingMessages  int      `json:"pendingMessages"` // Optimistic entries still sending
	FailedMessages   int      `json:"failedMessages"`  // Entries waiting for a retry
	HasActiveSupport bool     `json:"hasActiveSupport"`
	TypingUsers      []string `json:"typingUsers"`
}

// SupportQueueInfo holds the staff-side queue statistics
type SupportQueueInfo struct {
	Pending    int     `json:"pending"`
	RequestIDs []int64 `json:"requestIds"`
}
