package model

// TypingEvent is pushed on UserTyping.
type TypingEvent struct {
	UserID         string    `json:"userId"`
	UserName       string    `json:"userName"`
	ConversationID int64     `json:"conversationId"`
	IsTyping       bool      `json:"isTyping"`
	Timestamp      Timestamp `json:"timestamp"`
}

// MessagesReadEvent is pushed on MessagesRead.
type MessagesReadEvent struct {
	ConversationID int64     `json:"conversationId"`
	UserID         string    `json:"userId"`
	ReadAt         Timestamp `json:"readAt"`
}

// SupportRequestEvent is pushed on SupportRequestCreated (to the customer)
// and NewSupportRequest (to staff).
type SupportRequestEvent struct {
	ConversationID int64     `json:"conversationId"`
	RequestID      int64     `json:"requestId"`
	CustomerName   string    `json:"customerName,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Message        string    `json:"message,omitempty"`
	Timestamp      Timestamp `json:"timestamp"`
}

// SupportRequestAcceptedEvent is pushed to staff when a colleague takes a request.
type SupportRequestAcceptedEvent struct {
	ConversationID int64     `json:"conversationId"`
	RequestID      int64     `json:"requestId"`
	StaffID        string    `json:"staffId,omitempty"`
	StaffName      string    `json:"staffName,omitempty"`
	Timestamp      Timestamp `json:"timestamp"`
}

// StaffJoinedEvent moves a conversation to staff routing.
type StaffJoinedEvent struct {
	ConversationID int64     `json:"conversationId"`
	RequestID      int64     `json:"requestId"`
	StaffID        string    `json:"staffId,omitempty"`
	StaffName      string    `json:"staffName,omitempty"`
	Message        string    `json:"message,omitempty"`
	Timestamp      Timestamp `json:"timestamp"`
}

// SupportResolvedEvent moves a conversation back to AI routing.
type SupportResolvedEvent struct {
	ConversationID int64     `json:"conversationId"`
	RequestID      int64     `json:"requestId"`
	Message        string    `json:"message,omitempty"`
	Timestamp      Timestamp `json:"timestamp"`
}

// PresenceEvent is pushed on UserJoined and UserLeft.
type PresenceEvent struct {
	ConversationID int64     `json:"conversationId"`
	UserID         string    `json:"userId"`
	UserName       string    `json:"userName,omitempty"`
	Timestamp      Timestamp `json:"timestamp"`
}
