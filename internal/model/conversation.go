package model

// Conversation is the REST representation of a support conversation.
type Conversation struct {
	ID                int64     `json:"id"`
	ParticipantName   string    `json:"participantName,omitempty"`
	ParticipantAvatar string    `json:"participantAvatar,omitempty"`
	Title             string    `json:"title,omitempty"`
	Messages          []Message `json:"messages"`
	HasActiveSupport  bool      `json:"hasActiveSupport"`
	CreatedAt         Timestamp `json:"createdAt"`
	UpdatedAt         Timestamp `json:"updatedAt"`
	LastMessage       *Message  `json:"lastMessage,omitempty"`
	UnreadCount       int       `json:"unreadCount,omitempty"`
}

// CreateConversationRequest opens a new conversation, optionally with a
// first message.
type CreateConversationRequest struct {
	Title          string `json:"title,omitempty"`
	InitialMessage string `json:"initialMessage,omitempty"`
}

// LatestBySender returns the most recent message authored by sender, or nil.
func (c *Conversation) LatestBySender(sender SenderType) *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].SenderType == sender {
			m := c.Messages[i]
			return &m
		}
	}
	return nil
}
