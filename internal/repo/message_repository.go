package repo

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"Nestcare/internal/model"

	"go.uber.org/zap"
)

type messageRepository struct {
	client *Client
}

type MessageRepository interface {
	// SendMessage posts a message and blocks until the server has stored it
	// and, on AI-routed conversations, produced the reply.
	SendMessage(ctx context.Context, conversationID int64, content string) (*model.SendMessageResponse, error)
	// StreamMessage posts a message and reads the AI reply as server-sent
	// events, calling onChunk for every content chunk.
	StreamMessage(ctx context.Context, conversationID int64, content string, onChunk func(StreamChunk)) (*StreamResult, error)
}

func NewMessageRepository(client *Client) MessageRepository {
	return &messageRepository{client: client}
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (m *messageRepository) SendMessage(ctx context.Context, conversationID int64, content string) (*model.SendMessageResponse, error) {
	if err := validateSend(conversationID, content); err != nil {
		return nil, err
	}

	var resp model.SendMessageResponse
	path := fmt.Sprintf("/conversations/%d/messages", conversationID)
	if err := m.client.post(ctx, "send_message", path, sendMessageRequest{Content: content}, &resp); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	m.client.logger.Debug("message sent",
		zap.Int64("conversation_id", conversationID),
		zap.String("user_message_id", resp.UserMessage.ID.String()),
		zap.Bool("has_ai_reply", resp.AIMessage != nil),
	)
	return &resp, nil
}

func (m *messageRepository) StreamMessage(ctx context.Context, conversationID int64, content string, onChunk func(StreamChunk)) (*StreamResult, error) {
	if err := validateSend(conversationID, content); err != nil {
		return nil, err
	}

	ctx, cancel := m.client.ensureTimeout(ctx, defaultStreamTimeout)
	defer cancel()
	defer m.client.observe("stream_message", time.Now())

	path := fmt.Sprintf("/conversations/%d/messages/stream", conversationID)
	req, err := m.client.newRequest(ctx, http.MethodPost, path, sendMessageRequest{Content: content})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := m.client.http.Do(req)
	if err != nil {
		return nil, m.client.handleError("stream_message", fmt.Errorf("open stream: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, m.client.handleError("stream_message", readAPIError(resp))
	}

	result, err := readStream(ctx, resp.Body, onChunk)
	if err != nil {
		return nil, m.client.handleError("stream_message", err)
	}

	m.client.logger.Debug("stream completed",
		zap.Int64("conversation_id", conversationID),
		zap.Int("full_text_len", len(result.FullText)),
		zap.Int("display_text_len", len(result.DisplayText)),
		zap.String("message_id", result.MessageID.String()),
	)
	return result, nil
}

func validateSend(conversationID int64, content string) error {
	if conversationID <= 0 {
		return ErrInvalidConversation
	}
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	return nil
}
