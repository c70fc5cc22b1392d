package repo

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"Nestcare/internal/model"

	"go.uber.org/zap"
)

type conversationRepository struct {
	client *Client
}

type ConversationRepository interface {
	ListConversations(ctx context.Context) ([]model.Conversation, error)
	GetConversation(ctx context.Context, conversationID int64) (*model.Conversation, error)
	CreateConversation(ctx context.Context, req model.CreateConversationRequest) (*model.Conversation, error)
}

func NewConversationRepository(client *Client) ConversationRepository {
	return &conversationRepository{client: client}
}

func (r *conversationRepository) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	var conversations []model.Conversation
	if err := r.client.get(ctx, "list_conversations", "/conversations", &conversations); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	r.client.logger.Debug("conversations retrieved", zap.Int("count", len(conversations)))
	return conversations, nil
}

// GetConversation returns the conversation with its message history.
func (r *conversationRepository) GetConversation(ctx context.Context, conversationID int64) (*model.Conversation, error) {
	if conversationID <= 0 {
		return nil, ErrInvalidConversation
	}

	var conversation model.Conversation
	err := r.client.get(ctx, "get_conversation", fmt.Sprintf("/conversations/%d", conversationID), &conversation)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation %d: %w", conversationID, err)
	}

	r.client.logger.Debug("conversation retrieved",
		zap.Int64("conversation_id", conversationID),
		zap.Int("messages", len(conversation.Messages)),
		zap.Bool("has_active_support", conversation.HasActiveSupport),
	)
	return &conversation, nil
}

func (r *conversationRepository) CreateConversation(ctx context.Context, req model.CreateConversationRequest) (*model.Conversation, error) {
	var conversation model.Conversation
	if err := r.client.post(ctx, "create_conversation", "/conversations", req, &conversation); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	r.client.logger.Info("conversation created", zap.Int64("conversation_id", conversation.ID))
	return &conversation, nil
}
