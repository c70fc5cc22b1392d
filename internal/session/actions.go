package session

import (
	"bytes"
	"context"
	"encoding/json"

	"Nestcare/internal/model"

	"go.uber.org/zap"
)

// Actions log failures and return them unchanged; user-facing handling is
// up to the caller.

func (c *Coordinator) JoinConversation(ctx context.Context, conversationID int64) error {
	err := c.transport.JoinConversation(ctx, conversationID)
	c.logFailure("JoinConversation", err, zap.Int64("conversation_id", conversationID))
	return err
}

func (c *Coordinator) LeaveConversation(ctx context.Context, conversationID int64) error {
	err := c.transport.LeaveConversation(ctx, conversationID)
	c.logFailure("LeaveConversation", err, zap.Int64("conversation_id", conversationID))
	return err
}

// SendMessage sends over the hub. The returned message is nil when the hub
// completes without echoing the persisted message.
func (c *Coordinator) SendMessage(ctx context.Context, conversationID int64, content string) (*model.Message, error) {
	raw, err := c.transport.SendMessage(ctx, conversationID, content)
	if err != nil {
		c.logFailure("SendMessage", err, zap.Int64("conversation_id", conversationID))
		return nil, err
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || raw[0] != '{' {
		return nil, nil
	}
	var msg model.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Warn("ignoring undecodable SendMessage result",
			zap.Int64("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil, nil
	}
	if msg.ID.IsZero() {
		return nil, nil
	}
	return &msg, nil
}

func (c *Coordinator) NotifyTyping(ctx context.Context, conversationID int64, isTyping bool) error {
	err := c.transport.NotifyTyping(ctx, conversationID, isTyping)
	c.logFailure("NotifyTyping", err,
		zap.Int64("conversation_id", conversationID),
		zap.Bool("is_typing", isTyping),
	)
	return err
}

func (c *Coordinator) MarkAsRead(ctx context.Context, conversationID int64) error {
	err := c.transport.MarkAsRead(ctx, conversationID)
	c.logFailure("MarkAsRead", err, zap.Int64("conversation_id", conversationID))
	return err
}

func (c *Coordinator) RequestSupport(ctx context.Context, conversationID int64, reason string) error {
	err := c.transport.RequestSupport(ctx, conversationID, reason)
	c.logFailure("RequestSupport", err, zap.Int64("conversation_id", conversationID))
	return err
}

func (c *Coordinator) AcceptSupportRequest(ctx context.Context, requestID int64) error {
	err := c.transport.AcceptSupportRequest(ctx, requestID)
	c.logFailure("AcceptSupportRequest", err, zap.Int64("request_id", requestID))
	return err
}

func (c *Coordinator) ResolveSupport(ctx context.Context, requestID int64) error {
	err := c.transport.ResolveSupport(ctx, requestID)
	c.logFailure("ResolveSupport", err, zap.Int64("request_id", requestID))
	return err
}

func (c *Coordinator) logFailure(method string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	fields = append(fields, zap.String("method", method), zap.Error(err))
	c.logger.Error("hub action failed", fields...)
}
