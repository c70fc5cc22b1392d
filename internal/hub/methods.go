package hub

import (
	"context"
	"encoding/json"

	"Nestcare/internal/event"
)

// Typed wrappers for the server methods the client invokes.

func (c *Client) JoinConversation(ctx context.Context, conversationID int64) error {
	_, err := c.Invoke(ctx, event.MethodJoinConversation, conversationID)
	return err
}

func (c *Client) LeaveConversation(ctx context.Context, conversationID int64) error {
	_, err := c.Invoke(ctx, event.MethodLeaveConversation, conversationID)
	return err
}

// SendMessage returns the raw completion result, which is the persisted
// message when the hub provides one.
func (c *Client) SendMessage(ctx context.Context, conversationID int64, content string) (json.RawMessage, error) {
	return c.Invoke(ctx, event.MethodSendMessage, conversationID, content)
}

func (c *Client) NotifyTyping(ctx context.Context, conversationID int64, isTyping bool) error {
	_, err := c.Invoke(ctx, event.MethodNotifyTyping, conversationID, isTyping)
	return err
}

func (c *Client) MarkAsRead(ctx context.Context, conversationID int64) error {
	_, err := c.Invoke(ctx, event.MethodMarkAsRead, conversationID)
	return err
}

// RequestSupport sends a null reason when none is given.
func (c *Client) RequestSupport(ctx context.Context, conversationID int64, reason string) error {
	var r *string
	if reason != "" {
		r = &reason
	}
	_, err := c.Invoke(ctx, event.MethodRequestSupport, conversationID, r)
	return err
}

func (c *Client) AcceptSupportRequest(ctx context.Context, requestID int64) error {
	_, err := c.Invoke(ctx, event.MethodAcceptSupportRequest, requestID)
	return err
}

func (c *Client) ResolveSupport(ctx context.Context, requestID int64) error {
	_, err := c.Invoke(ctx, event.MethodResolveSupport, requestID)
	return err
}
