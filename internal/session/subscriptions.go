package session

import (
	"encoding/json"

	"Nestcare/internal/event"
	"Nestcare/internal/hub"
	"Nestcare/internal/model"

	"go.uber.org/zap"
)

// subscribe decodes the first event argument into T. Events that cannot be
// decoded are logged and dropped.
func subscribe[T any](c *Coordinator, name string, fn func(T)) hub.Disposer {
	return c.transport.On(name, func(args []json.RawMessage) {
		if len(args) == 0 {
			c.logger.Warn("event without payload", zap.String("event", name))
			return
		}
		var v T
		if err := json.Unmarshal(args[0], &v); err != nil {
			c.logger.Warn("dropping undecodable event", zap.String("event", name), zap.Error(err))
			return
		}
		fn(v)
	})
}

func (c *Coordinator) OnReceiveMessage(fn func(model.Message)) hub.Disposer {
	return subscribe(c, event.EventReceiveMessage, fn)
}

func (c *Coordinator) OnUserTyping(fn func(model.TypingEvent)) hub.Disposer {
	return subscribe(c, event.EventUserTyping, fn)
}

func (c *Coordinator) OnMessagesRead(fn func(model.MessagesReadEvent)) hub.Disposer {
	return subscribe(c, event.EventMessagesRead, fn)
}

func (c *Coordinator) OnStaffJoined(fn func(model.StaffJoinedEvent)) hub.Disposer {
	return subscribe(c, event.EventStaffJoined, fn)
}

func (c *Coordinator) OnSupportRequestCreated(fn func(model.SupportRequestEvent)) hub.Disposer {
	return subscribe(c, event.EventSupportRequestCreated, fn)
}

func (c *Coordinator) OnNewSupportRequest(fn func(model.SupportRequestEvent)) hub.Disposer {
	return subscribe(c, event.EventNewSupportRequest, fn)
}

func (c *Coordinator) OnSupportRequestAccepted(fn func(model.SupportRequestAcceptedEvent)) hub.Disposer {
	return subscribe(c, event.EventSupportRequestAccepted, fn)
}

func (c *Coordinator) OnSupportResolved(fn func(model.SupportResolvedEvent)) hub.Disposer {
	return subscribe(c, event.EventSupportResolved, fn)
}

func (c *Coordinator) OnUserJoined(fn func(model.PresenceEvent)) hub.Disposer {
	return subscribe(c, event.EventUserJoined, fn)
}

func (c *Coordinator) OnUserLeft(fn func(model.PresenceEvent)) hub.Disposer {
	return subscribe(c, event.EventUserLeft, fn)
}

// OnError accepts either an error object or a bare string payload.
func (c *Coordinator) OnError(fn func(model.ErrorPayload)) hub.Disposer {
	return c.transport.On(event.EventError, func(args []json.RawMessage) {
		if len(args) == 0 {
			return
		}
		var payload model.ErrorPayload
		if err := json.Unmarshal(args[0], &payload); err != nil {
			var text string
			if err := json.Unmarshal(args[0], &text); err != nil {
				c.logger.Warn("dropping undecodable error event", zap.Error(err))
				return
			}
			payload.Message = text
		}
		fn(payload)
	})
}

// OnConnected fires on every transition to Connected, reconnects included.
// Hub groups do not survive a reconnect, so conversations use it to rejoin.
func (c *Coordinator) OnConnected(fn func()) hub.Disposer {
	return c.transport.OnStateChange(func(change hub.StateChange) {
		if change.To == hub.StateConnected {
			fn()
		}
	})
}
