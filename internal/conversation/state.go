package conversation

import (
	"Nestcare/internal/model"
	"Nestcare/internal/service"
)

// State is the visible state of one conversation. Values are immutable
// once published: every transition builds new slices.
type State struct {
	ConversationID    int64           `json:"conversationId"`
	ParticipantName   string          `json:"participantName,omitempty"`
	ParticipantAvatar string          `json:"participantAvatar,omitempty"`
	Messages          []model.Message `json:"messages"`
	Typing            []string        `json:"typing"`
	HasActiveSupport  bool            `json:"hasActiveSupport"`
	AITyping          bool            `json:"aiTyping"`
	LastError         string          `json:"lastError,omitempty"`
}

// Message returns the entry with the given id.
func (s State) Message(id model.MessageID) (model.Message, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return model.Message{}, false
	}
	return s.Messages[i], true
}

func (s State) indexOf(id model.MessageID) int {
	return service.IndexOf(s.Messages, func(m model.Message) bool { return m.ID == id })
}

// Action is a state transition. The set of actions is closed.
type Action interface {
	isAction()
}

type (
	// Loaded replaces the state with a REST fetch.
	Loaded struct{ Conversation model.Conversation }
	// AppendOptimistic adds a client-side entry that is not confirmed yet.
	AppendOptimistic struct{ Message model.Message }
	// Received adds a server-pushed message unless its id is present.
	Received struct{ Message model.Message }
	// Reconciled swaps the entry TempID for its authoritative copy in place.
	Reconciled struct {
		TempID  model.MessageID
		Message model.Message
	}
	MarkStatus struct {
		ID     model.MessageID
		Status model.MessageStatus
	}
	Removed struct{ ID model.MessageID }
	// StreamChunk inserts or updates the AI placeholder of a streamed turn.
	StreamChunk struct {
		PlaceholderID model.MessageID
		DisplayText   string
		CreatedAt     model.Timestamp
	}
	SetAITyping   struct{ Typing bool }
	TypingStarted struct{ Name string }
	TypingStopped struct{ Name string }
	// StaffJoined moves the conversation to staff routing.
	StaffJoined struct{ Notice model.Message }
	// SupportRequested only acknowledges the request; routing is unchanged.
	SupportRequested struct{ Notice model.Message }
	// SupportResolved moves the conversation back to AI routing.
	SupportResolved struct{ Notice model.Message }
	// MessagesRead marks everything not written by ReaderID as read.
	MessagesRead struct{ ReaderID string }
	SetError     struct{ Message string }
)

func (Loaded) isAction()           {}
func (AppendOptimistic) isAction() {}
func (Received) isAction()         {}
func (Reconciled) isAction()       {}
func (MarkStatus) isAction()       {}
func (Removed) isAction()          {}
func (StreamChunk) isAction()      {}
func (SetAITyping) isAction()      {}
func (TypingStarted) isAction()    {}
func (TypingStopped) isAction()    {}
func (StaffJoined) isAction()      {}
func (SupportRequested) isAction() {}
func (SupportResolved) isAction()  {}
func (MessagesRead) isAction()     {}
func (SetError) isAction()         {}

// Reduce applies a to s. It never mutates s.
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case Loaded:
		return reduceLoaded(s, a)
	case AppendOptimistic:
		return appendUnique(s, a.Message)
	case Received:
		next := appendUnique(s, a.Message)
		if a.Message.SenderType == model.SenderAI || a.Message.SenderType == model.SenderStaff {
			next.AITyping = false
		}
		return next
	case Reconciled:
		return reduceReconciled(s, a)
	case MarkStatus:
		return updateMessage(s, a.ID, func(m *model.Message) { m.Status = a.Status })
	case Removed:
		if s.indexOf(a.ID) < 0 {
			return s
		}
		s.Messages = service.Filter(s.Messages, func(m model.Message) bool { return m.ID != a.ID })
		return s
	case StreamChunk:
		return reduceStreamChunk(s, a)
	case SetAITyping:
		s.AITyping = a.Typing
		return s
	case TypingStarted:
		if a.Name == "" || service.Contains(s.Typing, func(n string) bool { return n == a.Name }) {
			return s
		}
		s.Typing = append(append([]string(nil), s.Typing...), a.Name)
		return s
	case TypingStopped:
		s.Typing = service.Filter(s.Typing, func(n string) bool { return n != a.Name })
		return s
	case StaffJoined:
		s.HasActiveSupport = true
		return appendUnique(s, a.Notice)
	case SupportRequested:
		return appendUnique(s, a.Notice)
	case SupportResolved:
		s.HasActiveSupport = false
		return appendUnique(s, a.Notice)
	case MessagesRead:
		return reduceMessagesRead(s, a)
	case SetError:
		s.LastError = a.Message
		return s
	default:
		return s
	}
}

func reduceLoaded(s State, a Loaded) State {
	c := a.Conversation
	next := State{
		ConversationID:    c.ID,
		ParticipantName:   c.ParticipantName,
		ParticipantAvatar: c.ParticipantAvatar,
		HasActiveSupport:  c.HasActiveSupport,
		Typing:            s.Typing,
		Messages:          make([]model.Message, 0, len(c.Messages)),
	}
	for _, m := range c.Messages {
		if next.indexOf(m.ID) < 0 {
			next.Messages = append(next.Messages, m)
		}
	}
	// keep optimistic entries that the fetch cannot know about
	for _, m := range s.Messages {
		if m.IsOptimistic() && next.indexOf(m.ID) < 0 {
			next.Messages = append(next.Messages, m)
		}
	}
	return next
}

// appendUnique is the dedup rule: an id already in the list is never added
// twice. Messages without an id are dropped.
func appendUnique(s State, m model.Message) State {
	if m.ID.IsZero() || s.indexOf(m.ID) >= 0 {
		return s
	}
	msgs := make([]model.Message, len(s.Messages), len(s.Messages)+1)
	copy(msgs, s.Messages)
	s.Messages = append(msgs, m)
	return s
}

// reduceReconciled keeps the position of the temporary entry. A copy of the
// authoritative message that arrived earlier over the hub is dropped.
func reduceReconciled(s State, a Reconciled) State {
	at := s.indexOf(a.TempID)
	if at < 0 {
		return appendUnique(s, a.Message)
	}

	msgs := make([]model.Message, 0, len(s.Messages))
	for i, m := range s.Messages {
		switch {
		case i == at:
			msgs = append(msgs, a.Message)
		case m.ID == a.Message.ID:
			// echo delivered before the reconcile
		default:
			msgs = append(msgs, m)
		}
	}
	s.Messages = msgs
	return s
}

func reduceStreamChunk(s State, a StreamChunk) State {
	s.AITyping = false
	if s.indexOf(a.PlaceholderID) >= 0 {
		return updateMessage(s, a.PlaceholderID, func(m *model.Message) { m.Content = a.DisplayText })
	}
	return appendUnique(s, model.Message{
		ID:             a.PlaceholderID,
		ConversationID: s.ConversationID,
		Content:        a.DisplayText,
		SenderType:     model.SenderAI,
		CreatedAt:      a.CreatedAt,
	})
}

func reduceMessagesRead(s State, a MessagesRead) State {
	msgs := make([]model.Message, len(s.Messages))
	copy(msgs, s.Messages)
	for i := range msgs {
		if msgs[i].SenderID != a.ReaderID {
			msgs[i].IsRead = true
		}
	}
	s.Messages = msgs
	return s
}

func updateMessage(s State, id model.MessageID, fn func(*model.Message)) State {
	i := s.indexOf(id)
	if i < 0 {
		return s
	}
	msgs := make([]model.Message, len(s.Messages))
	copy(msgs, s.Messages)
	fn(&msgs[i])
	s.Messages = msgs
	return s
}
