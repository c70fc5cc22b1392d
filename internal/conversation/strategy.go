package conversation

import (
	"context"
	"fmt"
	"time"

	"Nestcare/internal/metrics"
	"Nestcare/internal/model"
	"Nestcare/internal/repo"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultRefetchDelay is how long an empty stream waits before reading the
// reply back from history. The stream endpoint gives no stronger guarantee,
// so it stays tunable.
const DefaultRefetchDelay = 500 * time.Millisecond

// CompletionStrategy produces the AI reply for one customer message.
// Implementations report progress only through the Turn.
type CompletionStrategy interface {
	Complete(ctx context.Context, turn *Turn) error
}

// Turn is one customer message and the AI reply it triggers. It owns the
// placeholder bookkeeping shared by every strategy.
type Turn struct {
	ConversationID int64
	Text           string

	user        model.Message
	placeholder model.MessageID
	shown       bool
	dispatch    func(Action)
}

func newTurn(user model.Message, dispatch func(Action)) *Turn {
	return &Turn{
		ConversationID: user.ConversationID,
		Text:           user.Content,
		user:           user,
		placeholder:    model.MessageID(model.StreamIDPrefix + uuid.NewString()),
		dispatch:       dispatch,
	}
}

// UserMessageID is the temporary id of the optimistic customer message.
func (t *Turn) UserMessageID() model.MessageID { return t.user.ID }

func (t *Turn) Typing(on bool) {
	t.dispatch(SetAITyping{Typing: on})
}

// Chunk shows streamed text. The first call inserts the placeholder, later
// calls update it in place.
func (t *Turn) Chunk(displayText string) {
	if displayText == "" {
		return
	}
	t.dispatch(StreamChunk{
		PlaceholderID: t.placeholder,
		DisplayText:   displayText,
		CreatedAt:     model.Now(),
	})
	t.shown = true
}

// ReconcileUser replaces the optimistic customer message with the server's.
func (t *Turn) ReconcileUser(msg model.Message) {
	if msg.ID.IsZero() {
		t.MarkUserSent()
		return
	}
	t.dispatch(Reconciled{TempID: t.user.ID, Message: msg})
}

// RekeyUser gives the optimistic customer message its server id.
func (t *Turn) RekeyUser(id model.MessageID) {
	msg := t.user
	msg.ID = id
	msg.Status = ""
	t.ReconcileUser(msg)
}

func (t *Turn) MarkUserSent() {
	t.dispatch(MarkStatus{ID: t.user.ID, Status: model.StatusSent})
}

// ReconcileAI replaces the placeholder with the authoritative reply, or
// inserts the reply when nothing was streamed.
func (t *Turn) ReconcileAI(msg model.Message) {
	if t.shown {
		t.dispatch(Reconciled{TempID: t.placeholder, Message: msg})
		return
	}
	t.dispatch(Received{Message: msg})
}

// RekeyAI confirms the streamed placeholder under its server id.
func (t *Turn) RekeyAI(id model.MessageID, displayText string, structured []byte) {
	t.ReconcileAI(model.Message{
		ID:             id,
		ConversationID: t.ConversationID,
		Content:        displayText,
		SenderType:     model.SenderAI,
		CreatedAt:      model.Now(),
		StructuredData: structured,
	})
}

func (t *Turn) DiscardPlaceholder() {
	if t.shown {
		t.dispatch(Removed{ID: t.placeholder})
		t.shown = false
	}
}

// ApplyResponse reconciles both sides of a blocking send in one step.
func (t *Turn) ApplyResponse(resp *model.SendMessageResponse) {
	t.ReconcileUser(resp.UserMessage)
	if resp.AIMessage == nil {
		t.DiscardPlaceholder()
		return
	}
	ai := *resp.AIMessage
	if len(ai.StructuredData) == 0 && len(resp.AIStructuredData) > 0 {
		ai.StructuredData = resp.AIStructuredData
	}
	t.ReconcileAI(ai)
}

// Fail leaves the customer message in place, marked for retry.
func (t *Turn) Fail(err error) {
	t.DiscardPlaceholder()
	t.dispatch(SetAITyping{Typing: false})
	t.dispatch(MarkStatus{ID: t.user.ID, Status: model.StatusFailed})
	t.dispatch(SetError{Message: err.Error()})
}

// -----------------------------------------------------------------
// Blocking
// -----------------------------------------------------------------

// Blocking sends through the non-streaming endpoint and reconciles the
// user and AI messages from its response.
type Blocking struct {
	messages repo.MessageRepository
}

func NewBlocking(messages repo.MessageRepository) *Blocking {
	return &Blocking{messages: messages}
}

func (b *Blocking) Complete(ctx context.Context, turn *Turn) error {
	turn.Typing(true)
	resp, err := b.messages.SendMessage(ctx, turn.ConversationID, turn.Text)
	turn.Typing(false)
	if err != nil {
		return err
	}

	turn.ApplyResponse(resp)
	return nil
}

// -----------------------------------------------------------------
// Streaming
// -----------------------------------------------------------------

// Streaming reads the reply as it is generated and falls back to another
// strategy when the stream fails.
type Streaming struct {
	messages      repo.MessageRepository
	conversations repo.ConversationRepository
	fallback      CompletionStrategy
	refetchDelay  time.Duration
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

type StreamingOption func(*Streaming)

func WithRefetchDelay(d time.Duration) StreamingOption {
	return func(s *Streaming) { s.refetchDelay = d }
}

func WithStreamingLogger(logger *zap.Logger) StreamingOption {
	return func(s *Streaming) { s.logger = logger }
}

func WithStreamingMetrics(m *metrics.Metrics) StreamingOption {
	return func(s *Streaming) { s.metrics = m }
}

func NewStreaming(messages repo.MessageRepository, conversations repo.ConversationRepository, fallback CompletionStrategy, opts ...StreamingOption) *Streaming {
	s := &Streaming{
		messages:      messages,
		conversations: conversations,
		fallback:      fallback,
		refetchDelay:  DefaultRefetchDelay,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Streaming) Complete(ctx context.Context, turn *Turn) error {
	turn.Typing(true)

	res, err := s.messages.StreamMessage(ctx, turn.ConversationID, turn.Text, func(chunk repo.StreamChunk) {
		turn.Chunk(chunk.DisplayText)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("stream failed, falling back to blocking send",
			zap.Int64("conversation_id", turn.ConversationID),
			zap.Error(err),
		)
		if s.metrics != nil {
			s.metrics.StreamFallbacks.Inc()
		}
		if s.fallback == nil {
			return err
		}
		return s.fallback.Complete(ctx, turn)
	}

	if !res.UserMessageID.IsZero() {
		turn.RekeyUser(res.UserMessageID)
	}
	needReply := res.DisplayText == "" || res.MessageID.IsZero()
	if !needReply {
		turn.RekeyAI(res.MessageID, res.DisplayText, res.StructuredData)
	}
	if needReply || res.UserMessageID.IsZero() {
		return s.refetch(ctx, turn, res.UserMessageID, needReply)
	}
	turn.Typing(false)
	return nil
}

// refetch reads the turn back from history when the stream left out an id
// or carried no visible text, such as a tool-call-only reply. Without it a
// temporary entry would stay next to the server's copy.
func (s *Streaming) refetch(ctx context.Context, turn *Turn, userID model.MessageID, needReply bool) error {
	turn.Typing(true)
	defer turn.Typing(false)

	timer := time.NewTimer(s.refetchDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	// the customer message is already delivered here, so a failed refetch
	// is reported without failing the turn; streamed text stays visible
	conv, err := s.conversations.GetConversation(ctx, turn.ConversationID)
	if err != nil {
		if userID.IsZero() {
			turn.MarkUserSent()
		}
		turn.dispatch(SetError{Message: fmt.Sprintf("load reply: %v", err)})
		s.logger.Error("refetch after stream failed",
			zap.Int64("conversation_id", turn.ConversationID),
			zap.Error(err),
		)
		return nil
	}

	user, reply := findTurn(conv, userID, turn.Text)
	if userID.IsZero() {
		if user != nil {
			turn.ReconcileUser(*user)
		} else {
			turn.MarkUserSent()
		}
	}
	if !needReply {
		return nil
	}

	switch {
	case reply != nil:
		turn.ReconcileAI(*reply)
	case user == nil && !turn.shown:
		// The customer message is not in history yet, so fall back to
		// recency. Concurrent sends to one conversation can pick the
		// wrong reply here; an older one is dropped as a duplicate.
		if latest := conv.LatestBySender(model.SenderAI); latest != nil {
			turn.ReconcileAI(*latest)
		}
	}
	return nil
}

// findTurn locates the customer message of a turn in history, by id when
// known and otherwise by its text, and the first AI reply after it.
func findTurn(conv *model.Conversation, userID model.MessageID, text string) (user, reply *model.Message) {
	at := -1
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		m := conv.Messages[i]
		if userID.IsZero() {
			if m.SenderType == model.SenderCustomer && m.Content == text {
				at = i
				break
			}
		} else if m.ID == userID {
			at = i
			break
		}
	}
	if at < 0 {
		return nil, nil
	}

	u := conv.Messages[at]
	for _, m := range conv.Messages[at+1:] {
		if m.SenderType == model.SenderAI {
			r := m
			return &u, &r
		}
	}
	return &u, nil
}

// NewStrategy selects the completion path once, from configuration.
func NewStrategy(streaming bool, messages repo.MessageRepository, conversations repo.ConversationRepository, opts ...StreamingOption) CompletionStrategy {
	blocking := NewBlocking(messages)
	if !streaming {
		return blocking
	}
	return NewStreaming(messages, conversations, blocking, opts...)
}
