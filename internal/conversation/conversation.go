package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"Nestcare/internal/hub"
	"Nestcare/internal/metrics"
	"Nestcare/internal/model"
	"Nestcare/internal/repo"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrClosed        = errors.New("conversation is closed")
	ErrNotOpen       = errors.New("conversation is not open")
	ErrAlreadyOpen   = errors.New("conversation is already open")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrNotRetryable  = errors.New("message is not in a failed state")
	ErrMessageAbsent = errors.New("message not found")
)

// Session is the part of the session coordinator a conversation uses.
// *session.Coordinator implements it.
type Session interface {
	IsConnected() bool
	UserID() string

	JoinConversation(ctx context.Context, conversationID int64) error
	LeaveConversation(ctx context.Context, conversationID int64) error
	SendMessage(ctx context.Context, conversationID int64, content string) (*model.Message, error)
	NotifyTyping(ctx context.Context, conversationID int64, isTyping bool) error
	MarkAsRead(ctx context.Context, conversationID int64) error
	RequestSupport(ctx context.Context, conversationID int64, reason string) error

	OnConnected(fn func()) hub.Disposer
	OnReceiveMessage(fn func(model.Message)) hub.Disposer
	OnUserTyping(fn func(model.TypingEvent)) hub.Disposer
	OnMessagesRead(fn func(model.MessagesReadEvent)) hub.Disposer
	OnStaffJoined(fn func(model.StaffJoinedEvent)) hub.Disposer
	OnSupportRequestCreated(fn func(model.SupportRequestEvent)) hub.Disposer
	OnSupportResolved(fn func(model.SupportResolvedEvent)) hub.Disposer
}

// Conversation is the view-model of one open conversation. It owns the
// routing decision between the AI and staff send paths.
type Conversation struct {
	session       Session
	conversations repo.ConversationRepository
	store         *Store
	strategy      CompletionStrategy
	logger        *zap.Logger
	metrics       *metrics.Metrics

	typingTTL  time.Duration
	typingIdle time.Duration

	incoming *typingTracker
	outgoing *typingNotifier

	id atomic.Int64

	// mu guards the lifecycle. Dispatch holds it for reading so Close
	// cannot interleave with a state update.
	mu        sync.RWMutex
	open      bool
	closed    bool
	disposers []hub.Disposer
	life      context.Context
	end       context.CancelFunc
}

type Option func(*Conversation)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Conversation) { c.logger = logger.Named("conversation") }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Conversation) { c.metrics = m }
}

// WithTypingTTL sets how long a remote typist stays visible without a
// further event.
func WithTypingTTL(d time.Duration) Option {
	return func(c *Conversation) { c.typingTTL = d }
}

// WithTypingIdle sets how long local input may pause before the hub is told
// the user stopped typing.
func WithTypingIdle(d time.Duration) Option {
	return func(c *Conversation) { c.typingIdle = d }
}

func New(session Session, conversations repo.ConversationRepository, store *Store, strategy CompletionStrategy, opts ...Option) *Conversation {
	c := &Conversation{
		session:       session,
		conversations: conversations,
		store:         store,
		strategy:      strategy,
		logger:        zap.NewNop(),
		typingTTL:     DefaultTypingTTL,
		typingIdle:    DefaultTypingIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.life, c.end = context.WithCancel(context.Background())

	c.incoming = newTypingTracker(c.typingTTL,
		func(name string) { c.dispatch(TypingStarted{Name: name}) },
		func(name string) { c.dispatch(TypingStopped{Name: name}) },
	)
	c.outgoing = newTypingNotifier(c.typingIdle, c.notifyTyping)
	return c
}

// ID returns the conversation id, or 0 before Open.
func (c *Conversation) ID() int64 {
	return c.id.Load()
}

// Open loads the conversation, subscribes to its events and joins the hub
// group. The join is skipped while disconnected and retried on every
// reconnect.
func (c *Conversation) Open(ctx context.Context, id int64) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.open:
		c.mu.Unlock()
		return ErrAlreadyOpen
	}
	c.mu.Unlock()

	conv, err := c.conversations.GetConversation(ctx, id)
	if err != nil {
		return fmt.Errorf("open conversation %d: %w", id, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.id.Store(id)
	c.open = true
	c.store.Dispatch(id, Loaded{Conversation: *conv})
	c.subscribe()
	c.mu.Unlock()

	c.logger.Info("conversation opened",
		zap.Int64("conversation_id", id),
		zap.Int("messages", len(conv.Messages)),
		zap.Bool("has_active_support", conv.HasActiveSupport),
	)

	c.join(ctx)
	return nil
}

func (c *Conversation) subscribe() {
	s := c.session
	c.disposers = append(c.disposers,
		s.OnReceiveMessage(func(m model.Message) {
			if c.owns(m.ConversationID) {
				c.dispatch(Received{Message: m})
			}
		}),
		s.OnUserTyping(c.handleTyping),
		s.OnMessagesRead(func(e model.MessagesReadEvent) {
			if c.owns(e.ConversationID) {
				c.dispatch(MessagesRead{ReaderID: e.UserID})
			}
		}),
		s.OnStaffJoined(func(e model.StaffJoinedEvent) {
			if !c.owns(e.ConversationID) {
				return
			}
			text := e.Message
			if text == "" {
				text = staffJoinedText(e.StaffName)
			}
			c.dispatch(StaffJoined{Notice: c.notice(text, e.Timestamp)})
			c.logger.Info("staff joined", zap.Int64("conversation_id", e.ConversationID), zap.String("staff", e.StaffName))
		}),
		s.OnSupportRequestCreated(func(e model.SupportRequestEvent) {
			if !c.owns(e.ConversationID) {
				return
			}
			text := e.Message
			if text == "" {
				text = "Your support request has been sent. A staff member will join shortly."
			}
			c.dispatch(SupportRequested{Notice: c.notice(text, e.Timestamp)})
		}),
		s.OnSupportResolved(func(e model.SupportResolvedEvent) {
			if !c.owns(e.ConversationID) {
				return
			}
			text := e.Message
			if text == "" {
				text = "The conversation has been handed back to the assistant."
			}
			c.dispatch(SupportResolved{Notice: c.notice(text, e.Timestamp)})
			c.logger.Info("support resolved", zap.Int64("conversation_id", e.ConversationID))
		}),
		s.OnConnected(func() {
			ctx, cancel := context.WithTimeout(c.life, 10*time.Second)
			defer cancel()
			c.join(ctx)
		}),
	)
}

func (c *Conversation) join(ctx context.Context) {
	id := c.ID()
	if !c.session.IsConnected() {
		c.logger.Debug("not connected, join deferred", zap.Int64("conversation_id", id))
		return
	}
	if err := c.session.JoinConversation(ctx, id); err != nil {
		c.dispatch(SetError{Message: err.Error()})
	}
}

func (c *Conversation) handleTyping(e model.TypingEvent) {
	if !c.owns(e.ConversationID) {
		return
	}
	// never echo the local user's own typing
	if self := c.session.UserID(); self != "" && e.UserID == self {
		return
	}
	name := e.UserName
	if name == "" {
		name = e.UserID
	}
	if e.IsTyping {
		c.incoming.start(name)
	} else {
		c.incoming.stop(name)
	}
}

// State returns the current visible state.
func (c *Conversation) State() State {
	st, _ := c.store.Get(c.ID())
	return st
}

// Send appends the message optimistically and delivers it on the current
// route. The returned id is the temporary id; on failure the message stays
// in the list marked failed.
func (c *Conversation) Send(ctx context.Context, text string) (model.MessageID, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if err := c.ready(); err != nil {
		return "", err
	}
	id := c.ID()

	c.outgoing.stop(ctx)

	msg := model.Message{
		ID:             model.MessageID(model.TempIDPrefix + uuid.NewString()),
		ConversationID: id,
		Content:        text,
		SenderType:     model.SenderCustomer,
		SenderID:       c.session.UserID(),
		CreatedAt:      model.Now(),
		Status:         model.StatusSending,
	}
	c.dispatch(AppendOptimistic{Message: msg})

	return msg.ID, c.deliver(ctx, msg)
}

// Retry re-sends a failed message in place.
func (c *Conversation) Retry(ctx context.Context, id model.MessageID) error {
	if err := c.ready(); err != nil {
		return err
	}

	msg, ok := c.State().Message(id)
	if !ok {
		return ErrMessageAbsent
	}
	if msg.Status != model.StatusFailed {
		return ErrNotRetryable
	}

	c.dispatch(MarkStatus{ID: id, Status: model.StatusSending})
	msg.Status = model.StatusSending
	return c.deliver(ctx, msg)
}

func (c *Conversation) deliver(ctx context.Context, msg model.Message) error {
	ctx, cancel := c.bind(ctx)
	defer cancel()

	c.dispatch(SetError{})
	turn := newTurn(msg, c.dispatch)

	route := "ai"
	var err error
	if c.State().HasActiveSupport {
		route = "staff"
		err = c.sendToStaff(ctx, turn)
	} else {
		err = c.strategy.Complete(ctx, turn)
	}

	status := "ok"
	if err != nil {
		status = "failed"
		turn.Fail(err)
		c.logger.Error("send failed",
			zap.Int64("conversation_id", msg.ConversationID),
			zap.String("message_id", msg.ID.String()),
			zap.String("route", route),
			zap.Error(err),
		)
	}
	if c.metrics != nil {
		c.metrics.MessagesSent.WithLabelValues(route, status).Inc()
	}
	return err
}

// sendToStaff uses the plain hub send. When the hub does not return the
// stored message the optimistic entry is dropped, since the group broadcast
// delivers the authoritative copy.
func (c *Conversation) sendToStaff(ctx context.Context, turn *Turn) error {
	saved, err := c.session.SendMessage(ctx, turn.ConversationID, turn.Text)
	if err != nil {
		return err
	}
	if saved != nil {
		turn.ReconcileUser(*saved)
		return nil
	}
	c.dispatch(Removed{ID: turn.UserMessageID()})
	return nil
}

// Typing reports local input. The hub hears about it once per burst.
func (c *Conversation) Typing(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.outgoing.touch(ctx)
}

func (c *Conversation) notifyTyping(ctx context.Context, isTyping bool) error {
	if !c.session.IsConnected() {
		return nil
	}
	return c.session.NotifyTyping(ctx, c.ID(), isTyping)
}

// RequestSupport asks for a human. Routing only changes once staff join.
func (c *Conversation) RequestSupport(ctx context.Context, reason string) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := c.session.RequestSupport(ctx, c.ID(), strings.TrimSpace(reason)); err != nil {
		c.dispatch(SetError{Message: err.Error()})
		return err
	}
	return nil
}

func (c *Conversation) MarkAsRead(ctx context.Context) error {
	if err := c.ready(); err != nil {
		return err
	}
	if err := c.session.MarkAsRead(ctx, c.ID()); err != nil {
		return err
	}
	c.dispatch(MessagesRead{ReaderID: c.session.UserID()})
	return nil
}

// Close unsubscribes, stops timers, aborts in-flight sends and leaves the
// hub group if still connected. Later state updates are dropped.
func (c *Conversation) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	wasOpen := c.open
	id := c.ID()
	disposers := c.disposers
	c.disposers = nil
	c.end()
	c.mu.Unlock()

	for _, dispose := range disposers {
		dispose()
	}
	c.incoming.stopAll()
	c.outgoing.stop(ctx)

	if !wasOpen {
		return nil
	}
	c.store.Delete(id)

	var err error
	if c.session.IsConnected() {
		err = c.session.LeaveConversation(ctx, id)
	}
	c.logger.Info("conversation closed", zap.Int64("conversation_id", id))
	return err
}

// dispatch is the liveness guard: nothing reaches the store after Close.
func (c *Conversation) dispatch(a Action) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || !c.open {
		return
	}
	c.store.Dispatch(c.ID(), a)
}

func (c *Conversation) owns(conversationID int64) bool {
	return conversationID == c.ID()
}

func (c *Conversation) ready() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.closed:
		return ErrClosed
	case !c.open:
		return ErrNotOpen
	}
	return nil
}

// bind derives a context that also ends when the conversation closes.
func (c *Conversation) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (c *Conversation) notice(text string, ts model.Timestamp) model.Message {
	if ts.IsZero() {
		ts = model.Now()
	}
	return model.Message{
		ID:             model.MessageID(model.SystemIDPrefix + uuid.NewString()),
		ConversationID: c.ID(),
		Content:        text,
		SenderType:     model.SenderSystem,
		CreatedAt:      ts,
		IsRead:         true,
	}
}

func staffJoinedText(name string) string {
	if name == "" {
		return "A staff member has joined the conversation."
	}
	return name + " has joined the conversation."
}
