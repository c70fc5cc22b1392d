// Package support keeps the staff-side list of pending support requests.
package support

import (
	"context"
	"sync"

	"Nestcare/internal/hub"
	"Nestcare/internal/model"

	"go.uber.org/zap"
)

// Session is the part of the session coordinator the queue needs.
type Session interface {
	AcceptSupportRequest(ctx context.Context, requestID int64) error
	ResolveSupport(ctx context.Context, requestID int64) error

	OnNewSupportRequest(fn func(model.SupportRequestEvent)) hub.Disposer
	OnSupportRequestAccepted(fn func(model.SupportRequestAcceptedEvent)) hub.Disposer
	OnSupportResolved(fn func(model.SupportResolvedEvent)) hub.Disposer
}

// Queue mirrors the support requests no staff member has taken yet.
type Queue struct {
	session Session
	logger  *zap.Logger

	mu        sync.Mutex
	pending   []model.SupportRequestEvent
	disposers []hub.Disposer
}

type Option func(*Queue)

func WithLogger(logger *zap.Logger) Option {
	return func(q *Queue) { q.logger = logger.Named("support") }
}

func NewQueue(session Session, opts ...Option) *Queue {
	q := &Queue{
		session: session,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}

	q.disposers = []hub.Disposer{
		session.OnNewSupportRequest(q.add),
		session.OnSupportRequestAccepted(func(e model.SupportRequestAcceptedEvent) {
			if q.remove(e.RequestID) {
				q.logger.Info("support request taken",
					zap.Int64("request_id", e.RequestID),
					zap.String("staff", e.StaffName),
				)
			}
		}),
		session.OnSupportResolved(func(e model.SupportResolvedEvent) {
			q.remove(e.RequestID)
		}),
	}
	return q
}

func (q *Queue) add(e model.SupportRequestEvent) {
	q.mu.Lock()
	for _, p := range q.pending {
		if p.RequestID == e.RequestID {
			q.mu.Unlock()
			return
		}
	}
	q.pending = append(q.pending, e)
	q.mu.Unlock()

	q.logger.Info("new support request",
		zap.Int64("request_id", e.RequestID),
		zap.Int64("conversation_id", e.ConversationID),
		zap.String("customer", e.CustomerName),
	)
}

func (q *Queue) remove(requestID int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, p := range q.pending {
		if p.RequestID == requestID {
			q.pending = append(q.pending[:i:i], q.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Pending returns the open requests in arrival order.
func (q *Queue) Pending() []model.SupportRequestEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.SupportRequestEvent(nil), q.pending...)
}

// Accept takes a request. The entry leaves the queue when the hub confirms
// with SupportRequestAccepted, which every staff client receives.
func (q *Queue) Accept(ctx context.Context, requestID int64) error {
	return q.session.AcceptSupportRequest(ctx, requestID)
}

func (q *Queue) Resolve(ctx context.Context, requestID int64) error {
	if err := q.session.ResolveSupport(ctx, requestID); err != nil {
		return err
	}
	q.remove(requestID)
	return nil
}

func (q *Queue) Info() model.SupportQueueInfo {
	q.mu.Lock()
	defer q.mu.Unlock()

	info := model.SupportQueueInfo{
		Pending:    len(q.pending),
		RequestIDs: make([]int64, 0, len(q.pending)),
	}
	for _, p := range q.pending {
		info.RequestIDs = append(info.RequestIDs, p.RequestID)
	}
	return info
}

func (q *Queue) Close() {
	q.mu.Lock()
	disposers := q.disposers
	q.disposers = nil
	q.mu.Unlock()

	for _, dispose := range disposers {
		dispose()
	}
}
