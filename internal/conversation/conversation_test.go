package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"Nestcare/internal/event"
	"Nestcare/internal/hub"
	"Nestcare/internal/model"
	"Nestcare/internal/repo"
	"Nestcare/internal/session"
	"Nestcare/internal/session/sessiontest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	convID    = int64(7)
	selfID    = "customer-1"
	testToken = "opaque-test-token"
)

type fakeConversations struct {
	mu     sync.Mutex
	convs  map[int64]model.Conversation
	getErr error
	gets   int
}

func (f *fakeConversations) ListConversations(context.Context) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Conversation
	for _, c := range f.convs {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeConversations) GetConversation(_ context.Context, id int64) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.convs[id]
	if !ok {
		return nil, repo.ErrConversationNotFound
	}
	return &c, nil
}

func (f *fakeConversations) CreateConversation(_ context.Context, req model.CreateConversationRequest) (*model.Conversation, error) {
	return &model.Conversation{ID: 100, Title: req.Title}, nil
}

func (f *fakeConversations) set(c model.Conversation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.convs[c.ID] = c
}

type fakeMessages struct {
	send   func(ctx context.Context, id int64, content string) (*model.SendMessageResponse, error)
	stream func(ctx context.Context, id int64, content string, onChunk func(repo.StreamChunk)) (*repo.StreamResult, error)
}

func (f *fakeMessages) SendMessage(ctx context.Context, id int64, content string) (*model.SendMessageResponse, error) {
	if f.send == nil {
		return nil, errors.New("send not configured")
	}
	return f.send(ctx, id, content)
}

func (f *fakeMessages) StreamMessage(ctx context.Context, id int64, content string, onChunk func(repo.StreamChunk)) (*repo.StreamResult, error) {
	if f.stream == nil {
		return nil, errors.New("stream not configured")
	}
	return f.stream(ctx, id, content, onChunk)
}

type harness struct {
	transport *sessiontest.Transport
	session   *session.Coordinator
	convs     *fakeConversations
	messages  *fakeMessages
	store     *Store
	conv      *Conversation
}

func newHarness(t *testing.T, initial model.Conversation, streaming bool, opts ...Option) *harness {
	t.Helper()

	tr := sessiontest.NewTransport()
	require.NoError(t, tr.Connect(context.Background(), testToken))

	h := &harness{
		transport: tr,
		session:   session.New(tr, testToken),
		convs:     &fakeConversations{convs: map[int64]model.Conversation{}},
		messages:  &fakeMessages{},
		store:     NewStore(),
	}
	h.convs.set(initial)

	strategy := NewStrategy(streaming, h.messages, h.convs, WithRefetchDelay(10*time.Millisecond))
	h.conv = New(&selfSession{h.session}, h.convs, h.store, strategy, opts...)
	t.Cleanup(func() { _ = h.conv.Close(context.Background()) })
	return h
}

// selfSession pins the local user id, which the opaque test token lacks.
type selfSession struct {
	*session.Coordinator
}

func (s *selfSession) UserID() string { return selfID }

func (h *harness) open(t *testing.T) {
	t.Helper()
	require.NoError(t, h.conv.Open(context.Background(), convID))
}

func (h *harness) emit(t *testing.T, name string, payload any) {
	t.Helper()
	require.NoError(t, h.transport.Emit(name, payload))
}

func baseConversation() model.Conversation {
	return model.Conversation{
		ID: convID,
		Messages: []model.Message{
			{ID: "1", ConversationID: convID, SenderType: model.SenderAI, Content: "Xin chào! Tôi có thể giúp gì?"},
		},
	}
}

func placeholders(s State) int {
	n := 0
	for _, m := range s.Messages {
		if strings.HasPrefix(m.ID.String(), model.StreamIDPrefix) {
			n++
		}
	}
	return n
}

func TestOpen_LoadsAndJoins(t *testing.T) {
	h := newHarness(t, baseConversation(), true)
	h.open(t)

	st := h.conv.State()
	assert.Equal(t, convID, st.ConversationID)
	assert.Len(t, st.Messages, 1)
	assert.False(t, st.HasActiveSupport)

	joins := h.transport.Calls(event.MethodJoinConversation)
	require.Len(t, joins, 1)
	assert.Equal(t, []any{convID}, joins[0].Args)

	assert.ErrorIs(t, h.conv.Open(context.Background(), convID), ErrAlreadyOpen)
}

func TestOpen_NotFound(t *testing.T) {
	h := newHarness(t, baseConversation(), true)
	err := h.conv.Open(context.Background(), 404)
	assert.ErrorIs(t, err, repo.ErrConversationNotFound)

	_, err = h.conv.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestOpen_RejoinsAfterReconnect(t *testing.T) {
	h := newHarness(t, baseConversation(), true)
	h.open(t)

	h.transport.SetState(hub.StateReconnecting, errors.New("lost"))
	h.transport.SetState(hub.StateConnected, nil)

	assert.Len(t, h.transport.Calls(event.MethodJoinConversation), 2)
}

func TestReceiveMessage_Deduplicated(t *testing.T) {
	h := newHarness(t, baseConversation(), true)
	h.open(t)

	incoming := map[string]any{"id": 5, "conversationId": convID, "content": "Chào chị", "senderType": "Staff"}
	h.emit(t, event.EventReceiveMessage, incoming)
	before := len(h.conv.State().Messages)
	h.emit(t, event.EventReceiveMessage, incoming)

	assert.Equal(t, before, len(h.conv.State().Messages))
	assert.Equal(t, 2, before)
}

func TestReceiveMessage_OtherConversationIgnored(t *testing.T) {
	h := newHarness(t, baseConversation(), true)
	h.open(t)

	h.emit(t, event.EventReceiveMessage, map[string]any{"id": 5, "conversationId": convID + 1, "content": "x"})
	assert.Len(t, h.conv.State().Messages, 1)
}

func TestRouting_StaffJoinedAndResolved(t *testing.T) {
	h := newHarness(t, baseConversation(), true)
	h.open(t)

	h.emit(t, event.EventSupportRequestCreated, map[string]any{"conversationId": convID, "requestId": 3})
	st := h.conv.State()
	assert.False(t, st.HasActiveSupport)
	assert.Len(t, st.Messages, 2)

	h.emit(t, event.EventStaffJoined, map[string]any{
		"conversationId": convID, "requestId": 3, "staffName": "Hoa", "message": "Hoa đã tham gia cuộc trò chuyện",
	})
	st = h.conv.State()
	assert.True(t, st.HasActiveSupport)
	require.Len(t, st.Messages, 3)
	joined := st.Messages[2]
	assert.Equal(t, model.SenderSystem, joined.SenderType)
	assert.Equal(t, "Hoa đã tham gia cuộc trò chuyện", joined.Content)
	assert.True(t, joined.ID.IsTemporary())

	h.emit(t, event.EventSupportResolved, map[string]any{"conversationId": convID, "requestId": 3})
	st = h.conv.State()
	assert.False(t, st.HasActiveSupport)
	assert.Len(t, st.Messages, 4)
}

func TestTyping_ExpiresPerName(t *testing.T) {
	h := newHarness(t, baseConversation(), true, WithTypingTTL(250*time.Millisecond))
	h.open(t)

	typing := func(user, name string, on bool) {
		h.emit(t, event.EventUserTyping, map[string]any{
			"userId": user, "userName": name, "conversationId": convID, "isTyping": on,
		})
	}

	typing("u-a", "Lan", true)
	time.Sleep(20 * time.Millisecond)
	typing("u-b", "Mai", true)
	typing(selfID, "Me", true)

	assert.ElementsMatch(t, []string{"Lan", "Mai"}, h.conv.State().Typing)

	// Mai stopping must not touch Lan's timer
	typing("u-b", "Mai", false)
	assert.Equal(t, []string{"Lan"}, h.conv.State().Typing)

	require.Eventually(t, func() bool {
		return len(h.conv.State().Typing) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestTyping_RenewedEntryOutlivesOldTimer(t *testing.T) {
	h := newHarness(t, baseConversation(), true, WithTypingTTL(200*time.Millisecond))
	h.open(t)

	start := map[string]any{"userId": "u-a", "userName": "Lan", "conversationId": convID, "isTyping": true}
	h.emit(t, event.EventUserTyping, start)
	time.Sleep(120 * time.Millisecond)
	h.emit(t, event.EventUserTyping, start)
	time.Sleep(120 * time.Millisecond)

	assert.Equal(t, []string{"Lan"}, h.conv.State().Typing)
}

func TestSend_StreamingHappyPath(t *testing.T) {
	h := newHarness(t, baseConversation(), true)
	h.open(t)

	var maxPlaceholders int
	h.store.Subscribe(func(_ int64, st State) {
		if n := placeholders(st); n > maxPlaceholders {
			maxPlaceholders = n
		}
	})

	h.messages.stream = func(_ context.Context, id int64, content string, onChunk func(repo.StreamChunk)) (*repo.StreamResult, error) {
		assert.Equal(t, convID, id)
		assert.Equal(t, "Xin chào", content)
		onChunk(repo.StreamChunk{Chunk: "Xin", FullTextSoFar: "Xin", DisplayText: "Xin"})
		onChunk(repo.StreamChunk{Chunk: " chào bạn", FullTextSoFar: "Xin chào bạn", DisplayText: "Xin chào bạn"})
		return &repo.StreamResult{
			FullText: "Xin chào bạn", DisplayText: "Xin chào bạn",
			MessageID: "77", UserMessageID: "76",
		}, nil
	}

	tempID, err := h.conv.Send(context.Background(), "Xin chào")
	require.NoError(t, err)
	assert.True(t, tempID.IsTemporary())

	st := h.conv.State()
	require.Len(t, st.Messages, 3)
	assert.Equal(t, model.MessageID("76"), st.Messages[1].ID)
	assert.Equal(t, "Xin chào", st.Messages[1].Content)
	assert.Empty(t, st.Messages[1].Status)

	ai := st.Messages[2]
	assert.Equal(t, model.MessageID("77"), ai.ID)
	assert.Equal(t, "Xin chào bạn", ai.Content)
	assert.Equal(t, model.SenderAI, ai.SenderType)

	assert.Equal(t, 1, maxPlaceholders)
	assert.Zero(t, placeholders(st))
	assert.False(t, st.AITyping)
}

func TestSend_EmptyStreamRefetches(t *testing.T) {
	h := newHarness(t, baseConversation(), true)
	h.open(t)

	h.messages.stream = func(_ context.Context, _ int64, _ string, onChunk func(repo.StreamChunk)) (*repo.StreamResult, error) {
		onChunk(repo.StreamChunk{Chunk: "```json", FullTextSoFar: "```json", DisplayText: ""})
		withReply := baseConversation()
		withReply.Messages = append(withReply.Messages,
			model.Message{ID: "20", ConversationID: convID, SenderType: model.SenderCustomer, Content: "rooms?"},
			model.Message{ID: "21", ConversationID: convID, SenderType: model.SenderAI, Content: "Đây là danh sách phòng"},
		)
		h.convs.set(withReply)
		return &repo.StreamResult{FullText: "```json {}```", DisplayText: "", UserMessageID: "20"}, nil
	}

	_, err := h.conv.Send(context.Background(), "rooms?")
	require.NoError(t, err)

	st := h.conv.State()
	require.Len(t, st.Messages, 3)
	assert.Equal(t, model.MessageID("20"), st.Messages[1].ID)
	assert.Equal(t, model.MessageID("21"), st.Messages[2].ID)
	assert.Equal(t, "Đây là danh sách phòng", st.Messages[2].Content)
	assert.False(t, st.AITyping)
	assert.Zero(t, placeholders(st))
}

func TestSend_StreamErrorFallsBackToBlocking(t *testing.T) {
	h := newHarness(t, baseConversation(), true)
	h.open(t)

	h.messages.stream = func(_ context.Context, _ int64, _ string, onChunk func(repo.StreamChunk)) (*repo.StreamResult, error) {
		onChunk(repo.StreamChunk{DisplayText: "partial"})
		return nil, &repo.StreamError{Message: "upstream reset"}
	}
	h.messages.send = func(_ context.Context, _ int64, content string) (*model.SendMessageResponse, error) {
		return &model.SendMessageResponse{
			UserMessage: model.Message{ID: "30", ConversationID: convID, SenderType: model.SenderCustomer, Content: content},
			AIMessage:   &model.Message{ID: "31", ConversationID: convID, SenderType: model.SenderAI, Content: "full reply"},
		}, nil
	}

	_, err := h.conv.Send(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "30", "31"}, ids(h.conv.State()))
	assert.Equal(t, "full reply", h.conv.State().Messages[2].Content)
}

func TestSend_FailureMarksMessageAndRetrySucceeds(t *testing.T) {
	h := newHarness(t, baseConversation(), false)
	h.open(t)

	h.messages.send = func(context.Context, int64, string) (*model.SendMessageResponse, error) {
		return nil, &repo.APIError{StatusCode: 500, Message: "boom"}
	}

	tempID, err := h.conv.Send(context.Background(), "hello")
	var apiErr *repo.APIError
	require.True(t, errors.As(err, &apiErr))

	st := h.conv.State()
	failed, ok := st.Message(tempID)
	require.True(t, ok)
	assert.Equal(t, model.StatusFailed, failed.Status)
	assert.NotEmpty(t, st.LastError)
	assert.False(t, st.AITyping)

	h.messages.send = func(_ context.Context, _ int64, content string) (*model.SendMessageResponse, error) {
		return &model.SendMessageResponse{
			UserMessage: model.Message{ID: "40", ConversationID: convID, SenderType: model.SenderCustomer, Content: content},
			AIMessage:   &model.Message{ID: "41", ConversationID: convID, SenderType: model.SenderAI, Content: "ok"},
		}, nil
	}
	require.NoError(t, h.conv.Retry(context.Background(), tempID))

	st = h.conv.State()
	assert.Equal(t, []string{"1", "40", "41"}, ids(st))
	assert.Empty(t, st.LastError)

	assert.ErrorIs(t, h.conv.Retry(context.Background(), "40"), ErrNotRetryable)
	assert.ErrorIs(t, h.conv.Retry(context.Background(), "temp-missing"), ErrMessageAbsent)
}

func staffConversation() model.Conversation {
	c := baseConversation()
	c.HasActiveSupport = true
	return c
}

func TestSend_StaffRouteNotConnected(t *testing.T) {
	h := newHarness(t, staffConversation(), true)
	h.open(t)
	h.transport.SetState(hub.StateReconnecting, errors.New("lost"))

	tempID, err := h.conv.Send(context.Background(), "are you there?")

	var nce *hub.NotConnectedError
	require.True(t, errors.As(err, &nce))
	assert.Equal(t, event.MethodSendMessage, nce.Method)

	for _, m := range h.conv.State().Messages {
		if m.IsOptimistic() {
			assert.Equal(t, model.StatusFailed, m.Status)
		}
	}
	_, ok := h.conv.State().Message(tempID)
	assert.True(t, ok)
}

func TestSend_StaffRouteReconcilesHubResult(t *testing.T) {
	h := newHarness(t, staffConversation(), true)
	h.open(t)

	h.messages.stream = func(context.Context, int64, string, func(repo.StreamChunk)) (*repo.StreamResult, error) {
		t.Fatal("staff-routed send must not reach the AI")
		return nil, nil
	}
	saved := map[string]any{"id": 60, "conversationId": convID, "content": "cần hỗ trợ", "senderType": "Customer"}
	h.transport.Handle = func(method string, _ []any) (json.RawMessage, error, bool) {
		if method != event.MethodSendMessage {
			return nil, nil, false
		}
		// the group broadcast arrives before the completion
		require.NoError(t, h.transport.Emit(event.EventReceiveMessage, saved))
		raw, _ := json.Marshal(saved)
		return raw, nil, true
	}

	_, err := h.conv.Send(context.Background(), "cần hỗ trợ")
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "60"}, ids(h.conv.State()))
}

func TestSend_StaffRouteWithoutResultDropsOptimistic(t *testing.T) {
	h := newHarness(t, staffConversation(), true)
	h.open(t)

	_, err := h.conv.Send(context.Background(), "hello staff")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids(h.conv.State()))

	h.emit(t, event.EventReceiveMessage, map[string]any{"id": 61, "conversationId": convID, "content": "hello staff"})
	assert.Equal(t, []string{"1", "61"}, ids(h.conv.State()))
}

func TestSend_EmptyText(t *testing.T) {
	h := newHarness(t, baseConversation(), true)
	h.open(t)

	_, err := h.conv.Send(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestTyping_OutgoingDebounce(t *testing.T) {
	h := newHarness(t, staffConversation(), true, WithTypingIdle(40*time.Millisecond))
	h.open(t)
	ctx := context.Background()

	require.NoError(t, h.conv.Typing(ctx))
	require.NoError(t, h.conv.Typing(ctx))
	require.NoError(t, h.conv.Typing(ctx))

	calls := h.transport.Calls(event.MethodNotifyTyping)
	require.Len(t, calls, 1)
	assert.Equal(t, []any{convID, true}, calls[0].Args)

	require.Eventually(t, func() bool {
		return len(h.transport.Calls(event.MethodNotifyTyping)) == 2
	}, time.Second, 5*time.Millisecond)
	calls = h.transport.Calls(event.MethodNotifyTyping)
	assert.Equal(t, []any{convID, false}, calls[1].Args)

	// sending ends the burst right away
	require.NoError(t, h.conv.Typing(ctx))
	_, err := h.conv.Send(ctx, "done typing")
	require.NoError(t, err)
	calls = h.transport.Calls(event.MethodNotifyTyping)
	require.Len(t, calls, 4)
	assert.Equal(t, []any{convID, false}, calls[3].Args)
}

func TestRequestSupportAndMarkAsRead(t *testing.T) {
	h := newHarness(t, baseConversation(), true)
	h.open(t)
	ctx := context.Background()

	require.NoError(t, h.conv.RequestSupport(ctx, " need a human "))
	calls := h.transport.Calls(event.MethodRequestSupport)
	require.Len(t, calls, 1)
	assert.Equal(t, []any{convID, "need a human"}, calls[0].Args)
	assert.False(t, h.conv.State().HasActiveSupport)

	require.NoError(t, h.conv.MarkAsRead(ctx))
	assert.Len(t, h.transport.Calls(event.MethodMarkAsRead), 1)
	assert.True(t, h.conv.State().Messages[0].IsRead)
}

func TestClose_TearsDown(t *testing.T) {
	h := newHarness(t, baseConversation(), true, WithTypingTTL(time.Hour))
	h.open(t)

	h.emit(t, event.EventUserTyping, map[string]any{"userId": "u-a", "userName": "Lan", "conversationId": convID, "isTyping": true})
	require.NoError(t, h.conv.Close(context.Background()))

	leaves := h.transport.Calls(event.MethodLeaveConversation)
	require.Len(t, leaves, 1)
	for _, name := range []string{event.EventReceiveMessage, event.EventUserTyping, event.EventStaffJoined} {
		assert.Zero(t, h.transport.ListenerCount(name), name)
	}

	_, ok := h.store.Get(convID)
	assert.False(t, ok)

	h.emit(t, event.EventReceiveMessage, map[string]any{"id": 9, "conversationId": convID})
	_, ok = h.store.Get(convID)
	assert.False(t, ok, "late events must not resurrect state")

	_, err := h.conv.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, h.conv.Close(context.Background()))
}

func TestClose_AbortsInFlightStream(t *testing.T) {
	h := newHarness(t, baseConversation(), true)
	h.open(t)

	started := make(chan struct{})
	h.messages.stream = func(ctx context.Context, _ int64, _ string, onChunk func(repo.StreamChunk)) (*repo.StreamResult, error) {
		onChunk(repo.StreamChunk{DisplayText: "first"})
		close(started)
		<-ctx.Done()
		onChunk(repo.StreamChunk{DisplayText: "late chunk"})
		return nil, ctx.Err()
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := h.conv.Send(context.Background(), "long question")
		errCh <- err
	}()

	<-started
	require.NoError(t, h.conv.Close(context.Background()))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after close")
	}

	_, ok := h.store.Get(convID)
	assert.False(t, ok)
}

func TestClose_SkipsLeaveWhenDisconnected(t *testing.T) {
	h := newHarness(t, baseConversation(), true)
	h.open(t)
	h.transport.SetState(hub.StateDisconnected, nil)

	require.NoError(t, h.conv.Close(context.Background()))
	assert.Empty(t, h.transport.Calls(event.MethodLeaveConversation))
}

func TestSend_StreamWithoutIDsReconcilesFromHistory(t *testing.T) {
	h := newHarness(t, baseConversation(), true)
	h.open(t)

	h.messages.stream = func(_ context.Context, _ int64, content string, onChunk func(repo.StreamChunk)) (*repo.StreamResult, error) {
		onChunk(repo.StreamChunk{DisplayText: "Xin"})
		onChunk(repo.StreamChunk{DisplayText: "Xin chào bạn"})
		saved := baseConversation()
		saved.Messages = append(saved.Messages,
			model.Message{ID: "76", ConversationID: convID, SenderType: model.SenderCustomer, Content: content},
			model.Message{ID: "77", ConversationID: convID, SenderType: model.SenderAI, Content: "Xin chào bạn"},
		)
		h.convs.set(saved)
		// the stream ended without a done event
		return &repo.StreamResult{FullText: "Xin chào bạn", DisplayText: "Xin chào bạn"}, nil
	}

	_, err := h.conv.Send(context.Background(), "Xin chào")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "76", "77"}, ids(h.conv.State()))

	// the hub copy of the same reply must not add a second bubble
	h.emit(t, event.EventReceiveMessage, map[string]any{
		"id": 77, "conversationId": convID, "content": "Xin chào bạn", "senderType": "AI",
	})

	st := h.conv.State()
	assert.Equal(t, []string{"1", "76", "77"}, ids(st))
	assert.Equal(t, "Xin chào bạn", st.Messages[2].Content)
	assert.Zero(t, placeholders(st))
	assert.False(t, st.AITyping)
}

func TestSend_StreamWithoutReplyIDKeepsPositionAfterUser(t *testing.T) {
	h := newHarness(t, baseConversation(), true)
	h.open(t)

	h.messages.stream = func(_ context.Context, _ int64, content string, onChunk func(repo.StreamChunk)) (*repo.StreamResult, error) {
		onChunk(repo.StreamChunk{DisplayText: "Dạ vâng"})
		saved := baseConversation()
		saved.Messages = append(saved.Messages,
			model.Message{ID: "80", ConversationID: convID, SenderType: model.SenderCustomer, Content: content},
			model.Message{ID: "81", ConversationID: convID, SenderType: model.SenderAI, Content: "Dạ vâng"},
		)
		h.convs.set(saved)
		return &repo.StreamResult{DisplayText: "Dạ vâng", UserMessageID: "80"}, nil
	}

	_, err := h.conv.Send(context.Background(), "cảm ơn")
	require.NoError(t, err)

	// the welcome message "1" is an older AI message and must stay where it is
	assert.Equal(t, []string{"1", "80", "81"}, ids(h.conv.State()))
}

func TestSend_StreamRefetchFailureKeepsStreamedText(t *testing.T) {
	h := newHarness(t, baseConversation(), true)
	h.open(t)

	h.messages.stream = func(_ context.Context, _ int64, _ string, onChunk func(repo.StreamChunk)) (*repo.StreamResult, error) {
		onChunk(repo.StreamChunk{DisplayText: "partial reply"})
		h.convs.mu.Lock()
		h.convs.getErr = &repo.APIError{StatusCode: 503, Message: "unavailable"}
		h.convs.mu.Unlock()
		return &repo.StreamResult{DisplayText: "partial reply"}, nil
	}

	tempID, err := h.conv.Send(context.Background(), "hello")
	require.NoError(t, err)

	st := h.conv.State()
	user, ok := st.Message(tempID)
	require.True(t, ok)
	assert.Equal(t, model.StatusSent, user.Status)
	assert.Equal(t, 1, placeholders(st))
	assert.NotEmpty(t, st.LastError)
	assert.False(t, st.AITyping)
}
