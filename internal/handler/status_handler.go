package handler

import (
	"net/http"
	"strconv"

	"Nestcare/internal/conversation"
	"Nestcare/internal/model"
	"Nestcare/internal/service"

	"github.com/gin-gonic/gin"
)

type SessionSource interface {
	Status() model.SessionInfo
}

type ConversationSource interface {
	Snapshot() []conversation.State
	Get(id int64) (conversation.State, bool)
}

type SupportSource interface {
	Info() model.SupportQueueInfo
}

// StatusHandler serves the local client status API
type StatusHandler interface {
	GetStatus(c *gin.Context)
	GetConversation(c *gin.Context)
}

type statusHandler struct {
	session       SessionSource
	conversations ConversationSource
	support       SupportSource
}

// NewStatusHandler creates a status handler. support may be nil on
// customer clients.
func NewStatusHandler(session SessionSource, conversations ConversationSource, support SupportSource) StatusHandler {
	return &statusHandler{
		session:       session,
		conversations: conversations,
		support:       support,
	}
}

// GetStatus returns the hub session and every open conversation
// @Summary Get client status
// @Tags Status
// @Produce json
// @Success 200 {object} model.StatusResponse
// @Router /api/status [get]
func (h *statusHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"HttpStatusCode": http.StatusOK,
		"ResponseBody":   h.build(),
		"IsSuccess":      true,
		"Message":        "Status retrieved successfully",
	})
}

// GetConversation returns the visible state of one open conversation
// @Summary Get conversation state
// @Tags Status
// @Produce json
// @Param id path int true "Conversation id"
// @Router /api/status/conversations/{id} [get]
func (h *statusHandler) GetConversation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"HttpStatusCode": http.StatusBadRequest,
			"IsSuccess":      false,
			"Message":        "Invalid conversation id",
		})
		return
	}

	st, ok := h.conversations.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"HttpStatusCode": http.StatusNotFound,
			"IsSuccess":      false,
			"Message":        "Conversation is not open",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"HttpStatusCode": http.StatusOK,
		"ResponseBody":   st,
		"IsSuccess":      true,
		"Message":        "Conversation retrieved successfully",
	})
}

func (h *statusHandler) build() model.StatusResponse {
	sess := h.session.Status()

	resp := model.StatusResponse{
		Status:        statusLabel(sess.State),
		Session:       sess,
		Conversations: []model.ConversationInfo{},
		Support:       model.SupportQueueInfo{RequestIDs: []int64{}},
	}
	for _, st := range h.conversations.Snapshot() {
		resp.Conversations = append(resp.Conversations, conversationInfo(st))
	}
	if h.support != nil {
		resp.Support = h.support.Info()
	}
	return resp
}

func conversationInfo(st conversation.State) model.ConversationInfo {
	pending := service.Filter(st.Messages, func(m model.Message) bool {
		return m.Status == model.StatusSending
	})
	failed := service.Filter(st.Messages, func(m model.Message) bool {
		return m.Status == model.StatusFailed
	})

	typing := st.Typing
	if typing == nil {
		typing = []string{}
	}
	return model.ConversationInfo{
		ConversationID:   st.ConversationID,
		TotalMessages:    len(st.Messages),
		PendingMessages:  len(pending),
		FailedMessages:   len(failed),
		HasActiveSupport: st.HasActiveSupport,
		TypingUsers:      typing,
	}
}

// statusLabel folds the connecting state into disconnected.
func statusLabel(state string) string {
	switch state {
	case "connected", "reconnecting":
		return state
	default:
		return "disconnected"
	}
}
