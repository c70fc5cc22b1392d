package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"Nestcare/internal/conversation"
	"Nestcare/internal/model"
)

// renderer prints state changes of one conversation as plain lines.
type renderer struct {
	out    io.Writer
	selfID string

	mu        sync.Mutex
	printed   map[model.MessageID]model.MessageStatus
	streaming bool
	typing    string
	support   bool
	lastError string
}

func newRenderer(out io.Writer, selfID string) *renderer {
	return &renderer{
		out:     out,
		selfID:  selfID,
		printed: make(map[model.MessageID]model.MessageStatus),
	}
}

func (r *renderer) render(st conversation.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st.HasActiveSupport != r.support {
		r.support = st.HasActiveSupport
		if r.support {
			fmt.Fprintln(r.out, "-- you are now talking to a staff member --")
		} else {
			fmt.Fprintln(r.out, "-- you are now talking to the assistant --")
		}
	}

	streaming := false
	for _, m := range st.Messages {
		if strings.HasPrefix(m.ID.String(), model.StreamIDPrefix) {
			streaming = true
			continue
		}
		status, seen := r.printed[m.ID]
		switch {
		case !seen:
			r.printed[m.ID] = m.Status
			if !r.own(m) {
				fmt.Fprintf(r.out, "%s: %s\n", speaker(m), m.Content)
			}
		case status != m.Status:
			r.printed[m.ID] = m.Status
			if m.Status == model.StatusFailed {
				fmt.Fprintf(r.out, "!! not sent: %q (/retry %s)\n", m.Content, m.ID)
			}
		}
	}
	if streaming && !r.streaming {
		fmt.Fprintln(r.out, "assistant is replying...")
	}
	r.streaming = streaming

	typing := strings.Join(st.Typing, ", ")
	if st.AITyping && typing == "" {
		typing = "assistant"
	}
	if typing != r.typing {
		r.typing = typing
		if typing != "" {
			fmt.Fprintf(r.out, "(%s typing)\n", typing)
		}
	}

	if st.LastError != r.lastError {
		r.lastError = st.LastError
		if st.LastError != "" {
			fmt.Fprintf(r.out, "!! %s\n", st.LastError)
		}
	}
}

func speaker(m model.Message) string {
	switch m.SenderType {
	case model.SenderAI:
		return "assistant"
	case model.SenderSystem:
		return "*"
	case model.SenderStaff:
		if m.SenderName != "" {
			return m.SenderName
		}
		return "staff"
	default:
		if m.SenderName != "" {
			return m.SenderName
		}
		return string(m.SenderType)
	}
}

// own reports whether m was typed here and is therefore already on screen.
func (r *renderer) own(m model.Message) bool {
	if m.SenderType != model.SenderCustomer {
		return false
	}
	return r.selfID == "" || m.SenderID == "" || m.SenderID == r.selfID
}
