package repo

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"Nestcare/internal/model"
)

const (
	streamDone      = "[DONE]"
	structuredFence = "```json"
	fenceClose      = "```"
	maxStreamLine   = 1024 * 1024
)

// StreamChunk is delivered for every content chunk of a streamed reply.
type StreamChunk struct {
	Chunk         string
	FullTextSoFar string
	// DisplayText is FullTextSoFar without the structured data block
	DisplayText string
}

// StreamResult describes a finished stream. MessageID is the server id of
// the AI message when the service reports it.
type StreamResult struct {
	FullText       string
	DisplayText    string
	MessageID      model.MessageID
	UserMessageID  model.MessageID
	StructuredData json.RawMessage
}

// StreamError is an error event sent inside the stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "stream error: " + e.Message
}

type streamEvent struct {
	Type          string          `json:"type"`
	Content       string          `json:"content"`
	MessageID     model.MessageID `json:"messageId"`
	UserMessageID model.MessageID `json:"userMessageId"`
	Message       string          `json:"message"`
}

// readStream consumes "data:" lines until a done event, the [DONE]
// sentinel or EOF.
func readStream(ctx context.Context, body io.Reader, onChunk func(StreamChunk)) (*StreamResult, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)

	var full strings.Builder
	result := &StreamResult{}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			// comments, event names and blank separators
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == streamDone {
			break
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, fmt.Errorf("decode stream event: %w", err)
		}

		switch ev.Type {
		case "chunk":
			if ev.Content == "" {
				continue
			}
			full.WriteString(ev.Content)
			if onChunk != nil {
				text := full.String()
				onChunk(StreamChunk{
					Chunk:         ev.Content,
					FullTextSoFar: text,
					DisplayText:   DisplayText(text),
				})
			}
		case "done":
			result.MessageID = ev.MessageID
			result.UserMessageID = ev.UserMessageID
			return finish(result, full.String()), nil
		case "error":
			msg := ev.Message
			if msg == "" {
				msg = ev.Content
			}
			return nil, &StreamError{Message: msg}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return finish(result, full.String()), nil
}

func finish(result *StreamResult, full string) *StreamResult {
	result.FullText = full
	result.DisplayText = DisplayText(full)
	result.StructuredData = StructuredData(full)
	return result
}

// DisplayText strips fenced json blocks from a reply. An unterminated block,
// as seen mid-stream, hides everything after its opening fence.
func DisplayText(full string) string {
	for {
		start := strings.Index(full, structuredFence)
		if start < 0 {
			break
		}
		rest := full[start+len(structuredFence):]
		end := strings.Index(rest, fenceClose)
		if end < 0 {
			full = full[:start]
			break
		}
		full = full[:start] + rest[end+len(fenceClose):]
	}
	return strings.TrimSpace(full)
}

// StructuredData returns the first complete fenced json block, or nil when
// there is none or it is not valid JSON.
func StructuredData(full string) json.RawMessage {
	start := strings.Index(full, structuredFence)
	if start < 0 {
		return nil
	}
	rest := full[start+len(structuredFence):]
	end := strings.Index(rest, fenceClose)
	if end < 0 {
		return nil
	}
	raw := strings.TrimSpace(rest[:end])
	if !json.Valid([]byte(raw)) {
		return nil
	}
	return json.RawMessage(raw)
}
