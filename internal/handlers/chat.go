package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MegaGrindStone/hopeai-web-ui/internal/models"
	"github.com/MegaGrindStone/hopeai-web-ui/internal/stream"
)

// ErrBusy is returned when a message is submitted while the previous reply is still loading.
var ErrBusy = errors.New("the previous reply is still loading")

const defaultErrorDetail = "Error generating the response"

type message struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
	HTML    string      `json:"html"`
	Loading bool        `json:"loading"`
	Error   string      `json:"error,omitempty"`
}

type chatRequest struct {
	Message string `json:"message"`
}

// HandleChats accepts a user message through form data or a JSON body. The message is recorded as a
// finalized user entry and the reply is produced asynchronously: streamed from the backend, or
// fetched in one piece if streaming fails. Progress is pushed on the SSE "messages" and "transcript"
// topics.
//
// It answers 202 with the message list, 400 for an empty message and 409 while a reply is still
// loading or a voice session is running.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	msg, err := readMessage(r)
	if err != nil {
		m.logger.Error("Failed to read message", slog.String(errLoggerKey, err.Error()))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if msg == "" {
		m.logger.Error("Message is required")
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	idx, err := m.submit(msg)
	if err != nil {
		m.logger.Warn("Submission refused", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	m.conv.replies.Add(1)
	go func() {
		defer m.conv.replies.Done()
		m.chat(msg, idx)
	}()

	writeJSON(w, http.StatusAccepted, m.messageViews(m.messages()))
}

// HandleMessages returns the message list.
func (m Main) HandleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, m.messageViews(m.messages()))
}

func readMessage(r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		return strings.TrimSpace(r.FormValue("message")), nil
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", err
	}
	return strings.TrimSpace(req.Message), nil
}

// submit records the user's message and the placeholder for the reply, returning the placeholder's
// index in the message list.
func (m Main) submit(text string) (int, error) {
	var idx int
	var err error
	m.update(func(c *conversation) bool {
		if c.loading() {
			err = ErrBusy
			return false
		}
		if c.voiceActive {
			err = errVoiceActive
			return false
		}

		c.engine.AppendFinal(models.RoleUser, text)
		c.messages = append(c.messages,
			models.Message{Role: models.RoleUser, Content: text},
			models.Message{Role: models.RoleAssistant, Loading: true},
		)
		idx = len(c.messages) - 1
		return true
	})
	return idx, err
}

// chat produces the reply to text into the assistant message at idx.
func (m Main) chat(text string, idx int) {
	ctx := context.Background()

	start := time.Now()
	m.metrics.RecordStreamStart()

	var streamErr error
	for chunk, err := range m.backend.Stream(ctx, text) {
		if err != nil {
			streamErr = err
			break
		}

		m.update(func(c *conversation) bool {
			appended := c.engine.AppendDelta(models.RoleAssistant, chunk)
			if appended == "" {
				return false
			}
			c.messages[idx].Content += appended
			return true
		})
	}

	m.metrics.RecordStreamEnd(streamErr == nil, time.Since(start).Seconds())

	if streamErr == nil {
		m.update(func(c *conversation) bool {
			c.engine.Finalize(models.RoleAssistant)
			c.messages[idx].Loading = false
			return true
		})
		return
	}

	var transportErr *stream.StreamTransportError
	m.logger.Warn("Streaming failed, falling back to a single reply",
		slog.Bool("transport", errors.As(streamErr, &transportErr)),
		slog.String(errLoggerKey, streamErr.Error()))

	reply, err := m.backend.Send(ctx, text)
	m.metrics.RecordFallback(err == nil)
	if err != nil {
		m.logger.Error("Error from chat backend", slog.String(errLoggerKey, err.Error()))

		detail := defaultErrorDetail
		var apiErr *models.APIError
		if errors.As(err, &apiErr) && apiErr.Detail != "" {
			detail = apiErr.Detail
		}

		m.update(func(c *conversation) bool {
			c.engine.Finalize(models.RoleAssistant)
			c.messages[idx].Loading = false
			c.messages[idx].Error = detail
			return true
		})
		return
	}

	m.update(func(c *conversation) bool {
		final := c.engine.StripAssistantLabel(reply)
		c.engine.Resolve(models.RoleAssistant, final)
		c.messages[idx].Content = final
		c.messages[idx].Loading = false
		return true
	})
}

func (m Main) messages() []models.Message {
	m.conv.mu.Lock()
	defer m.conv.mu.Unlock()
	return slices.Clone(m.conv.messages)
}

func (m Main) messageViews(msgs []models.Message) []message {
	views := make([]message, len(msgs))
	for i, msg := range msgs {
		html, err := models.RenderMarkdown(msg.Content)
		if err != nil {
			m.logger.Error("Failed to render content",
				slog.String("content", msg.Content),
				slog.String(errLoggerKey, err.Error()))
		}
		views[i] = message{
			Role:    msg.Role,
			Content: msg.Content,
			HTML:    html,
			Loading: msg.Loading,
			Error:   msg.Error,
		}
	}
	return views
}
