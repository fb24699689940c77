package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/hopeai-web-ui/internal/models"
	"github.com/MegaGrindStone/hopeai-web-ui/internal/realtime"
	"github.com/MegaGrindStone/hopeai-web-ui/internal/transcript"
)

var (
	errVoiceActive       = errors.New("a voice session is already active")
	errVoiceUnconfigured = errors.New("voice sessions are not configured")
)

type voiceSession struct {
	ch   realtime.Channel
	done chan struct{}
}

// HandleVoiceStart opens a realtime voice session speaking with the "voice" form value. It answers
// with the caption state, 502 when the session could not be established and 409 when one is already
// running or a chat reply is still loading.
func (m Main) HandleVoiceStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.FormValue("voice")
	if name == "" {
		name = string(m.defaultVoice)
	}
	voice, err := realtime.ParseVoice(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := m.startVoice(r.Context(), voice); err != nil {
		m.logger.Error("Failed to start voice session",
			slog.String("voice", string(voice)),
			slog.String(errLoggerKey, err.Error()))

		var establishErr *realtime.ChannelEstablishError
		switch {
		case errors.Is(err, errVoiceActive), errors.Is(err, ErrBusy):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, errVoiceUnconfigured):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		case errors.As(err, &establishErr):
			http.Error(w, err.Error(), http.StatusBadGateway)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, m.captions())
}

// HandleVoiceStop closes the voice session, if any. Whatever was still live is finalized either way,
// unless a chat reply is streaming into it.
func (m Main) HandleVoiceStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !m.stopVoice() {
		m.update(func(c *conversation) bool {
			if !c.loading() {
				c.engine.CompleteTurn()
			}
			return false
		})
	}
	writeJSON(w, http.StatusOK, m.captions())
}

// HandleCaptions returns the current caption state.
func (m Main) HandleCaptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, m.captions())
}

func (m Main) captions() models.LiveCaptionState {
	m.conv.mu.Lock()
	defer m.conv.mu.Unlock()
	return transcript.Project(m.conv.engine)
}

func (m Main) startVoice(ctx context.Context, voice realtime.Voice) error {
	if m.tokens == nil || m.dialer == nil {
		return errVoiceUnconfigured
	}

	c := m.conv
	c.voiceMu.Lock()
	defer c.voiceMu.Unlock()

	if c.voice != nil {
		return errVoiceActive
	}

	// Chat submissions are refused from here on, so no reply shares the live entries with the session.
	c.mu.Lock()
	if c.voiceActive {
		// The previous session is still draining.
		c.mu.Unlock()
		return errVoiceActive
	}
	if c.loading() {
		c.mu.Unlock()
		return ErrBusy
	}
	c.voiceActive = true
	c.mu.Unlock()

	release := func() {
		c.mu.Lock()
		c.voiceActive = false
		c.mu.Unlock()
		m.metrics.RecordVoiceSessionStart(false)
	}

	token, err := m.tokens.Token(ctx, voice)
	if err != nil {
		release()
		return &realtime.ChannelEstablishError{Err: err}
	}

	ch, err := m.dialer.Dial(ctx, token)
	if err != nil {
		release()
		return &realtime.ChannelEstablishError{Err: err}
	}
	m.metrics.RecordVoiceSessionStart(true)

	vs := &voiceSession{ch: ch, done: make(chan struct{})}
	c.voice = vs

	m.logger.Info("Voice session started", slog.String("voice", string(voice)))

	go m.pumpVoice(vs)
	return nil
}

// stopVoice closes the running session and waits for its events to be drained. It reports whether
// there was a session to stop.
func (m Main) stopVoice() bool {
	c := m.conv
	c.voiceMu.Lock()
	vs := c.voice
	c.voice = nil
	c.voiceMu.Unlock()

	if vs == nil {
		return false
	}

	if err := vs.ch.Close(); err != nil {
		m.logger.Warn("Failed to close realtime channel", slog.String(errLoggerKey, err.Error()))
	}
	<-vs.done
	m.metrics.RecordVoiceSessionEnd()

	m.logger.Info("Voice session stopped")
	return true
}

// pumpVoice applies the session's classified events until the channel ends. A completed turn with
// assistant text adds an assistant message; the spoken user text stays in the transcript only.
func (m Main) pumpVoice(vs *voiceSession) {
	defer close(vs.done)

	for action, err := range realtime.Actions(vs.ch) {
		if err != nil {
			m.logger.Warn("Realtime channel failed", slog.String(errLoggerKey, err.Error()))
			break
		}

		m.metrics.RecordAction(action.Kind.String())
		if action.Kind == transcript.ActionIgnored {
			continue
		}

		m.update(func(c *conversation) bool {
			turn, completed := c.engine.Apply(action)
			if !completed || turn.AssistantText == "" {
				return false
			}
			c.messages = append(c.messages, models.Message{
				Role:    models.RoleAssistant,
				Content: turn.AssistantText,
			})
			return true
		})
	}

	// Nothing feeds the live entries anymore.
	m.update(func(c *conversation) bool {
		c.engine.CompleteTurn()
		c.voiceActive = false
		return false
	})

	c := m.conv
	c.voiceMu.Lock()
	if c.voice == vs {
		c.voice = nil
		m.metrics.RecordVoiceSessionEnd()
		m.logger.Info("Voice session ended by the remote side")
	}
	c.voiceMu.Unlock()
}
