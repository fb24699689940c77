package handlers_test

import (
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/MegaGrindStone/hopeai-web-ui/internal/handlers"
	"github.com/MegaGrindStone/hopeai-web-ui/internal/models"
	"github.com/MegaGrindStone/hopeai-web-ui/internal/observability"
	"github.com/MegaGrindStone/hopeai-web-ui/internal/realtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestVoiceTurn(t *testing.T) {
	ch := newFakeChannel(
		`{"type":"session.created"}`,
		`{"type":"input_audio_buffer.speech_started"}`,
		`{"type":"conversation.item.input_audio_transcription.delta","delta":"How are"}`,
		`{"type":"conversation.item.input_audio_transcription.delta","delta":" you"}`,
		`not json`,
		`{"type":"response.audio_transcript.delta","delta":"HopeAI: I'm"}`,
		`{"type":"response.audio_transcript.delta","delta":" fine"}`,
		`{"type":"response.done"}`,
	)
	tokens := &mockTokens{token: "ek_test"}
	dialer := &mockDialer{ch: ch}
	publisher := &mockPublisher{}
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	m := newMain(t, &mockBackend{}, newMockStore(),
		handlers.WithRealtime(tokens, dialer),
		handlers.WithPublisher(publisher),
		handlers.WithMetrics(metrics),
	)

	w := postForm(m.HandleVoiceStart, "/voice/start", url.Values{"voice": {"sage"}})
	if w.Code != http.StatusOK {
		t.Fatalf("HandleVoiceStart() status = %v, body = %s", w.Code, w.Body.String())
	}
	if len(tokens.voices) != 1 || tokens.voices[0] != "sage" {
		t.Errorf("token requested for %v, want [sage]", tokens.voices)
	}
	if len(dialer.tokens) != 1 || dialer.tokens[0] != "ek_test" {
		t.Errorf("dialed with %v, want [ek_test]", dialer.tokens)
	}

	w = postForm(m.HandleVoiceStop, "/voice/stop", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("HandleVoiceStop() status = %v", w.Code)
	}

	msgs := getMessages(t, m)
	if len(msgs) != 1 || msgs[0].Role != "assistant" || msgs[0].Content != "I'm fine" {
		t.Errorf("messages = %+v, want one assistant message", msgs)
	}
	if got := getTranscript(t, m); got != "You: How are you\nHopeAI: I'm fine" {
		t.Errorf("transcript = %q", got)
	}
	if c := getCaptions(t, m); c.Active {
		t.Errorf("captions = %+v, want inactive", c)
	}
	if len(publisher.entries) != 2 {
		t.Errorf("published %d entries, want 2", len(publisher.entries))
	}

	if got := testutil.ToFloat64(metrics.RealtimeActions.WithLabelValues("ignored")); got != 2 {
		t.Errorf("ignored actions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.VoiceSessionsActive); got != 0 {
		t.Errorf("active voice sessions = %v, want 0", got)
	}

	settle(t, m)
}

func TestVoiceCaptions(t *testing.T) {
	ch := newFakeChannel(
		`{"type":"input_audio_buffer.transcript.delta","delta":"Hel"}`,
		`{"type":"response.output_text.delta","delta":"Hi"}`,
	)
	m := newMain(t, &mockBackend{}, newMockStore(),
		handlers.WithRealtime(&mockTokens{token: "ek"}, &mockDialer{ch: ch}))
	defer settle(t, m)

	w := postForm(m.HandleVoiceStart, "/voice/start", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("HandleVoiceStart() status = %v", w.Code)
	}

	want := models.LiveCaptionState{UserText: "Hel", AssistantText: "Hi", Active: true}
	deadline := time.Now().Add(2 * time.Second)
	for getCaptions(t, m) != want {
		if time.Now().After(deadline) {
			t.Fatalf("captions = %+v, want %+v", getCaptions(t, m), want)
		}
		time.Sleep(5 * time.Millisecond)
	}

	w = postForm(m.HandleVoiceStop, "/voice/stop", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("HandleVoiceStop() status = %v", w.Code)
	}

	if c := getCaptions(t, m); c != (models.LiveCaptionState{}) {
		t.Errorf("captions after stop = %+v, want empty", c)
	}
	if got := getTranscript(t, m); got != "You: Hel\nHopeAI: Hi" {
		t.Errorf("transcript = %q", got)
	}
	if msgs := getMessages(t, m); len(msgs) != 0 {
		t.Errorf("messages = %+v, want none for an interrupted turn", msgs)
	}
}

func TestVoiceStartErrors(t *testing.T) {
	tests := []struct {
		name       string
		opts       []handlers.Option
		voice      string
		wantStatus int
	}{
		{
			name:       "not configured",
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "unknown voice",
			opts:       []handlers.Option{handlers.WithRealtime(&mockTokens{token: "ek"}, &mockDialer{ch: newFakeChannel()})},
			voice:      "robot",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "token failure",
			opts:       []handlers.Option{handlers.WithRealtime(&mockTokens{err: realtime.ErrNoToken}, &mockDialer{ch: newFakeChannel()})},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "dial failure",
			opts:       []handlers.Option{handlers.WithRealtime(&mockTokens{token: "ek"}, &mockDialer{err: errors.New("refused")})},
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMain(t, &mockBackend{}, newMockStore(), tt.opts...)
			defer settle(t, m)

			w := postForm(m.HandleVoiceStart, "/voice/start", url.Values{"voice": {tt.voice}})
			if w.Code != tt.wantStatus {
				t.Errorf("HandleVoiceStart() status = %v, want %v", w.Code, tt.wantStatus)
			}

			if c := getCaptions(t, m); c.Active {
				t.Errorf("captions = %+v, want inactive", c)
			}
			if got := getTranscript(t, m); got != "" {
				t.Errorf("transcript = %q, want empty", got)
			}
		})
	}
}

func TestVoiceStartTwice(t *testing.T) {
	tokens := &mockTokens{token: "ek"}
	m := newMain(t, &mockBackend{}, newMockStore(),
		handlers.WithRealtime(tokens, &mockDialer{ch: newFakeChannel()}),
		handlers.WithDefaultVoice("alloy"))
	defer settle(t, m)

	if w := postForm(m.HandleVoiceStart, "/voice/start", nil); w.Code != http.StatusOK {
		t.Fatalf("first HandleVoiceStart() status = %v", w.Code)
	}
	if w := postForm(m.HandleVoiceStart, "/voice/start", nil); w.Code != http.StatusConflict {
		t.Errorf("second HandleVoiceStart() status = %v, want %v", w.Code, http.StatusConflict)
	}
	if len(tokens.voices) != 1 || tokens.voices[0] != "alloy" {
		t.Errorf("token requested for %v, want [alloy]", tokens.voices)
	}

	if w := postForm(m.HandleVoiceStop, "/voice/stop", nil); w.Code != http.StatusOK {
		t.Fatalf("HandleVoiceStop() status = %v", w.Code)
	}
	// Stopping without a session is a no-op.
	if w := postForm(m.HandleVoiceStop, "/voice/stop", nil); w.Code != http.StatusOK {
		t.Errorf("second HandleVoiceStop() status = %v", w.Code)
	}
}

func TestVoiceStopDuringReply(t *testing.T) {
	backend := &mockBackend{
		chunks:  []string{"Hello ", "HopeAI: world"},
		pause:   make(chan struct{}),
		pauseAt: 1,
	}
	m := newMain(t, backend, newMockStore())

	if w := postForm(m.HandleChats, "/chats", url.Values{"message": {"Hi"}}); w.Code != http.StatusAccepted {
		t.Fatalf("HandleChats() status = %v", w.Code)
	}
	waitFor(t, "the first chunk", func() bool {
		msgs := getMessages(t, m)
		return len(msgs) == 2 && msgs[1].Content == "Hello "
	})

	if w := postForm(m.HandleVoiceStop, "/voice/stop", nil); w.Code != http.StatusOK {
		t.Fatalf("HandleVoiceStop() status = %v", w.Code)
	}

	close(backend.pause)
	settle(t, m)

	msgs := getMessages(t, m)
	if len(msgs) != 2 || msgs[1].Content != "Hello HopeAI: world" || msgs[1].Loading {
		t.Errorf("messages = %+v", msgs)
	}
	if got := getTranscript(t, m); got != "You: Hi\nHopeAI: Hello HopeAI: world" {
		t.Errorf("transcript = %q, want the reply as one entry", got)
	}
}

func TestVoiceAndChatExclusive(t *testing.T) {
	t.Run("voice refused while a reply loads", func(t *testing.T) {
		backend := &mockBackend{chunks: []string{"x"}, gate: make(chan struct{})}
		tokens := &mockTokens{token: "ek"}
		m := newMain(t, backend, newMockStore(),
			handlers.WithRealtime(tokens, &mockDialer{ch: newFakeChannel(
				`{"type":"response.output_text.delta","delta":"voice"}`,
			)}))

		if w := postForm(m.HandleChats, "/chats", url.Values{"message": {"Hi"}}); w.Code != http.StatusAccepted {
			t.Fatalf("HandleChats() status = %v", w.Code)
		}
		if w := postForm(m.HandleVoiceStart, "/voice/start", nil); w.Code != http.StatusConflict {
			t.Errorf("HandleVoiceStart() status = %v, want %v", w.Code, http.StatusConflict)
		}
		if len(tokens.voices) != 0 {
			t.Errorf("token requested for %v, want none", tokens.voices)
		}

		close(backend.gate)
		settle(t, m)

		if got := getTranscript(t, m); got != "You: Hi\nHopeAI: x" {
			t.Errorf("transcript = %q", got)
		}
	})

	t.Run("chat refused while voice runs", func(t *testing.T) {
		backend := &mockBackend{chunks: []string{"x"}}
		m := newMain(t, backend, newMockStore(),
			handlers.WithRealtime(&mockTokens{token: "ek"}, &mockDialer{ch: newFakeChannel()}))
		defer settle(t, m)

		if w := postForm(m.HandleVoiceStart, "/voice/start", nil); w.Code != http.StatusOK {
			t.Fatalf("HandleVoiceStart() status = %v", w.Code)
		}
		if w := postForm(m.HandleChats, "/chats", url.Values{"message": {"Hi"}}); w.Code != http.StatusConflict {
			t.Errorf("HandleChats() status = %v, want %v", w.Code, http.StatusConflict)
		}

		if w := postForm(m.HandleVoiceStop, "/voice/stop", nil); w.Code != http.StatusOK {
			t.Fatalf("HandleVoiceStop() status = %v", w.Code)
		}
		if w := postForm(m.HandleChats, "/chats", url.Values{"message": {"Hi"}}); w.Code != http.StatusAccepted {
			t.Errorf("HandleChats() after stop status = %v, want %v", w.Code, http.StatusAccepted)
		}
	})
}
