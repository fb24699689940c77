package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/MegaGrindStone/hopeai-web-ui/internal/models"
	"github.com/MegaGrindStone/hopeai-web-ui/internal/observability"
	"github.com/MegaGrindStone/hopeai-web-ui/internal/realtime"
	"github.com/MegaGrindStone/hopeai-web-ui/internal/transcript"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tmaxmax/go-sse"
)

// Backend produces assistant replies. Stream yields the reply as text fragments; Send is the
// non-streaming fallback used when Stream fails.
type Backend interface {
	Stream(ctx context.Context, message string) iter.Seq2[string, error]
	Send(ctx context.Context, message string) (string, error)
}

// Store persists the transcript log of each session.
type Store interface {
	Sessions(ctx context.Context) ([]models.Session, error)
	AddSession(ctx context.Context, session models.Session) (string, error)

	Entries(ctx context.Context, sessionID string) ([]models.TranscriptEntry, error)
	PutEntry(ctx context.Context, sessionID string, entry models.TranscriptEntry) error
}

// TokenSource issues ephemeral credentials for realtime voice sessions.
type TokenSource interface {
	Token(ctx context.Context, voice realtime.Voice) (string, error)
}

// Dialer opens realtime event channels.
type Dialer interface {
	Dial(ctx context.Context, token string) (realtime.Channel, error)
}

// Publisher forwards finalized transcript entries to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, entry models.TranscriptEntry) error
}

// Clipboard receives exported transcripts.
type Clipboard interface {
	WriteAll(text string) error
}

// Main serves the chat, voice and transcript endpoints. It owns the conversation state of one
// session: the transcript engine and the message list.
type Main struct {
	sseSrv *sse.Server

	backend   Backend
	store     Store
	tokens    TokenSource
	dialer    Dialer
	publisher Publisher
	clipboard Clipboard
	metrics   *observability.Metrics

	defaultVoice realtime.Voice
	exportPath   string

	conv *conversation

	logger *slog.Logger
}

// conversation is the mutable state shared by the request handlers and the background reply and
// voice goroutines. mu guards the engine, the messages and voiceActive; dispatchMu keeps fan-out in
// mutation order; voiceMu guards voice and serializes starting and stopping voice sessions. voiceMu
// is always taken before mu.
type conversation struct {
	mu         sync.Mutex
	dispatchMu sync.Mutex
	voiceMu    sync.Mutex

	sessionID string
	engine    *transcript.Engine
	messages  []models.Message
	captions  models.LiveCaptionState
	pending   []transcript.Change

	voice       *voiceSession
	voiceActive bool

	replies sync.WaitGroup
}

// loading reports whether a chat reply is still being produced. Callers hold mu.
func (c *conversation) loading() bool {
	return slices.ContainsFunc(c.messages, func(msg models.Message) bool { return msg.Loading })
}

type options struct {
	tokens          TokenSource
	dialer          Dialer
	publisher       Publisher
	clipboard       Clipboard
	metrics         *observability.Metrics
	assistantName   string
	assistantLabels []string
	defaultVoice    realtime.Voice
	exportPath      string
	resume          bool
}

// Option configures Main.
type Option func(*options)

// WithRealtime enables voice sessions.
func WithRealtime(tokens TokenSource, dialer Dialer) Option {
	return func(o *options) {
		o.tokens = tokens
		o.dialer = dialer
	}
}

// WithPublisher forwards finalized entries to p.
func WithPublisher(p Publisher) Option {
	return func(o *options) {
		o.publisher = p
	}
}

// WithClipboard enables clipboard export.
func WithClipboard(c Clipboard) Option {
	return func(o *options) {
		o.clipboard = c
	}
}

// WithMetrics records metrics on m instead of a private registry.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithAssistant sets the assistant display name and, when given, the reply labels to strip.
func WithAssistant(name string, labels ...string) Option {
	return func(o *options) {
		o.assistantName = name
		o.assistantLabels = labels
	}
}

// WithDefaultVoice sets the voice used when a start request names none.
func WithDefaultVoice(v realtime.Voice) Option {
	return func(o *options) {
		o.defaultVoice = v
	}
}

// WithResume continues the most recently started stored session instead of opening a new one.
// Its entries are restored as the start of the transcript; the chat message list starts empty.
func WithResume() Option {
	return func(o *options) {
		o.resume = true
	}
}

// WithExportPath enables file export of the transcript to path.
func WithExportPath(path string) Option {
	return func(o *options) {
		o.exportPath = path
	}
}

const (
	errLoggerKey = "err"

	captionsSSETopic   = "captions"
	transcriptSSETopic = "transcript"
	messagesSSETopic   = "messages"
)

// SSE event types for real-time updates.
var (
	captionsSSEType   = sse.Type("captions")
	transcriptSSEType = sse.Type("transcript")
	messagesSSEType   = sse.Type("messages")

	sseTopics = []string{captionsSSETopic, transcriptSSETopic, messagesSSETopic}
)

type transcriptEvent struct {
	Kind  string                 `json:"kind"`
	Entry models.TranscriptEntry `json:"entry"`
}

// NewMain creates a Main with a fresh session registered in store. Clients of the SSE endpoint pick
// topics with repeated "topic" query parameters and receive all of them by default.
func NewMain(backend Backend, store Store, logger *slog.Logger, opts ...Option) (Main, error) {
	o := options{
		assistantName: models.DefaultAssistantName,
		defaultVoice:  realtime.DefaultVoice,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	logger = logger.With(slog.String("module", "main"))

	var (
		sessionID string
		restored  []models.TranscriptEntry
	)
	if o.resume {
		session, entries, err := latestSession(store)
		if err != nil {
			return Main{}, err
		}
		sessionID, restored = session.ID, entries
	}
	if sessionID == "" {
		var err error
		sessionID, err = store.AddSession(context.Background(), models.Session{
			ID:        uuid.New().String(),
			StartedAt: time.Now(),
		})
		if err != nil {
			return Main{}, fmt.Errorf("failed to add session: %w", err)
		}
	}

	conv := &conversation{sessionID: sessionID}
	engineOpts := []transcript.Option{
		transcript.WithAssistantName(o.assistantName),
		transcript.WithListener(func(c transcript.Change) {
			conv.pending = append(conv.pending, c)
		}),
	}
	if len(o.assistantLabels) > 0 {
		engineOpts = append(engineOpts, transcript.WithAssistantLabels(o.assistantLabels...))
	}
	conv.engine = transcript.NewEngine(engineOpts...)
	conv.engine.Restore(restored)

	logger.Info("Session started", slog.String("sessionID", sessionID), slog.Int("restored", len(restored)))

	return Main{
		sseSrv: &sse.Server{
			OnSession: func(_ http.ResponseWriter, r *http.Request) ([]string, bool) {
				var topics []string
				for _, t := range r.URL.Query()["topic"] {
					if slices.Contains(sseTopics, t) {
						topics = append(topics, t)
					}
				}
				if len(topics) == 0 {
					topics = sseTopics
				}
				return append([]string{sse.DefaultTopic}, topics...), true
			},
			Logger: func(*http.Request) *slog.Logger {
				return logger.With(slog.String("module", "sse"))
			},
		},
		backend:      backend,
		store:        store,
		tokens:       o.tokens,
		dialer:       o.dialer,
		publisher:    o.publisher,
		clipboard:    o.clipboard,
		metrics:      o.metrics,
		defaultVoice: o.defaultVoice,
		exportPath:   o.exportPath,
		conv:         conv,
		logger:       logger,
	}, nil
}

// latestSession returns the most recently started session and its entries. The zero session is
// returned when the store holds none.
func latestSession(store Store) (models.Session, []models.TranscriptEntry, error) {
	ctx := context.Background()

	sessions, err := store.Sessions(ctx)
	if err != nil {
		return models.Session{}, nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		return models.Session{}, nil, nil
	}

	latest := slices.MaxFunc(sessions, func(a, b models.Session) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	entries, err := store.Entries(ctx, latest.ID)
	if err != nil {
		return models.Session{}, nil, fmt.Errorf("failed to load entries of session %s: %w", latest.ID, err)
	}
	return latest, entries, nil
}

// SessionID returns the id of the session this Main records into.
func (m Main) SessionID() string {
	return m.conv.sessionID
}

// HandleSSE streams caption, transcript and message updates to the client.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

// Shutdown stops the voice session, waits for in-flight replies and terminates the SSE server. It
// broadcasts a close message to all connected clients and waits up to 5 seconds for connections to
// terminate. Calling it again only waits for replies.
func (m Main) Shutdown(ctx context.Context) error {
	m.stopVoice()

	done := make(chan struct{})
	go func() {
		m.conv.replies.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Shutdown with replies still in flight")
	}

	e := &sse.Message{Type: sse.Type("closeSession")}
	// SSE messages require data.
	e.AppendData("bye")

	// The server is going away, so a failed goodbye is not worth reporting.
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	if err := m.sseSrv.Shutdown(ctx); err != nil && !errors.Is(err, sse.ErrProviderClosed) {
		return err
	}
	return nil
}

// update runs fn with exclusive access to the conversation and then fans the transcript changes it
// caused out to the store, the publisher and SSE subscribers. fn reports whether it changed the
// message list.
func (m Main) update(fn func(c *conversation) bool) {
	c := m.conv

	c.mu.Lock()
	messagesChanged := fn(c)

	changes := c.pending
	c.pending = nil

	captions := transcript.Project(c.engine)
	captionsChanged := captions != c.captions
	c.captions = captions

	var messages []models.Message
	if messagesChanged {
		messages = slices.Clone(c.messages)
	}

	c.dispatchMu.Lock()
	c.mu.Unlock()
	defer c.dispatchMu.Unlock()

	for _, ch := range changes {
		m.dispatchChange(c.sessionID, ch)
	}
	if captionsChanged {
		m.publish(captionsSSEType, captions, captionsSSETopic)
	}
	if messagesChanged {
		m.publish(messagesSSEType, m.messageViews(messages), messagesSSETopic)
	}
}

func (m Main) dispatchChange(sessionID string, ch transcript.Change) {
	ctx := context.Background()

	if err := m.store.PutEntry(ctx, sessionID, ch.Entry); err != nil {
		m.logger.Error("Failed to store entry",
			slog.String("entry", fmt.Sprintf("%+v", ch.Entry)),
			slog.String(errLoggerKey, err.Error()))
	}

	if !ch.Entry.Live {
		m.metrics.RecordEntryFinalized(string(ch.Entry.Role))
		if m.publisher != nil {
			if err := m.publisher.Publish(ctx, sessionID, ch.Entry); err != nil {
				m.logger.Error("Failed to publish entry",
					slog.String("entryID", ch.Entry.ID.String()),
					slog.String(errLoggerKey, err.Error()))
			}
		}
	}

	m.publish(transcriptSSEType, transcriptEvent{Kind: ch.Kind.String(), Entry: ch.Entry}, transcriptSSETopic)
}

func (m Main) publish(typ sse.EventType, v any, topic string) {
	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Error("Failed to marshal event", slog.String(errLoggerKey, err.Error()))
		return
	}

	msg := sse.Message{Type: typ}
	msg.AppendData(string(data))
	if err := m.sseSrv.Publish(&msg, topic); err != nil {
		m.logger.Error("Failed to publish event",
			slog.String("topic", topic),
			slog.String(errLoggerKey, err.Error()))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
