package transcript

import (
	"strings"
	"time"

	"github.com/MegaGrindStone/hopeai-web-ui/internal/models"
	"github.com/google/uuid"
)

// ChangeKind describes how a transcript entry was touched.
type ChangeKind int

const (
	// ChangeAdded reports a new entry appended to the log.
	ChangeAdded ChangeKind = iota
	// ChangeUpdated reports new text on a live entry.
	ChangeUpdated
	// ChangeFinalized reports a live entry that was frozen.
	ChangeFinalized
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeUpdated:
		return "updated"
	case ChangeFinalized:
		return "finalized"
	}
	return "unknown"
}

// Change is passed to the Listener after every mutation of the log. Entry is a copy.
type Change struct {
	Kind  ChangeKind
	Entry models.TranscriptEntry
}

// Listener observes log mutations. It is called synchronously, in mutation order.
type Listener func(Change)

// Turn is the text of a completed voice exchange.
type Turn struct {
	UserText      string
	AssistantText string
}

// Engine owns the transcript log, the per-role live identities and the per-role delta buffers.
//
// Each role moves between two states:
//
//	Idle ──delta──→ Live ──delta──→ Live
//	  ↑                │
//	  └──────done──────┘
//
// Rules:
//   - A delta on an Idle role appends a new live entry with a fresh ID. A delta that leaves the
//     buffer empty (for example a bare "HopeAI:" label) does not create an entry.
//   - A delta on a Live role updates that entry in place.
//   - Done on a Live role freezes the entry, releases its ID and clears the role's buffer.
//   - Done on an Idle role is a no-op.
//
// Entries are never removed or reordered. Engine is not safe for concurrent use; callers serialize
// access.
type Engine struct {
	entries []models.TranscriptEntry
	index   map[uuid.UUID]int

	liveUser      uuid.NullUUID
	liveAssistant uuid.NullUUID

	user      *Accumulator
	assistant *Accumulator

	assistantName string
	listener      Listener
	now           func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithAssistantName sets the assistant's display name. The name is also stripped as a reply prefix.
func WithAssistantName(name string) Option {
	return func(e *Engine) {
		e.assistantName = name
	}
}

// WithAssistantLabels replaces the labels stripped from the start of an assistant reply.
func WithAssistantLabels(labels ...string) Option {
	return func(e *Engine) {
		e.assistant = NewAccumulator(labels...)
	}
}

// WithListener registers l to observe every log mutation.
func WithListener(l Listener) Option {
	return func(e *Engine) {
		e.listener = l
	}
}

// WithClock replaces the clock used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an Engine with an empty log and both roles Idle.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		index:         make(map[uuid.UUID]int),
		user:          NewAccumulator(),
		assistantName: models.DefaultAssistantName,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.assistant == nil {
		e.assistant = NewAccumulator(append([]string{e.assistantName}, DefaultAssistantLabels...)...)
	}
	return e
}

// Restore seeds the log with previously persisted entries. Live entries are frozen on the way in
// since no producer is feeding them anymore.
func (e *Engine) Restore(entries []models.TranscriptEntry) {
	for _, entry := range entries {
		entry.Live = false
		e.index[entry.ID] = len(e.entries)
		e.entries = append(e.entries, entry)
	}
}

// Apply feeds one classified action into the state machine. The returned bool is true when the
// action completed a turn, in which case Turn holds the trimmed text of both sides.
func (e *Engine) Apply(a Action) (Turn, bool) {
	switch a.Kind {
	case ActionAssistantDelta:
		e.AppendDelta(models.RoleAssistant, a.Text)
	case ActionAssistantDone:
		return e.CompleteTurn(), true
	case ActionUserSpeechStarted:
		// A new utterance never continues the previous partial one.
		e.Finalize(models.RoleUser)
	case ActionUserTranscriptDelta:
		e.AppendDelta(models.RoleUser, a.Text)
	case ActionUserTranscriptDone, ActionIgnored:
	}
	return Turn{}, false
}

// AppendDelta adds delta to role's buffer and to its live entry, creating the entry if role is Idle.
// It returns the text actually appended, after the assistant label prefix rule.
func (e *Engine) AppendDelta(role models.Role, delta string) string {
	acc := e.accumulator(role)
	appended := acc.Append(delta)
	if appended == "" {
		return ""
	}

	live := e.liveID(role)
	if !live.Valid {
		entry := e.add(role, acc.Value(), true)
		*live = uuid.NullUUID{UUID: entry.ID, Valid: true}
		return appended
	}

	idx := e.index[live.UUID]
	e.entries[idx].Text = acc.Value()
	e.notify(ChangeUpdated, e.entries[idx])
	return appended
}

// Finalize freezes role's live entry, releases its identity and clears role's buffer. It reports
// whether there was a live entry to finalize.
func (e *Engine) Finalize(role models.Role) bool {
	e.accumulator(role).Reset()

	live := e.liveID(role)
	if !live.Valid {
		return false
	}
	idx := e.index[live.UUID]
	e.entries[idx].Live = false
	*live = uuid.NullUUID{}
	e.notify(ChangeFinalized, e.entries[idx])
	return true
}

// CompleteTurn ends the current exchange: both live entries are finalized and both buffers reset.
func (e *Engine) CompleteTurn() Turn {
	t := Turn{
		UserText:      strings.TrimSpace(e.user.Value()),
		AssistantText: strings.TrimSpace(e.assistant.Value()),
	}
	e.Finalize(models.RoleAssistant)
	e.Finalize(models.RoleUser)
	return t
}

// AppendFinal appends an already finalized entry, used for text that is known in full upfront.
func (e *Engine) AppendFinal(role models.Role, text string) models.TranscriptEntry {
	return e.add(role, text, false)
}

// Resolve settles role's turn with text that replaces whatever was streamed so far. A live entry is
// overwritten and frozen in place so the turn keeps a single entry; otherwise a finalized entry is
// appended.
func (e *Engine) Resolve(role models.Role, text string) models.TranscriptEntry {
	e.accumulator(role).Reset()

	live := e.liveID(role)
	if !live.Valid {
		return e.add(role, text, false)
	}
	idx := e.index[live.UUID]
	e.entries[idx].Text = text
	e.entries[idx].Live = false
	*live = uuid.NullUUID{}
	e.notify(ChangeFinalized, e.entries[idx])
	return e.entries[idx]
}

// StripAssistantLabel removes a leading assistant label from text received in one piece.
func (e *Engine) StripAssistantLabel(text string) string {
	return e.assistant.Strip(text)
}

// Live returns role's live entry, if any.
func (e *Engine) Live(role models.Role) (models.TranscriptEntry, bool) {
	live := e.liveID(role)
	if !live.Valid {
		return models.TranscriptEntry{}, false
	}
	return e.entries[e.index[live.UUID]], true
}

// Entries returns a copy of the log in insertion order.
func (e *Engine) Entries() []models.TranscriptEntry {
	entries := make([]models.TranscriptEntry, len(e.entries))
	copy(entries, e.entries)
	return entries
}

// Render returns the plain-text export of the log.
func (e *Engine) Render() string {
	return models.RenderTranscript(e.entries, e.assistantName)
}

// AssistantName returns the assistant display name.
func (e *Engine) AssistantName() string {
	return e.assistantName
}

func (e *Engine) add(role models.Role, text string, live bool) models.TranscriptEntry {
	entry := models.TranscriptEntry{
		ID:        e.newID(),
		Role:      role,
		Text:      text,
		Live:      live,
		Timestamp: e.now(),
	}
	e.index[entry.ID] = len(e.entries)
	e.entries = append(e.entries, entry)
	e.notify(ChangeAdded, entry)
	return entry
}

func (e *Engine) newID() uuid.UUID {
	for {
		id := uuid.New()
		if _, taken := e.index[id]; !taken {
			return id
		}
	}
}

func (e *Engine) notify(kind ChangeKind, entry models.TranscriptEntry) {
	if e.listener != nil {
		e.listener(Change{Kind: kind, Entry: entry})
	}
}

func (e *Engine) accumulator(role models.Role) *Accumulator {
	if role == models.RoleUser {
		return e.user
	}
	return e.assistant
}

func (e *Engine) liveID(role models.Role) *uuid.NullUUID {
	if role == models.RoleUser {
		return &e.liveUser
	}
	return &e.liveAssistant
}
