package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TranscriptEntry is one line of the session transcript log. Its Text may only change while Live is
// true; once finalized the entry is frozen and its ID is never handed out again.
type TranscriptEntry struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Live      bool      `json:"live"`
	Timestamp time.Time `json:"timestamp"`
}

// LiveCaptionState is the derived state of the two live captions. It is never stored.
type LiveCaptionState struct {
	UserText      string `json:"userText"`
	AssistantText string `json:"assistantText"`
	Active        bool   `json:"active"`
}

// Session groups the transcript entries recorded during one run of the client.
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
}

// DefaultAssistantName is the display name of the assistant in captions and exported transcripts.
const DefaultAssistantName = "HopeAI"

// DisplayRole returns the label a transcript line is prefixed with.
func DisplayRole(role Role, assistantName string) string {
	if role == RoleUser {
		return "You"
	}
	if assistantName == "" {
		return DefaultAssistantName
	}
	return assistantName
}

// RenderTranscript renders entries as plain text, one "<DisplayRole>[ (live)]: <text>" line per entry
// in log order. The output is used for clipboard and file export.
func RenderTranscript(entries []TranscriptEntry, assistantName string) string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		var sb strings.Builder
		sb.WriteString(DisplayRole(e.Role, assistantName))
		if e.Live {
			sb.WriteString(" (live)")
		}
		sb.WriteString(": ")
		sb.WriteString(e.Text)
		lines[i] = sb.String()
	}
	return strings.Join(lines, "\n")
}
