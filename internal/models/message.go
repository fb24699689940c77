package models

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Message represents an entry of the message list shown next to the transcript. One assistant Message
// is created per submitted turn and mutated in place while its reply streams in.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Loading is true while the assistant reply is still being produced. It becomes false exactly once.
	Loading bool `json:"loading"`
	// Error would be filled if the reply could not be produced at all.
	Error string `json:"error,omitempty"`
}

// Role represents the role of a conversation participant.
type Role string

const (
	// RoleUser represents the human side of the conversation, typed or spoken.
	RoleUser Role = "user"
	// RoleAssistant represents the assistant side of the conversation.
	RoleAssistant Role = "assistant"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// RenderMarkdown converts message content into HTML. Assistant replies are written in markdown, so the
// message-list view receives both the raw content and its rendered form.
func RenderMarkdown(content string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}
	return buf.String(), nil
}
