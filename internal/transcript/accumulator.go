// Package transcript merges streamed chat replies and realtime speech transcripts into one ordered
// transcript log, and derives the live captions shown while a turn is in flight.
package transcript

import (
	"regexp"
	"strings"
)

// DefaultAssistantLabels are the self-identification labels the backend sometimes prefixes its
// replies with.
var DefaultAssistantLabels = []string{"HopeAI", "Assistant"}

// Accumulator buffers the text deltas of one speaker for the duration of a turn.
//
// When labels are configured, a case-insensitive "<label>:" prefix, with the whitespace around it, is
// stripped from a delta appended to an empty buffer. Deltas appended to a non-empty buffer are kept
// verbatim.
type Accumulator struct {
	prefix *regexp.Regexp
	buf    strings.Builder
}

// NewAccumulator creates an empty Accumulator. Without labels nothing is ever stripped, which is what
// the user side of a turn uses.
func NewAccumulator(labels ...string) *Accumulator {
	return &Accumulator{prefix: labelPrefix(labels)}
}

func labelPrefix(labels []string) *regexp.Regexp {
	quoted := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(l))
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)^\s*(?:` + strings.Join(quoted, "|") + `):\s*`)
}

// Strip removes a leading label prefix from s.
func (a *Accumulator) Strip(s string) string {
	if a.prefix == nil {
		return s
	}
	return a.prefix.ReplaceAllLiteralString(s, "")
}

// Append adds delta to the buffer and returns the text that was actually appended.
func (a *Accumulator) Append(delta string) string {
	if a.buf.Len() == 0 {
		delta = a.Strip(delta)
	}
	a.buf.WriteString(delta)
	return delta
}

// Value returns the buffered text.
func (a *Accumulator) Value() string {
	return a.buf.String()
}

// Reset clears the buffer.
func (a *Accumulator) Reset() {
	a.buf.Reset()
}
