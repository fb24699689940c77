// Package realtime connects to the realtime speech model and translates its event feed into transcript
// actions.
package realtime

import (
	"encoding/json"

	"github.com/MegaGrindStone/hopeai-web-ui/internal/transcript"
)

// Event is the part of an inbound realtime message the transcript cares about.
type Event struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
	Text  string `json:"text"`
}

var eventActions = map[string]transcript.ActionKind{
	"response.output_text.delta":             transcript.ActionAssistantDelta,
	"response.text.delta":                    transcript.ActionAssistantDelta,
	"response.audio_transcript.delta":        transcript.ActionAssistantDelta,
	"response.output_audio_transcript.delta": transcript.ActionAssistantDelta,
	"response.refusal.delta":                 transcript.ActionAssistantDelta,

	"response.completed":                    transcript.ActionAssistantDone,
	"response.done":                         transcript.ActionAssistantDone,
	"response.output_text.done":             transcript.ActionAssistantDone,
	"response.text.done":                    transcript.ActionAssistantDone,
	"response.audio_transcript.done":        transcript.ActionAssistantDone,
	"response.output_audio_transcript.done": transcript.ActionAssistantDone,

	"input_audio_buffer.speech_started": transcript.ActionUserSpeechStarted,
	"response.started":                  transcript.ActionUserSpeechStarted,

	"input_audio_buffer.transcript.delta":                transcript.ActionUserTranscriptDelta,
	"input_audio_buffer.speech_transcript.delta":         transcript.ActionUserTranscriptDelta,
	"conversation.item.input_audio_transcription.delta": transcript.ActionUserTranscriptDelta,

	"input_audio_buffer.transcript.completed":               transcript.ActionUserTranscriptDone,
	"input_audio_buffer.speech_transcript.done":             transcript.ActionUserTranscriptDone,
	"conversation.item.input_audio_transcription.completed": transcript.ActionUserTranscriptDone,
}

// Classify maps one inbound message to exactly one transcript action. Unknown types and payloads that
// are not a JSON object with a string "type" are ignored rather than reported.
func Classify(payload []byte) transcript.Action {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return transcript.Action{Kind: transcript.ActionIgnored}
	}
	return ClassifyEvent(ev)
}

// ClassifyEvent maps an already decoded event to its transcript action.
func ClassifyEvent(ev Event) transcript.Action {
	kind, ok := eventActions[ev.Type]
	if !ok {
		return transcript.Action{Kind: transcript.ActionIgnored}
	}

	a := transcript.Action{Kind: kind}
	if kind == transcript.ActionAssistantDelta || kind == transcript.ActionUserTranscriptDelta {
		a.Text = ev.Delta
		if a.Text == "" {
			a.Text = ev.Text
		}
	}
	return a
}
