package transcript

import "fmt"

// ActionKind identifies what an inbound event means for the transcript.
type ActionKind int

const (
	// ActionIgnored is anything the engine does not react to, including malformed events.
	ActionIgnored ActionKind = iota
	// ActionAssistantDelta carries a fragment of the assistant reply.
	ActionAssistantDelta
	// ActionAssistantDone marks the end of the assistant reply, which completes the turn.
	ActionAssistantDone
	// ActionUserSpeechStarted marks the start of a new user utterance.
	ActionUserSpeechStarted
	// ActionUserTranscriptDelta carries a fragment of the user's spoken transcript.
	ActionUserTranscriptDelta
	// ActionUserTranscriptDone marks the end of the user's transcript. It is informational only.
	ActionUserTranscriptDone
)

func (k ActionKind) String() string {
	switch k {
	case ActionIgnored:
		return "ignored"
	case ActionAssistantDelta:
		return "assistant_delta"
	case ActionAssistantDone:
		return "assistant_done"
	case ActionUserSpeechStarted:
		return "user_speech_started"
	case ActionUserTranscriptDelta:
		return "user_transcript_delta"
	case ActionUserTranscriptDone:
		return "user_transcript_done"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Action is a classified inbound event. Text is only meaningful for the delta kinds.
type Action struct {
	Kind ActionKind
	Text string
}

// AssistantDelta returns an ActionAssistantDelta carrying text.
func AssistantDelta(text string) Action {
	return Action{Kind: ActionAssistantDelta, Text: text}
}

// UserTranscriptDelta returns an ActionUserTranscriptDelta carrying text.
func UserTranscriptDelta(text string) Action {
	return Action{Kind: ActionUserTranscriptDelta, Text: text}
}
