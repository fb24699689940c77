package transcript_test

import (
	"strings"
	"testing"

	"github.com/MegaGrindStone/hopeai-web-ui/internal/transcript"
)

func TestAccumulator(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		deltas []string
		want   string
	}{
		{
			name:   "prefix stripped from first delta",
			labels: transcript.DefaultAssistantLabels,
			deltas: []string{"HopeAI: Hi", " there"},
			want:   "Hi there",
		},
		{
			name:   "prefix match is case insensitive",
			labels: transcript.DefaultAssistantLabels,
			deltas: []string{"  assistant:   Hello"},
			want:   "Hello",
		},
		{
			name:   "prefix in later delta is kept",
			labels: transcript.DefaultAssistantLabels,
			deltas: []string{"Quote ", "HopeAI: me"},
			want:   "Quote HopeAI: me",
		},
		{
			name:   "label without colon is kept",
			labels: transcript.DefaultAssistantLabels,
			deltas: []string{"HopeAI is here"},
			want:   "HopeAI is here",
		},
		{
			name:   "custom label",
			labels: []string{"Dr. Hope"},
			deltas: []string{"dr. hope: Take care"},
			want:   "Take care",
		},
		{
			name:   "regex characters in label are literal",
			labels: []string{"Dr. Hope"},
			deltas: []string{"DrX Hope: Take care"},
			want:   "DrX Hope: Take care",
		},
		{
			name:   "no labels strips nothing",
			deltas: []string{"Assistant: says hi"},
			want:   "Assistant: says hi",
		},
		{
			name:   "prefix split across deltas is kept",
			labels: transcript.DefaultAssistantLabels,
			deltas: []string{"Hope", "AI: hi"},
			want:   "HopeAI: hi",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := transcript.NewAccumulator(tt.labels...)
			for _, d := range tt.deltas {
				acc.Append(d)
			}
			if got := acc.Value(); got != tt.want {
				t.Errorf("Value() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAccumulatorConcatenation(t *testing.T) {
	deltas := []string{"Assistant: The", " risks", " of ", "Assistant: mixing", "\n", "are real."}

	acc := transcript.NewAccumulator(transcript.DefaultAssistantLabels...)
	for _, d := range deltas {
		acc.Append(d)
	}

	want := "The" + strings.Join(deltas[1:], "")
	if got := acc.Value(); got != want {
		t.Errorf("Value() = %q, want %q", got, want)
	}
}

func TestAccumulatorReset(t *testing.T) {
	acc := transcript.NewAccumulator(transcript.DefaultAssistantLabels...)
	acc.Append("HopeAI: first")
	acc.Reset()

	if got := acc.Value(); got != "" {
		t.Fatalf("Value() = %q after Reset, want empty", got)
	}

	// The next turn strips the label again.
	if got := acc.Append("HopeAI: second"); got != "second" {
		t.Errorf("Append() = %q, want %q", got, "second")
	}
}
