package stream_test

import (
	"errors"
	"io"
	"slices"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/MegaGrindStone/hopeai-web-ui/internal/stream"
)

func collect(t *testing.T, r io.Reader) ([]string, error) {
	t.Helper()

	var got []string
	for delta, err := range stream.Decode(r, nil) {
		if err != nil {
			return got, err
		}
		got = append(got, delta)
	}
	return got, nil
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "done marker ends stream",
			input: "data: Hello\n\ndata: [DONE]\n\ndata: ignored\n\n",
			want:  []string{"Hello"},
		},
		{
			name:  "close without done marker",
			input: "data: Hel\n\ndata: lo\n\n",
			want:  []string{"Hel", "lo"},
		},
		{
			name:  "control lines are ignored",
			input: ": keep-alive\n\nevent: message\nid: 1\ndata: Hi\n\nretry: 1000\n\n",
			want:  []string{"Hi"},
		},
		{
			name:  "only first space after colon is removed",
			input: "data: Hi\n\ndata:  there\n\n",
			want:  []string{"Hi", " there"},
		},
		{
			name:  "multi line payload",
			input: "data: line one\ndata: line two\n\n",
			want:  []string{"line one\nline two"},
		},
		{
			name:  "payloads are not parsed as json",
			input: "data: {\"reply\": 1}\n\n",
			want:  []string{"{\"reply\": 1}"},
		},
		{
			name:  "crlf framing",
			input: "data: a\r\n\r\ndata: b\r\n\r\n",
			want:  []string{"a", "b"},
		},
		{
			name:  "close inside done marker line",
			input: "data: a\n\ndata: [DONE]",
			want:  []string{"a"},
		},
		{
			name:  "close after done marker line",
			input: "data: a\n\ndata: [DONE]\n",
			want:  []string{"a"},
		},
		{
			name:  "close inside a line",
			input: "data: Hel",
			want:  []string{"Hel"},
		},
		{
			name:  "close before blank line",
			input: "data: Hel\n",
			want:  []string{"Hel"},
		},
		{
			name:  "empty stream",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collect(t, strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Decode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeFragmentedReads(t *testing.T) {
	input := "data: Hope\n\ndata: AI\n\ndata: [DONE]\n\n"

	got, err := collect(t, iotest.OneByteReader(strings.NewReader(input)))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := []string{"Hope", "AI"}
	if !slices.Equal(got, want) {
		t.Errorf("Decode() = %q, want %q", got, want)
	}
}

func TestDecodeTransportError(t *testing.T) {
	errReset := errors.New("connection reset")

	tests := []struct {
		name    string
		partial string
	}{
		{
			name:    "cut inside a line",
			partial: "data: Hi\n\ndata: Hel",
		},
		{
			name:    "cut before blank line",
			partial: "data: Hi\n\ndata: Hel\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := io.MultiReader(strings.NewReader(tt.partial), iotest.ErrReader(errReset))

			got, err := collect(t, r)

			var transportErr *stream.StreamTransportError
			if !errors.As(err, &transportErr) {
				t.Fatalf("Decode() error = %v, want StreamTransportError", err)
			}
			if !slices.Equal(got, []string{"Hi"}) {
				t.Errorf("Decode() = %q, want only the complete frame", got)
			}
		})
	}
}

func TestDecodeStopsEarly(t *testing.T) {
	input := "data: a\n\ndata: b\n\ndata: c\n\n"

	var got []string
	for delta, err := range stream.Decode(strings.NewReader(input), nil) {
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		got = append(got, delta)
		if len(got) == 2 {
			break
		}
	}
	if !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Decode() = %q, want [a b]", got)
	}
}

func TestDecodeMaxEventSize(t *testing.T) {
	input := "data: " + strings.Repeat("x", 256) + "\n\n"

	var gotErr error
	for _, err := range stream.Decode(strings.NewReader(input), &stream.Config{MaxEventSize: 32}) {
		if err != nil {
			gotErr = err
		}
	}

	var transportErr *stream.StreamTransportError
	if !errors.As(gotErr, &transportErr) {
		t.Errorf("Decode() error = %v, want StreamTransportError for oversized event", gotErr)
	}
}
