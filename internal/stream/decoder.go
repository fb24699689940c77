// Package stream decodes server-sent-event response bodies into the text deltas they carry.
package stream

import (
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/tmaxmax/go-sse"
)

// DoneMarker is the payload value that terminates a stream.
const DoneMarker = "[DONE]"

// StreamTransportError reports that the underlying stream failed before it was complete. Callers treat
// it as the signal to retry the request without streaming.
type StreamTransportError struct {
	Err error
}

func (e *StreamTransportError) Error() string {
	return fmt.Sprintf("stream transport error: %v", e.Err)
}

func (e *StreamTransportError) Unwrap() error {
	return e.Err
}

// Config tunes the decoder. A nil Config uses the defaults of the underlying reader.
type Config struct {
	// MaxEventSize is the maximum size in bytes of a single event. Larger events fail the stream.
	MaxEventSize int
}

// Decode returns the data payloads of the events read from r, in arrival order. Each payload is a raw
// text fragment; it is never interpreted as JSON. Frames split across reads are buffered until their
// terminating blank line arrives. A frame that is still pending when r reaches EOF is dispatched as if
// its blank line had arrived, while a frame that is still pending when the reader fails is dropped.
//
// The sequence ends when a payload equal to DoneMarker is read or when r reaches EOF. Any other read
// failure is yielded once as a *StreamTransportError, after which the sequence ends. The sequence can
// only be ranged over once since it consumes r.
func Decode(r io.Reader, cfg *Config) iter.Seq2[string, error] {
	r = &terminatedReader{r: r}

	var readCfg *sse.ReadConfig
	if cfg != nil && cfg.MaxEventSize > 0 {
		readCfg = &sse.ReadConfig{MaxEventSize: cfg.MaxEventSize}
	}

	return func(yield func(string, error) bool) {
		for ev, err := range sse.Read(r, readCfg) {
			if err != nil {
				yield("", &StreamTransportError{Err: err})
				return
			}
			if strings.TrimSpace(ev.Data) == DoneMarker {
				return
			}
			// Events carrying only control fields have nothing to append.
			if ev.Data == "" {
				continue
			}
			if !yield(ev.Data, nil) {
				return
			}
		}
	}
}

// terminatedReader ends a cleanly closed stream with a blank line so the last frame is complete even
// when the server closed mid-line.
type terminatedReader struct {
	r    io.Reader
	tail string
	eof  bool
}

func (t *terminatedReader) Read(p []byte) (int, error) {
	if !t.eof {
		n, err := t.r.Read(p)
		if err != io.EOF { //nolint:errorlint // io.Reader returns io.EOF unwrapped
			return n, err
		}
		t.eof = true
		t.tail = "\n\n"
		if n > 0 {
			return n, nil
		}
	}
	if t.tail == "" {
		return 0, io.EOF
	}
	n := copy(p, t.tail)
	t.tail = t.tail[n:]
	return n, nil
}
