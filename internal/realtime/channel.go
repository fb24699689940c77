package realtime

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/MegaGrindStone/hopeai-web-ui/internal/transcript"
	"github.com/gorilla/websocket"
)

const (
	// DefaultModel is the realtime model sessions connect to unless configured otherwise.
	DefaultModel = "gpt-4o-realtime-preview-2024-12-17"
	// DefaultURL is the realtime endpoint of the speech model provider.
	DefaultURL = "wss://api.openai.com/v1/realtime"

	defaultConnectTimeout = 15 * time.Second
)

// Channel is the inbound side of an established realtime event channel. Messages yields each text
// payload in arrival order and ends when the channel closes.
type Channel interface {
	Messages() iter.Seq2[[]byte, error]
	Close() error
}

// ChannelEstablishError reports that a voice session could not be set up.
type ChannelEstablishError struct {
	Err error
}

func (e *ChannelEstablishError) Error() string {
	return fmt.Sprintf("failed to establish realtime channel: %v", e.Err)
}

func (e *ChannelEstablishError) Unwrap() error {
	return e.Err
}

// WebSocketDialer opens realtime channels over WebSocket.
type WebSocketDialer struct {
	url   string
	model string

	dialer *websocket.Dialer
}

// NewWebSocketDialer creates a dialer for the realtime endpoint at rawURL serving model.
func NewWebSocketDialer(rawURL, model string) WebSocketDialer {
	if rawURL == "" {
		rawURL = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}
	return WebSocketDialer{
		url:    rawURL,
		model:  model,
		dialer: websocket.DefaultDialer,
	}
}

// Dial connects using the ephemeral credential token.
func (d WebSocketDialer) Dial(ctx context.Context, token string) (Channel, error) {
	u, err := url.Parse(d.url)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime url: %w", err)
	}
	q := u.Query()
	q.Set("model", d.model)
	u.RawQuery = q.Encode()

	headers := make(http.Header)
	headers.Set("Authorization", "Bearer "+token)
	headers.Set("OpenAI-Beta", "realtime=v1")

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}

	conn, resp, err := d.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return &wsChannel{conn: conn}, nil
}

type wsChannel struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

func (c *wsChannel) Messages() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			messageType, data, err := c.conn.ReadMessage()
			if err != nil {
				// A local Close surfaces as a read on a closed connection.
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					errors.Is(err, net.ErrClosed) {
					return
				}
				yield(nil, err)
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			if !yield(data, nil) {
				return
			}
		}
	}
}

func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		err = c.conn.Close()
	})
	return err
}

// Actions classifies the messages of ch. Malformed messages come out as ActionIgnored; only channel
// read failures are yielded as errors.
func Actions(ch Channel) iter.Seq2[transcript.Action, error] {
	return func(yield func(transcript.Action, error) bool) {
		for payload, err := range ch.Messages() {
			if err != nil {
				yield(transcript.Action{}, err)
				return
			}
			if !yield(Classify(payload), nil) {
				return
			}
		}
	}
}
