package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"

	"github.com/MegaGrindStone/hopeai-web-ui/internal/models"
	"github.com/MegaGrindStone/hopeai-web-ui/internal/stream"
	"github.com/ollama/ollama/api"
)

// Ollama is a chat backend answering through an Ollama server.
type Ollama struct {
	host         string
	model        string
	systemPrompt string

	client *api.Client
}

// NewOllama creates a new Ollama backend with the specified host URL and model name. The host
// parameter should be a valid URL pointing to an Ollama server.
func NewOllama(host, model, systemPrompt string) (Ollama, error) {
	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, fmt.Errorf("invalid ollama host: %w", err)
	}

	return Ollama{
		host:         host,
		model:        model,
		systemPrompt: systemPrompt,
		client:       api.NewClient(u, &http.Client{}),
	}, nil
}

// Stream yields the reply to message chunk by chunk. Failures once the reply started streaming are
// yielded as *stream.StreamTransportError.
func (o Ollama) Stream(ctx context.Context, message string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		t := true
		req := o.chatRequest(message, &t)

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		started := false
		stopped := false
		err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
			started = true
			if res.Message.Content == "" {
				return nil
			}
			if !yield(res.Message.Content, nil) {
				stopped = true
				cancel()
			}
			return nil
		})
		if err == nil || stopped || errors.Is(err, context.Canceled) {
			return
		}
		if started {
			yield("", &stream.StreamTransportError{Err: err})
			return
		}
		yield("", ollamaError(err))
	}
}

// Send returns the whole reply to message.
func (o Ollama) Send(ctx context.Context, message string) (string, error) {
	f := false
	req := o.chatRequest(message, &f)

	var reply string
	if err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
		reply += res.Message.Content
		return nil
	}); err != nil {
		return "", ollamaError(err)
	}

	return reply, nil
}

func (o Ollama) chatRequest(message string, stream *bool) api.ChatRequest {
	var msgs []api.Message
	if o.systemPrompt != "" {
		msgs = append(msgs, api.Message{
			Role:    "system",
			Content: o.systemPrompt,
		})
	}
	msgs = append(msgs, api.Message{
		Role:    string(models.RoleUser),
		Content: message,
	})

	return api.ChatRequest{
		Model:    o.model,
		Messages: msgs,
		Stream:   stream,
	}
}

func ollamaError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		detail := statusErr.ErrorMessage
		if detail == "" {
			detail = statusErr.Status
		}
		return &models.APIError{Status: statusErr.StatusCode, Detail: detail}
	}
	return fmt.Errorf("error sending request: %w", err)
}
