package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MegaGrindStone/hopeai-web-ui/internal/models"
	"github.com/MegaGrindStone/hopeai-web-ui/internal/stream"
)

// HopeAI is the chat backend of the HopeAI API. Replies are streamed from /chat/stream as
// server-sent events and fetched whole from /chat when streaming fails.
type HopeAI struct {
	baseURL string
	cfg     *stream.Config

	client *http.Client

	logger *slog.Logger
}

type hopeAIRequest struct {
	Message string `json:"message"`
}

type hopeAIResponse struct {
	Reply string `json:"reply"`
}

// NewHopeAI creates a HopeAI backend rooted at baseURL.
func NewHopeAI(baseURL string, cfg *stream.Config, logger *slog.Logger) HopeAI {
	return HopeAI{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		cfg:     cfg,
		client:  &http.Client{},
		logger:  logger.With(slog.String("module", "hopeai")),
	}
}

// Stream posts message to the streaming endpoint and yields the text fragments of the reply in
// arrival order. A failure after the response started is yielded as a *stream.StreamTransportError;
// a non-2xx answer is yielded as a *models.APIError.
func (h HopeAI) Stream(ctx context.Context, message string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := h.doRequest(ctx, "/chat/stream", "text/event-stream", message)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", err)
			return
		}
		defer resp.Body.Close()

		for chunk, err := range stream.Decode(resp.Body, h.cfg) {
			if err != nil {
				yield("", err)
				return
			}

			h.logger.Debug("Received chunk", slog.String("chunk", chunk))

			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// Send posts message to the non-streaming endpoint and returns the whole reply.
func (h HopeAI) Send(ctx context.Context, message string) (string, error) {
	resp, err := h.doRequest(ctx, "/chat", "application/json", message)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var res hopeAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("error decoding response: %w", err)
	}
	return res.Reply, nil
}

func (h HopeAI) doRequest(ctx context.Context, path, accept, message string) (*http.Response, error) {
	jsonBody, err := json.Marshal(hopeAIRequest{Message: message})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	h.logger.Debug("Request Body", slog.String("path", path), slog.String("body", string(jsonBody)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, models.NewAPIError(resp.StatusCode, body)
	}

	return resp, nil
}
