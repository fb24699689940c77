package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MegaGrindStone/hopeai-web-ui/internal/models"
	"github.com/MegaGrindStone/hopeai-web-ui/internal/services"
)

func TestOpenAIStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}

		var req struct {
			Model    string `json:"model"`
			Stream   bool   `json:"stream"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !req.Stream || req.Model != "gpt-test" {
			t.Errorf("request = %+v", req)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "hi" {
			t.Errorf("messages = %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w,
			`data: {"id":"1","choices":[{"index":0,"delta":{"role":"assistant","content":""}}]}`+"\n\n"+
				`data: {"id":"1","choices":[{"index":0,"delta":{"content":"Hel"}}]}`+"\n\n"+
				`data: {"id":"1","choices":[]}`+"\n\n"+
				`data: {"id":"1","choices":[{"index":0,"delta":{"content":"lo"}}]}`+"\n\n"+
				"data: [DONE]\n\n")
	}))
	defer srv.Close()

	o := services.NewOpenAI("key", srv.URL+"/v1", "gpt-test", "be kind", services.LLMParameters{}, discardLogger)

	var got string
	for chunk, err := range o.Stream(context.Background(), "hi") {
		if err != nil {
			t.Fatalf("Stream() error = %v", err)
		}
		got += chunk
	}
	if got != "Hello" {
		t.Errorf("Stream() = %q, want %q", got, "Hello")
	}
}

func TestOpenAISend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w,
			`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Hi there"}}]}`)
	}))
	defer srv.Close()

	temperature := float32(0.2)
	o := services.NewOpenAI("key", srv.URL+"/v1", "gpt-test", "",
		services.LLMParameters{Temperature: &temperature}, discardLogger)

	got, err := o.Send(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got != "Hi there" {
		t.Errorf("Send() = %q, want %q", got, "Hi there")
	}
}

func TestOpenAISendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"invalid api key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	o := services.NewOpenAI("bad", srv.URL+"/v1", "gpt-test", "", services.LLMParameters{}, discardLogger)

	_, err := o.Send(context.Background(), "hi")

	var apiErr *models.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Send() error = %v, want APIError", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Detail != "invalid api key" {
		t.Errorf("APIError = %+v", apiErr)
	}
}
