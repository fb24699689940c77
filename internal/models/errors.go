package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIError is returned when a backend answers with a non-2xx status. Detail holds the human-readable
// reason when the error body carried one.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Detail)
}

// NewAPIError builds an APIError from a response status and its JSON error body. The detail is taken
// from the first non-empty of "detail", "message" and "error" (plain or {"message": ...}).
func NewAPIError(status int, body []byte) *APIError {
	e := &APIError{Status: status}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return e
	}
	for _, key := range []string{"detail", "message", "error"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(s) != "" {
			e.Detail = s
			return e
		}
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &nested); err == nil && nested.Message != "" {
			e.Detail = nested.Message
			return e
		}
	}
	return e
}
