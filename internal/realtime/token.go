package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/MegaGrindStone/hopeai-web-ui/internal/models"
)

// Voice identifies the voice the realtime model speaks with.
type Voice string

// Voices lists the voices a session can be started with.
var Voices = []Voice{"verse", "alloy", "aria", "sage", "ballad", "tenor"}

// DefaultVoice is used when no voice is requested.
const DefaultVoice Voice = "verse"

// ParseVoice validates s against Voices. An empty s selects DefaultVoice.
func ParseVoice(s string) (Voice, error) {
	if s == "" {
		return DefaultVoice, nil
	}
	v := Voice(s)
	if !slices.Contains(Voices, v) {
		return "", fmt.Errorf("unknown voice %q", s)
	}
	return v, nil
}

// ErrNoToken is returned when the token endpoint answered without an ephemeral credential.
var ErrNoToken = errors.New("failed to obtain realtime token")

// TokenClient fetches ephemeral realtime credentials from the backend's session token endpoint.
type TokenClient struct {
	url    string
	client *http.Client
}

type tokenRequest struct {
	Voice Voice `json:"voice"`
}

// NewTokenClient creates a TokenClient posting to url.
func NewTokenClient(url string) TokenClient {
	return TokenClient{
		url:    url,
		client: &http.Client{},
	}
}

// Token requests a credential for a session speaking with voice.
func (c TokenClient) Token(ctx context.Context, voice Voice) (string, error) {
	jsonBody, err := json.Marshal(tokenRequest{Voice: voice})
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", models.NewAPIError(resp.StatusCode, body)
	}

	var res map[string]any
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("error decoding response: %w", err)
	}

	key := ephemeralKey(res)
	if key == "" {
		return "", ErrNoToken
	}
	return key, nil
}

// ephemeralKey looks the credential up at client_secret.value, then client_secret, then value.
func ephemeralKey(res map[string]any) string {
	switch secret := res["client_secret"].(type) {
	case map[string]any:
		if v, ok := secret["value"].(string); ok && v != "" {
			return v
		}
	case string:
		if secret != "" {
			return secret
		}
	}
	if v, ok := res["value"].(string); ok {
		return v
	}
	return ""
}
