// Package inference provides the streaming client for the remote
// chat-completions endpoint.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/avanlaar/glimmer/internal/sse"
)

// ErrNotConfigured indicates the inference endpoint URL or API key is absent.
// Surfaced per-turn, never process-fatal.
var ErrNotConfigured = errors.New("inference endpoint not configured")

// Message is one chat message in the request context window.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewClient creates an inference client. No client-level timeout is set:
// streaming responses are open-ended and bounded by the request context.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{},
	}
}

// Configured reports whether endpoint and key are both present.
func (c *Client) Configured() bool {
	return c.endpoint != "" && c.apiKey != ""
}

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream"`
	MaxTokens int       `json:"max_tokens"`
}

// StreamChat opens a streaming completion call and returns a decoder over the
// event stream. The caller owns the decoder and must Close it on every exit
// path.
func (c *Client) StreamChat(ctx context.Context, model string, messages []Message, maxTokens int) (*sse.Decoder, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(chatRequest{
		Model:     model,
		Messages:  messages,
		Stream:    true,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("chat request: status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	return sse.NewDecoder(resp.Body), nil
}
