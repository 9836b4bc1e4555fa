package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotConfigured indicates the render-engine endpoint is absent. Surfaced
// per-job, never process-fatal.
var ErrNotConfigured = errors.New("render engine not configured")

// ImageRef locates one rendered output asset on the engine.
type ImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// Client talks to the render engine's HTTP API.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a render-engine client.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether an endpoint is set.
func (c *Client) Configured() bool {
	return c.endpoint != ""
}

type submitResponse struct {
	PromptID   string                    `json:"prompt_id"`
	NodeErrors map[string]json.RawMessage `json:"node_errors"`
}

// Submit posts a workflow and returns the engine's opaque job token. A
// non-2xx response or a non-empty node-error payload is a terminal
// submission failure.
func (c *Client) Submit(ctx context.Context, wf Workflow) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(map[string]any{"prompt": wf})
	if err != nil {
		return "", fmt.Errorf("marshal workflow: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/prompt", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit workflow: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("submit workflow: status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var parsed submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("parse submit response: %w", err)
	}
	if len(parsed.NodeErrors) > 0 {
		keys := make([]string, 0, len(parsed.NodeErrors))
		for k := range parsed.NodeErrors {
			keys = append(keys, k)
		}
		return "", fmt.Errorf("submit workflow: node errors on %s", strings.Join(keys, ", "))
	}
	if parsed.PromptID == "" {
		return "", fmt.Errorf("submit workflow: empty prompt_id")
	}
	return parsed.PromptID, nil
}

type historyEntry struct {
	Outputs map[string]struct {
		Images []ImageRef `json:"images"`
	} `json:"outputs"`
}

// History queries job history by token. Returns (nil, nil) while the job is
// not ready: a 404 or an entry without outputs means "poll again", not an
// error.
func (c *Client) History(ctx context.Context, promptID string) (*ImageRef, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/history/"+promptID, nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("query history: status %d", resp.StatusCode)
	}

	var parsed map[string]historyEntry
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parse history response: %w", err)
	}

	entry, ok := parsed[promptID]
	if !ok {
		return nil, nil
	}
	for _, output := range entry.Outputs {
		if len(output.Images) > 0 {
			img := output.Images[0]
			return &img, nil
		}
	}
	return nil, nil
}

// Download fetches the raw bytes of a rendered asset.
func (c *Client) Download(ctx context.Context, ref ImageRef) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	query := url.Values{}
	query.Set("filename", ref.Filename)
	query.Set("subfolder", ref.Subfolder)
	query.Set("type", ref.Type)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/view?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download asset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download asset: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read asset body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("download asset: empty body")
	}
	return data, nil
}
