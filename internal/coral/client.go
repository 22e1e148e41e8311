// Package coral is the HTTP/SSE client for the coordination server.
// Agents receive events over a long-lived SSE stream and send JSON-RPC
// envelopes back over the server's message endpoint; the orchestrator
// uses the thread and agent-listing endpoints.
package coral

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultHeaderTimeout  = 5 * time.Second
)

// Envelope is the JSON-RPC 2.0 shaped message accepted by the server's
// message endpoint. Replies carry the originating request id verbatim in
// ID; notifications leave ID nil, which marshals to null.
type Envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	Result  any             `json:"result,omitempty"`
}

// AgentInfo is one entry from the server's agent listing endpoint.
type AgentInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Client talks to one coordination server. Requests use a bounded timeout;
// the stream connection has no overall deadline (only a header timeout for
// the initial connect).
type Client struct {
	baseURL    string
	httpClient *http.Client
	streamer   *http.Client
	logger     *log.Logger
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithRequestTimeout sets the per-request timeout for non-stream calls.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithConnectTimeout bounds how long stream opening may wait for response
// headers before giving up.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.streamer.Transport = &http.Transport{ResponseHeaderTimeout: d}
	}
}

// NewClient creates a client for the given server base URL.
func NewClient(baseURL string, logger *log.Logger, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		streamer: &http.Client{
			Transport: &http.Transport{ResponseHeaderTimeout: defaultHeaderTimeout},
		},
		logger: logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the configured server base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// OpenStream opens the long-lived SSE event stream for one agent identity.
// The returned Stream yields raw event payloads until the server closes the
// connection, a read error occurs, or the stream is closed.
func (c *Client) OpenStream(ctx context.Context, application, session, agentID string) (*Stream, error) {
	u := fmt.Sprintf("%s/sse/v1/devmode/%s/privkey/%s/sse?agentId=%s",
		c.baseURL, url.PathEscape(application), url.PathEscape(session), url.QueryEscape(agentID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("stream connect: status %d", resp.StatusCode)
	}
	return newStream(resp.Body), nil
}

// Send posts one envelope to the server's message endpoint. A non-2xx
// status is reported as an error; the caller decides whether that matters
// (the engine logs and moves on; delivery is at most once).
func (c *Client) Send(ctx context.Context, env Envelope) error {
	if env.JSONRPC == "" {
		env.JSONRPC = "2.0"
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return c.post(ctx, c.baseURL+"/mcp", body, nil)
}

// CreateThread asks the server to create a collaboration thread and returns
// its id.
func (c *Client) CreateThread(ctx context.Context, name string, participants []string, metadata map[string]any) (string, error) {
	payload := map[string]any{
		"name":         name,
		"participants": participants,
		"metadata":     metadata,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal thread: %w", err)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, c.baseURL+"/api/v1/threads", body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("create thread: server returned no id")
	}
	return out.ID, nil
}

// PostMessage posts a message into a thread, optionally mentioning agents.
func (c *Client) PostMessage(ctx context.Context, threadID, content, sender string, mentions []string) error {
	payload := map[string]any{
		"thread_id": threadID,
		"content":   content,
		"sender":    sender,
		"mentions":  mentions,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	u := fmt.Sprintf("%s/api/v1/threads/%s/messages", c.baseURL, url.PathEscape(threadID))
	return c.post(ctx, u, body, nil)
}

// ListAgents returns the agents currently known to the server. Used for
// coarse health checks, not protocol logic.
func (c *Client) ListAgents(ctx context.Context) ([]AgentInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/agents", nil)
	if err != nil {
		return nil, fmt.Errorf("agents request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list agents: status %d", resp.StatusCode)
	}
	var agents []AgentInfo
	if err := json.NewDecoder(resp.Body).Decode(&agents); err != nil {
		return nil, fmt.Errorf("decode agents: %w", err)
	}
	return agents, nil
}

func (c *Client) post(ctx context.Context, u string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("post %s: status %d", u, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
