package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultAssistantID = "agent"

// HTTPAgent calls a deployed agent graph through its "wait for run" endpoint.
type HTTPAgent struct {
	name        string
	baseURL     string
	assistantID string
	apiKey      string
	timeout     time.Duration
	client      *http.Client
}

type Option func(*HTTPAgent)

func WithAssistantID(id string) Option {
	return func(a *HTTPAgent) {
		if id != "" {
			a.assistantID = id
		}
	}
}

func WithAPIKey(key string) Option {
	return func(a *HTTPAgent) { a.apiKey = key }
}

func WithHTTPClient(c *http.Client) Option {
	return func(a *HTTPAgent) {
		if c != nil {
			a.client = c
		}
	}
}

// WithTimeout bounds a single run; zero leaves runs unbounded.
func WithTimeout(d time.Duration) Option {
	return func(a *HTTPAgent) { a.timeout = d }
}

func NewHTTPAgent(name, baseURL string, opts ...Option) *HTTPAgent {
	a := &HTTPAgent{
		name:        name,
		baseURL:     strings.TrimRight(baseURL, "/"),
		assistantID: defaultAssistantID,
		client:      &http.Client{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.timeout > 0 {
		c := *a.client
		c.Timeout = a.timeout
		a.client = &c
	}
	return a
}

func (a *HTTPAgent) Name() string {
	return a.name
}

type runRequest struct {
	AssistantID string `json:"assistant_id"`
	Input       Input  `json:"input"`
}

type wireMessage struct {
	Role    string          `json:"role"`
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

type wireState struct {
	Messages []wireMessage  `json:"messages"`
	Error    map[string]any `json:"__error__"`
}

func (a *HTTPAgent) Invoke(ctx context.Context, in Input) (Output, error) {
	body, err := json.Marshal(runRequest{AssistantID: a.assistantID, Input: in})
	if err != nil {
		return Output{}, fmt.Errorf("encode run request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/runs/wait", bytes.NewReader(body))
	if err != nil {
		return Output{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if a.apiKey != "" {
		req.Header.Set("x-api-key", a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return Output{}, fmt.Errorf("call %s: %w", a.name, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return Output{}, fmt.Errorf("read %s reply: %w", a.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Output{}, fmt.Errorf("%s returned status %d: %s", a.name, resp.StatusCode, truncate(string(payload), 512))
	}

	var state wireState
	if err := json.Unmarshal(payload, &state); err != nil {
		return Output{}, fmt.Errorf("decode %s reply: %w", a.name, err)
	}
	if state.Error != nil {
		return Output{}, fmt.Errorf("%s run failed: %v", a.name, state.Error["message"])
	}

	out := Output{Messages: make([]Message, 0, len(state.Messages))}
	for i, m := range state.Messages {
		text, err := decodeContent(m.Content)
		if err != nil {
			return Output{}, fmt.Errorf("decode %s message %d: %w", a.name, i, err)
		}
		role := m.Role
		if role == "" {
			role = m.Type
		}
		out.Messages = append(out.Messages, Message{Role: role, Content: text})
	}
	if len(out.Messages) == 0 {
		return Output{}, ErrEmptyReply
	}
	return out, nil
}

// decodeContent accepts either a plain string or a list of content blocks.
func decodeContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", err
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" || b.Type == "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, ""), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
