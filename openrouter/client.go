// Package openrouter is a thin binding to the OpenRouter chat-completions
// API, exposing conversational and structured-output agents that satisfy
// the orchestration layer's handle contracts.
package openrouter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// APIError is a transport or API failure from the underlying call layer.
// It is surfaced verbatim; no retries happen at this level.
type APIError struct {
	Message string
	Status  int
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("openrouter: %s (status %d)", e.Message, e.Status)
	}
	return fmt.Sprintf("openrouter: %s", e.Message)
}

// Client talks to the OpenRouter API.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	apiKey     string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets the HTTP client, including any timeout policy.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithClientLogger sets the client logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client authenticated with apiKey.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type usageOptions struct {
	Include bool `json:"include"`
}

type jsonSchemaFormat struct {
	Schema json.RawMessage `json:"schema"`
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
}

type responseFormat struct {
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
	Type       string            `json:"type"`
}

type chatRequest struct {
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Usage          *usageOptions   `json:"usage,omitempty"`
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Stream         bool            `json:"stream,omitempty"`
}

type apiUsage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	Cost             float64 `json:"cost"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatResponse struct {
	Usage   *apiUsage    `json:"usage"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type streamDelta struct {
	Content string `json:"content"`
}

type streamChoice struct {
	Delta streamDelta `json:"delta"`
}

type streamChunk struct {
	Usage   *apiUsage      `json:"usage"`
	Model   string         `json:"model"`
	Choices []streamChoice `json:"choices"`
}

// complete performs a non-streaming chat completion.
func (c *Client) complete(ctx context.Context, req chatRequest) (*chatResponse, error) {
	start := time.Now()
	resp, err := c.post(ctx, "/chat/completions", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiErrorFromResponse(resp)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &APIError{Message: fmt.Sprintf("decoding response: %v", err)}
	}
	if len(out.Choices) == 0 {
		return nil, &APIError{Message: "response contained no choices"}
	}

	c.logger.Debug("completion finished",
		"model", req.Model,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return &out, nil
}

// stream performs a streaming chat completion, calling onChunk for every
// SSE data event in arrival order.
func (c *Client) stream(ctx context.Context, req chatRequest, onChunk func(streamChunk)) error {
	req.Stream = true
	resp, err := c.post(ctx, "/chat/completions", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiErrorFromResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue // comments, blank keep-alive lines
		}
		if data == "[DONE]" {
			return nil
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return &APIError{Message: fmt.Sprintf("decoding stream chunk: %v", err)}
		}
		onChunk(chunk)
	}
	if err := scanner.Err(); err != nil {
		return &APIError{Message: fmt.Sprintf("reading stream: %v", err)}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("encoding request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, &APIError{Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Message: err.Error()}
	}
	return resp, nil
}

func apiErrorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		msg = payload.Error.Message
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
