package openrouter

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phil65/aistack/agent"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-key", WithBaseURL(srv.URL))
}

func TestChatAgent_Run(t *testing.T) {
	var gotReq chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotReq))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"model": "openai/gpt-4o-mini",
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "hello there"}},
			},
			"usage": map[string]interface{}{
				"prompt_tokens":     12,
				"completion_tokens": 3,
				"cost":              0.0004,
			},
		})
	})

	a := NewChatAgent(client, "dieter", "openai/gpt-4o-mini", "be helpful")

	var sent, received []agent.Message
	subSent := a.OnMessageSent(func(m agent.Message) { sent = append(sent, m) })
	subRecv := a.OnMessageReceived(func(m agent.Message) { received = append(received, m) })
	defer subSent.Cancel()
	defer subRecv.Cancel()

	msg, err := a.Run(t.Context(), "hi")
	require.NoError(t, err)

	assert.Equal(t, agent.RoleAssistant, msg.Role)
	assert.Equal(t, "hello there", msg.Content)
	assert.Equal(t, "openai/gpt-4o-mini", msg.Model)
	require.NotNil(t, msg.Usage)
	assert.Equal(t, 12, msg.Usage.InputTokens)
	assert.InDelta(t, 0.0004, msg.Usage.CostUSD, 1e-9)
	assert.Positive(t, msg.ResponseTime)

	// System prompt then user prompt, usage accounting requested.
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "hi", gotReq.Messages[1].Content)
	require.NotNil(t, gotReq.Usage)
	assert.True(t, gotReq.Usage.Include)

	// Events: user prompt received, assistant response sent.
	require.Len(t, received, 1)
	assert.Equal(t, agent.RoleUser, received[0].Role)
	require.Len(t, sent, 1)
	assert.Equal(t, "hello there", sent[0].Content)
}

func TestChatAgent_RunAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error": {"message": "invalid api key"}}`)
	})
	a := NewChatAgent(client, "dieter", "openai/gpt-4o-mini", "")

	_, err := a.Run(t.Context(), "hi")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid api key", apiErr.Message)
}

func TestChatAgent_Stream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, `data: {"choices":[{"delta":{"content":"The "}}]}`+"\n\n")
		io.WriteString(w, ": keep-alive comment\n\n")
		io.WriteString(w, `data: {"choices":[{"delta":{"content":"answer."}}]}`+"\n\n")
		io.WriteString(w, `data: {"choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2,"cost":0.0001}}`+"\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	})

	a := NewChatAgent(client, "dieter", "openai/gpt-4o-mini", "")
	var final []agent.Message
	sub := a.OnMessageSent(func(m agent.Message) { final = append(final, m) })
	defer sub.Cancel()

	chunks, err := a.Stream(t.Context(), "question")
	require.NoError(t, err)

	var got string
	for chunk := range chunks {
		require.NoError(t, chunk.Err)
		got += chunk.Text
	}
	assert.Equal(t, "The answer.", got)

	// The assembled message was emitted before the channel closed.
	require.Len(t, final, 1)
	assert.Equal(t, "The answer.", final[0].Content)
	require.NotNil(t, final[0].Usage)
	assert.InDelta(t, 0.0001, final[0].Usage.CostUSD, 1e-9)
}

func TestChatAgent_StreamTransportFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, `{"error": {"message": "upstream unavailable"}}`)
	})
	a := NewChatAgent(client, "dieter", "openai/gpt-4o-mini", "")

	chunks, err := a.Stream(t.Context(), "question")
	require.NoError(t, err)

	var last agent.StreamChunk
	for chunk := range chunks {
		last = chunk
	}
	require.Error(t, last.Err)
	var apiErr *APIError
	assert.ErrorAs(t, last.Err, &apiErr)
}

func TestStructuredAgent_Run(t *testing.T) {
	schema := json.RawMessage(`{"type":"object"}`)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))

		require.NotNil(t, req.ResponseFormat)
		assert.Equal(t, "json_schema", req.ResponseFormat.Type)
		require.NotNil(t, req.ResponseFormat.JSONSchema)
		assert.Equal(t, "ticket", req.ResponseFormat.JSONSchema.Name)
		assert.True(t, req.ResponseFormat.JSONSchema.Strict)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"role": "assistant", "content": "```json\n{\"title\": \"Login page\"}\n```"}},
			},
		})
	})

	a := NewStructuredAgent(client, "uschi", "openai/gpt-4o-mini", "extract tickets", "ticket", schema)
	raw, err := a.Run(t.Context(), "the transcript")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title": "Login page"}`, string(raw))
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare json", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  {\"a\":1}\n", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFences(tt.in))
		})
	}
}

func TestListModels(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		io.WriteString(w, `{"data":[{"id":"openai/gpt-4o-mini","name":"GPT-4o Mini","context_length":128000}]}`)
	})

	models, err := client.ListModels(t.Context())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.Equal(t, "openai/gpt-4o-mini", models[0].ID)
	assert.Equal(t, 128000, models[0].ContextLength)
}
