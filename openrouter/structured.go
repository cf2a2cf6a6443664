package openrouter

import (
	"context"
	"encoding/json"
	"strings"
)

// StructuredAgent runs prompts whose responses are constrained to a JSON
// schema via the API's structured-output support. Its Run returns the
// raw JSON payload; schema validation beyond the provider's enforcement
// is the caller's responsibility.
type StructuredAgent struct {
	client       *Client
	name         string
	model        string
	systemPrompt string
	schemaName   string
	schema       json.RawMessage
}

// NewStructuredAgent creates a structured-output agent. schemaName labels
// the schema in the request; schema is the JSON schema the response must
// satisfy.
func NewStructuredAgent(client *Client, name, model, systemPrompt, schemaName string, schema json.RawMessage) *StructuredAgent {
	return &StructuredAgent{
		client:       client,
		name:         name,
		model:        model,
		systemPrompt: systemPrompt,
		schemaName:   schemaName,
		schema:       schema,
	}
}

// Name returns the agent's name.
func (a *StructuredAgent) Name() string { return a.name }

// Run executes the prompt and returns the schema-constrained JSON
// payload.
func (a *StructuredAgent) Run(ctx context.Context, prompt string) (json.RawMessage, error) {
	msgs := make([]chatMessage, 0, 2)
	if a.systemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: a.systemPrompt})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: prompt})

	resp, err := a.client.complete(ctx, chatRequest{
		Model:    a.model,
		Messages: msgs,
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:   a.schemaName,
				Strict: true,
				Schema: a.schema,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return json.RawMessage(stripFences(resp.Choices[0].Message.Content)), nil
}

// stripFences removes a surrounding markdown code fence. Some models wrap
// JSON output in one even under structured output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
