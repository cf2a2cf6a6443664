package openrouter

import (
	"context"
	"strings"
	"time"

	"github.com/phil65/aistack/agent"
)

// ChatAgent is a conversational agent.Handle backed by the OpenRouter
// API. Each Run or Stream call is a single independent turn; the handle
// keeps no conversation memory of its own — the session store is the
// record of the conversation.
type ChatAgent struct {
	client       *Client
	name         agent.Identity
	model        string
	systemPrompt string
	emitter      agent.Emitter
}

// NewChatAgent creates a chat agent named name using model.
func NewChatAgent(client *Client, name agent.Identity, model, systemPrompt string) *ChatAgent {
	return &ChatAgent{
		client:       client,
		name:         name,
		model:        model,
		systemPrompt: systemPrompt,
	}
}

func (a *ChatAgent) Identity() agent.Identity { return a.name }

func (a *ChatAgent) OnMessageSent(fn agent.MessageHandler) agent.Subscription {
	return a.emitter.OnMessageSent(fn)
}

func (a *ChatAgent) OnMessageReceived(fn agent.MessageHandler) agent.Subscription {
	return a.emitter.OnMessageReceived(fn)
}

func (a *ChatAgent) OnToolInvoked(fn agent.ToolHandler) agent.Subscription {
	return a.emitter.OnToolInvoked(fn)
}

func (a *ChatAgent) request(prompt string) chatRequest {
	msgs := make([]chatMessage, 0, 2)
	if a.systemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: a.systemPrompt})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: prompt})
	return chatRequest{
		Model:    a.model,
		Messages: msgs,
		Usage:    &usageOptions{Include: true},
	}
}

// Run executes one prompt and returns the final assistant message. The
// user prompt is notified through the message-received channel and the
// response through message-sent, so a capture scope records both sides.
func (a *ChatAgent) Run(ctx context.Context, prompt string) (agent.Message, error) {
	a.emitter.EmitReceived(agent.Message{Role: agent.RoleUser, Content: prompt})

	start := time.Now()
	resp, err := a.client.complete(ctx, a.request(prompt))
	if err != nil {
		return agent.Message{}, err
	}

	msg := agent.Message{
		Role:         agent.RoleAssistant,
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		Usage:        convertUsage(resp.Usage),
		ResponseTime: time.Since(start),
	}
	a.emitter.EmitSent(msg)
	return msg, nil
}

// Stream executes one prompt as a fragment channel. The assembled
// message is emitted through message-sent before the channel closes.
func (a *ChatAgent) Stream(ctx context.Context, prompt string) (<-chan agent.StreamChunk, error) {
	out := make(chan agent.StreamChunk, 16)
	go func() {
		defer close(out)
		a.emitter.EmitReceived(agent.Message{Role: agent.RoleUser, Content: prompt})

		start := time.Now()
		var sb strings.Builder
		var usage *apiUsage
		model := a.model

		err := a.client.stream(ctx, a.request(prompt), func(chunk streamChunk) {
			if chunk.Model != "" {
				model = chunk.Model
			}
			if chunk.Usage != nil {
				usage = chunk.Usage
			}
			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				sb.WriteString(choice.Delta.Content)
				select {
				case out <- agent.StreamChunk{Text: choice.Delta.Content}:
				case <-ctx.Done():
				}
			}
		})
		if err != nil {
			select {
			case out <- agent.StreamChunk{Err: err}:
			case <-ctx.Done():
			}
			return
		}

		a.emitter.EmitSent(agent.Message{
			Role:         agent.RoleAssistant,
			Content:      sb.String(),
			Model:        model,
			Usage:        convertUsage(usage),
			ResponseTime: time.Since(start),
		})
	}()
	return out, nil
}

func convertUsage(u *apiUsage) *agent.Usage {
	if u == nil {
		return nil
	}
	return &agent.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		CostUSD:      u.Cost,
	}
}

var _ agent.Handle = (*ChatAgent)(nil)
