// Package agent defines the capability contract the orchestration layer
// requires of a conversational agent, together with the message types
// that flow through it. Concrete handles (API-backed agents, scripted
// test doubles) live elsewhere; everything here is provider-agnostic.
package agent

import (
	"context"
	"reflect"
	"time"
)

// Identity names a participating agent. It is unique within a session.
type Identity string

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Usage tracks token consumption and cost for a single message.
type Usage struct {
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// ToolCallRecord describes one tool invocation an agent reported while
// producing a message.
type ToolCallRecord struct {
	Args     map[string]interface{}
	Name     string
	Result   string
	Err      string
	Duration time.Duration
}

// Message is a single entry in an agent's message log. Messages are
// immutable once appended to a log.
type Message struct {
	Usage        *Usage
	Role         Role
	Content      string
	Model        string
	ToolCalls    []ToolCallRecord
	ResponseTime time.Duration
}

// Equivalent reports whether two messages carry the same logical content:
// same role, same content, same tool calls. Transient fields (model,
// usage, response time) are ignored so that mirror notifications of the
// same message compare equal. This is the single dedup predicate used by
// the session store.
func (m Message) Equivalent(o Message) bool {
	if m.Role != o.Role || m.Content != o.Content {
		return false
	}
	if len(m.ToolCalls) != len(o.ToolCalls) {
		return false
	}
	for i := range m.ToolCalls {
		if !m.ToolCalls[i].equivalent(o.ToolCalls[i]) {
			return false
		}
	}
	return true
}

func (c ToolCallRecord) equivalent(o ToolCallRecord) bool {
	return c.Name == o.Name &&
		c.Result == o.Result &&
		c.Err == o.Err &&
		reflect.DeepEqual(c.Args, o.Args)
}

// StreamChunk is one increment of a streaming generation. Exactly one of
// Text or Err is set; a chunk with Err set is the last chunk delivered.
type StreamChunk struct {
	Err  error
	Text string
}

// MessageHandler receives message notifications from a handle.
type MessageHandler func(Message)

// ToolHandler receives tool-invocation notifications from a handle.
type ToolHandler func(ToolCallRecord)

// Subscription binds one registered handler to a handle. Cancel removes
// the handler and is safe to call more than once.
type Subscription interface {
	Cancel()
}

// Handle is the capability set the orchestration layer depends on to run
// or stream prompts and observe an agent's output. Handles are expected
// to emit the completed message through OnMessageSent/OnMessageReceived
// once a Run or Stream call finishes; the orchestration layer never
// reassembles final messages itself.
type Handle interface {
	// Identity returns the agent's stable name.
	Identity() Identity

	// Run executes a single prompt and returns the final message.
	Run(ctx context.Context, prompt string) (Message, error)

	// Stream executes a single prompt, delivering text fragments in
	// arrival order. The channel is closed once the generation finishes
	// or fails; a failure is delivered as the final chunk's Err.
	Stream(ctx context.Context, prompt string) (<-chan StreamChunk, error)

	// OnMessageSent registers a handler for messages the agent emits.
	OnMessageSent(MessageHandler) Subscription

	// OnMessageReceived registers a handler for messages the agent
	// receives. Some agents mirror the same logical message through both
	// channels; the session store's dedup collapses those.
	OnMessageReceived(MessageHandler) Subscription

	// OnToolInvoked registers a handler for tool invocations.
	OnToolInvoked(ToolHandler) Subscription
}
