// Package agenttest provides a scripted agent.Handle implementation for
// tests. It plays back a fixed sequence of text fragments and emits the
// same event notifications a real handle would.
package agenttest

import (
	"context"
	"strings"
	"sync"

	"github.com/phil65/aistack/agent"
)

// ScriptedHandle is a deterministic agent.Handle. Configure the exported
// fields before use; they must not be mutated once a call is in flight.
type ScriptedHandle struct {
	// Release, when non-nil, blocks Stream after delivering all fragments
	// until the channel is closed. Used to hold a call in flight.
	Release chan struct{}

	// StreamErr, when non-nil, is delivered as a failing chunk after
	// FailAfter fragments instead of completing the stream.
	StreamErr error

	// RunErr, when non-nil, is returned by Run immediately.
	RunErr error

	name  agent.Identity
	Model string

	// Fragments are the text increments of the scripted response. Their
	// concatenation is the final message content.
	Fragments []string

	// ToolCalls are reported through OnToolInvoked before the final
	// message, and are not attached to the final message itself.
	ToolCalls []agent.ToolCallRecord

	emitter agent.Emitter

	mu        sync.Mutex
	runCalls  int
	FailAfter int

	// MirrorFinal makes the handle emit the final message through both
	// the sent and received channels, like agents that notify a message
	// on both sides of a conversation.
	MirrorFinal bool
}

// New returns a scripted handle that responds with the given fragments.
func New(name agent.Identity, fragments ...string) *ScriptedHandle {
	return &ScriptedHandle{name: name, Fragments: fragments, Model: "scripted"}
}

func (h *ScriptedHandle) Identity() agent.Identity { return h.name }

func (h *ScriptedHandle) OnMessageSent(fn agent.MessageHandler) agent.Subscription {
	return h.emitter.OnMessageSent(fn)
}

func (h *ScriptedHandle) OnMessageReceived(fn agent.MessageHandler) agent.Subscription {
	return h.emitter.OnMessageReceived(fn)
}

func (h *ScriptedHandle) OnToolInvoked(fn agent.ToolHandler) agent.Subscription {
	return h.emitter.OnToolInvoked(fn)
}

// ListenerCount reports how many handlers are currently registered.
// Tests use it to assert that capture scopes unregister everything.
func (h *ScriptedHandle) ListenerCount() int { return h.emitter.ListenerCount() }

// RunCalls reports how many times Run or Stream was invoked.
func (h *ScriptedHandle) RunCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runCalls
}

func (h *ScriptedHandle) recordCall() {
	h.mu.Lock()
	h.runCalls++
	h.mu.Unlock()
}

func (h *ScriptedHandle) finalMessage() agent.Message {
	return agent.Message{
		Role:    agent.RoleAssistant,
		Content: strings.Join(h.Fragments, ""),
		Model:   h.Model,
	}
}

// Run plays the script synchronously and returns the final message.
func (h *ScriptedHandle) Run(ctx context.Context, prompt string) (agent.Message, error) {
	h.recordCall()
	if h.RunErr != nil {
		return agent.Message{}, h.RunErr
	}
	h.emitter.EmitReceived(agent.Message{Role: agent.RoleUser, Content: prompt})
	for _, tc := range h.ToolCalls {
		h.emitter.EmitTool(tc)
	}
	msg := h.finalMessage()
	h.emitter.EmitSent(msg)
	if h.MirrorFinal {
		h.emitter.EmitReceived(msg)
	}
	return msg, nil
}

// Stream plays the script as a fragment channel. The final message event
// is emitted before the channel closes, matching the Handle contract.
func (h *ScriptedHandle) Stream(ctx context.Context, prompt string) (<-chan agent.StreamChunk, error) {
	h.recordCall()
	out := make(chan agent.StreamChunk)
	go func() {
		defer close(out)
		h.emitter.EmitReceived(agent.Message{Role: agent.RoleUser, Content: prompt})
		for _, tc := range h.ToolCalls {
			h.emitter.EmitTool(tc)
		}
		var sb strings.Builder
		for i, frag := range h.Fragments {
			if h.StreamErr != nil && i == h.FailAfter {
				select {
				case out <- agent.StreamChunk{Err: h.StreamErr}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case out <- agent.StreamChunk{Text: frag}:
				sb.WriteString(frag)
			case <-ctx.Done():
				return
			}
		}
		if h.StreamErr != nil && h.FailAfter >= len(h.Fragments) {
			select {
			case out <- agent.StreamChunk{Err: h.StreamErr}:
			case <-ctx.Done():
			}
			return
		}
		if h.Release != nil {
			select {
			case <-h.Release:
			case <-ctx.Done():
				return
			}
		}
		msg := agent.Message{Role: agent.RoleAssistant, Content: sb.String(), Model: h.Model}
		h.emitter.EmitSent(msg)
		if h.MirrorFinal {
			h.emitter.EmitReceived(msg)
		}
	}()
	return out, nil
}

var _ agent.Handle = (*ScriptedHandle)(nil)
