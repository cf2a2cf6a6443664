// Package capture bridges an agent handle's event notifications into the
// session store for the duration of a single run or stream call.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phil65/aistack/agent"
	"github.com/phil65/aistack/session"
)

// ErrAlreadyCapturing is returned when a capture is requested for an
// agent that already has one in flight. Re-entrant capture is a
// programming error; failing fast prevents double-registered listeners.
var ErrAlreadyCapturing = errors.New("capture already active for agent")

// Bridge subscribes to a handle's output and tool events and appends
// captured messages into the session store. Subscriptions exist only for
// the duration of one WithCapture call and are cancelled on every exit
// path.
type Bridge struct {
	store  *session.Store
	logger *slog.Logger
	active map[agent.Identity]struct{}
	mu     sync.Mutex
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithLogger sets the bridge logger.
func WithLogger(l *slog.Logger) BridgeOption {
	return func(b *Bridge) { b.logger = l }
}

// NewBridge creates a bridge that captures into store.
func NewBridge(store *session.Store, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		store:  store,
		logger: slog.New(slog.DiscardHandler),
		active: make(map[agent.Identity]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithCapture registers message and tool listeners on the handle,
// invokes body, and cancels the listeners exactly once before returning
// or propagating — whether body returns normally, fails, panics, or is
// cancelled. A second WithCapture for the same agent while one is in
// flight fails with ErrAlreadyCapturing without touching the handle.
func (b *Bridge) WithCapture(id agent.Identity, h agent.Handle, body func() error) error {
	if err := b.begin(id); err != nil {
		return err
	}

	pending := &pendingTools{}
	subSent := h.OnMessageSent(func(m agent.Message) { b.deliver(id, pending, m) })
	subReceived := h.OnMessageReceived(func(m agent.Message) { b.deliver(id, pending, m) })
	subTool := h.OnToolInvoked(pending.add)

	defer func() {
		subSent.Cancel()
		subReceived.Cancel()
		subTool.Cancel()
		b.end(id)
	}()

	return body()
}

func (b *Bridge) begin(id agent.Identity) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.active[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyCapturing, id)
	}
	b.active[id] = struct{}{}
	return nil
}

func (b *Bridge) end(id agent.Identity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.active, id)
}

// deliver appends a captured message. Assistant messages that carry no
// tool calls of their own get the tool calls observed so far in this
// capture scope attached. The pending list is not drained, so a mirror
// notification of the same message assembles identically and the store's
// dedup collapses it.
func (b *Bridge) deliver(id agent.Identity, pending *pendingTools, m agent.Message) {
	if m.Role == agent.RoleAssistant && len(m.ToolCalls) == 0 {
		if calls := pending.snapshot(); len(calls) > 0 {
			m.ToolCalls = calls
		}
	}
	if b.store.Append(id, m) {
		b.logger.Debug("message captured",
			"agent", id,
			"role", m.Role,
			"toolCalls", len(m.ToolCalls),
		)
	}
}

// pendingTools accumulates tool calls reported during one capture scope.
type pendingTools struct {
	mu    sync.Mutex
	calls []agent.ToolCallRecord
}

func (p *pendingTools) add(tc agent.ToolCallRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, tc)
}

func (p *pendingTools) snapshot() []agent.ToolCallRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]agent.ToolCallRecord(nil), p.calls...)
}
