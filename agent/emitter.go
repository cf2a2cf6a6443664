package agent

import (
	"slices"
	"sync"
)

// Emitter is a mutex-guarded listener registry that concrete handles can
// embed to satisfy the Handle event-registration contract. Registration
// returns a Subscription whose Cancel is idempotent.
//
// Handlers are invoked synchronously on the emitting flow, in
// registration order, without the registry lock held.
type Emitter struct {
	sent     map[int]MessageHandler
	received map[int]MessageHandler
	tools    map[int]ToolHandler
	mu       sync.Mutex
	nextID   int
}

type subscription struct {
	remove func()
	once   sync.Once
}

func (s *subscription) Cancel() {
	s.once.Do(s.remove)
}

// OnMessageSent registers a handler for emitted messages.
func (e *Emitter) OnMessageSent(fn MessageHandler) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sent == nil {
		e.sent = make(map[int]MessageHandler)
	}
	id := e.nextID
	e.nextID++
	e.sent[id] = fn
	return &subscription{remove: func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.sent, id)
	}}
}

// OnMessageReceived registers a handler for received messages.
func (e *Emitter) OnMessageReceived(fn MessageHandler) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.received == nil {
		e.received = make(map[int]MessageHandler)
	}
	id := e.nextID
	e.nextID++
	e.received[id] = fn
	return &subscription{remove: func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.received, id)
	}}
}

// OnToolInvoked registers a handler for tool invocations.
func (e *Emitter) OnToolInvoked(fn ToolHandler) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tools == nil {
		e.tools = make(map[int]ToolHandler)
	}
	id := e.nextID
	e.nextID++
	e.tools[id] = fn
	return &subscription{remove: func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.tools, id)
	}}
}

// EmitSent delivers a message to all message-sent handlers.
func (e *Emitter) EmitSent(m Message) {
	for _, fn := range snapshot(&e.mu, e.sent) {
		fn(m)
	}
}

// EmitReceived delivers a message to all message-received handlers.
func (e *Emitter) EmitReceived(m Message) {
	for _, fn := range snapshot(&e.mu, e.received) {
		fn(m)
	}
}

// EmitTool delivers a tool-call record to all tool handlers.
func (e *Emitter) EmitTool(tc ToolCallRecord) {
	for _, fn := range snapshot(&e.mu, e.tools) {
		fn(tc)
	}
}

// ListenerCount returns the number of currently registered handlers
// across all three event kinds.
func (e *Emitter) ListenerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sent) + len(e.received) + len(e.tools)
}

// snapshot copies the handlers in registration order so emission runs
// without the registry lock held.
func snapshot[V any](mu *sync.Mutex, m map[int]V) []V {
	mu.Lock()
	defer mu.Unlock()
	handlers := make([]V, 0, len(m))
	for _, id := range sortedIDs(m) {
		handlers = append(handlers, m[id])
	}
	return handlers
}

func sortedIDs[V any](m map[int]V) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
