package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session scopes all agent state for one user interaction lifetime. It
// is created on first access and torn down when the session ends;
// nothing survives the process.
type Session struct {
	CreatedAt time.Time
	store     *Store
	ID        string
}

// New creates a session with a fresh store.
func New(opts ...StoreOption) *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		store:     NewStore(opts...),
	}
}

// Store returns the session's message store.
func (s *Session) Store() *Store { return s.store }

// Manager hands out sessions keyed by an external session ID, creating
// them on first access.
type Manager struct {
	sessions map[string]*Session
	opts     []StoreOption
	mu       sync.Mutex
}

// NewManager creates a session manager. Store options apply to every
// session it creates.
func NewManager(opts ...StoreOption) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		opts:     opts,
	}
}

// Get returns the session for key, creating it if this is the first
// access.
func (m *Manager) Get(key string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s
	}
	s := New(m.opts...)
	m.sessions[key] = s
	return s
}

// End discards the session for key. Subsequent Get calls create a fresh
// one.
func (m *Manager) End(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
