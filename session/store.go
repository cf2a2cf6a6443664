// Package session owns per-agent message logs and the extracted ticket
// record for one user session. All state is in memory and scoped to the
// session lifetime.
package session

import (
	"log/slog"
	"sync"

	"github.com/phil65/aistack/agent"
	"github.com/phil65/aistack/ticket"
)

// Store is the single source of truth for a session's conversation
// state: ordered message logs keyed by agent identity, plus the most
// recently extracted ticket. All operations are synchronous and safe for
// concurrent use; appends to different agents' logs never contend on
// anything but the store lock itself.
type Store struct {
	logs            map[agent.Identity][]agent.Message
	ticket          *ticket.Record
	logger          *slog.Logger
	mu              sync.RWMutex
	allowDuplicates bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger. Dropped duplicates are reported at
// debug level.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// AllowDuplicates disables dedup-on-append. Value-equal dedup can
// coalesce two legitimately identical messages sent back to back, so the
// behavior is switchable rather than baked in.
func AllowDuplicates() StoreOption {
	return func(s *Store) { s.allowDuplicates = true }
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		logs:   make(map[agent.Identity][]agent.Message),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds a message to the agent's log unless an equivalent message
// is already present. It reports whether the message was stored.
func (s *Store) Append(id agent.Identity, msg agent.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.allowDuplicates {
		for _, existing := range s.logs[id] {
			if existing.Equivalent(msg) {
				s.logger.Debug("duplicate message dropped",
					"agent", id,
					"role", msg.Role,
				)
				return false
			}
		}
	}

	s.logs[id] = append(s.logs[id], msg)
	return true
}

// Messages returns a copy of the agent's log in insertion order. An
// agent with no messages yet has an empty log.
func (s *Store) Messages(id agent.Identity) []agent.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]agent.Message(nil), s.logs[id]...)
}

// Len returns the number of messages in the agent's log.
func (s *Store) Len(id agent.Identity) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.logs[id])
}

// Clear resets the agent's log to empty. Used on an explicit "new
// conversation" action.
func (s *Store) Clear(id agent.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, id)
}

// SetTicket replaces the stored ticket record atomically.
func (s *Store) SetTicket(rec ticket.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticket = &rec
}

// Ticket returns the stored ticket record, if one has been extracted.
func (s *Store) Ticket() (ticket.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ticket == nil {
		return ticket.Record{}, false
	}
	return *s.ticket, true
}
