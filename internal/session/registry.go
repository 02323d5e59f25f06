package session

import (
	"log/slog"
	"sync"
)

// Registry tracks live sessions, keyed by session id. Lifecycle is tied
// to the connection: the gateway adds a session on accept and removes it
// when the connection ends.
type Registry struct {
	mu     sync.RWMutex
	active map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]*Session),
	}
}

// Add registers a live session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[s.ID()] = s
	slog.Info("[REGISTRY] session registered", "session_id", s.ID(), "active", len(r.active))
}

// Remove unregisters a session. The pointer guard keeps a stale remove
// from clobbering a newer session under the same id.
func (r *Registry) Remove(id string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.active[id]; ok && current == s {
		delete(r.active, id)
		slog.Info("[REGISTRY] session unregistered", "session_id", id, "active", len(r.active))
	}
}

// Get returns the live session with the given id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[id]
}

// Len reports how many sessions are live.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// CloseAll tears down every live session. Used during server shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.active))
	for _, s := range r.active {
		sessions = append(sessions, s)
	}
	r.active = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	if len(sessions) > 0 {
		slog.Info("[REGISTRY] closed all sessions", "count", len(sessions))
	}
}
