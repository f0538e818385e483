package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore implements Store with in-process state. Suitable for tests
// and ephemeral deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Save implements Store.
func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	if s == nil {
		return fmt.Errorf("session cannot be nil")
	}
	if s.ID == "" {
		return fmt.Errorf("session id cannot be empty")
	}

	m.mu.Lock()
	m.sessions[s.ID] = s.Clone()
	m.mu.Unlock()
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

// ListDue implements Store.
func (m *MemoryStore) ListDue(ctx context.Context, before time.Time) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var due []*Session
	for _, s := range m.sessions {
		if s.Status == StatusActive && !s.EndsAt.IsZero() && s.EndsAt.Before(before) {
			due = append(due, s.Clone())
		}
	}
	return due, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	return nil
}
