package repository

import (
	"context"
	"sync"

	"assistant-web/internal/domain"
)

// MemoryStore keeps browser sessions in process memory. Sessions are lost on
// restart, which matches a single-instance HTTP deployment.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]domain.Session)}
}

func (m *MemoryStore) Load(_ context.Context, browserID string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[browserID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, browserID string, s *domain.Session) error {
	if s == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[browserID] = *s
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, browserID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, browserID)
	return nil
}
