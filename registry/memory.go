package registry

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store.
// Suitable for testing and single-node deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	agents map[string]*AgentRecord
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents: make(map[string]*AgentRecord),
	}
}

// Put inserts or replaces a record.
func (s *MemoryStore) Put(ctx context.Context, rec *AgentRecord) error {
	if err := ValidateRecord(rec); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.agents[rec.AgentID] = rec.Clone()
	return nil
}

// Get retrieves a record by agent ID.
func (s *MemoryStore) Get(ctx context.Context, agentID string) (*AgentRecord, error) {
	if agentID == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	rec, ok := s.agents[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Delete removes a record.
func (s *MemoryStore) Delete(ctx context.Context, agentID string) error {
	if agentID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, ok := s.agents[agentID]; !ok {
		return ErrNotFound
	}
	delete(s.agents, agentID)
	return nil
}

// Query returns matching records ordered by agent ID.
func (s *MemoryStore) Query(ctx context.Context, q Query) ([]*AgentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	all := make([]*AgentRecord, 0, len(s.agents))
	for _, rec := range s.agents {
		all = append(all, rec.Clone())
	}
	s.mu.RUnlock()

	return SelectPage(all, q), nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.agents)
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
