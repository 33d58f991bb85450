package registry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and single-process
// deployments without Postgres.
type MemoryStore struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{agents: make(map[string]Agent)}
}

func (s *MemoryStore) Create(_ context.Context, agent Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[agent.ID]; exists {
		return ErrAgentExists
	}
	s.agents[agent.ID] = agent
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, agentID string) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, exists := s.agents[agentID]
	if !exists {
		return nil, ErrAgentNotFound
	}
	return &a, nil
}

func (s *MemoryStore) GetByCredential(_ context.Context, credential string) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.agents {
		if a.Credential == credential {
			copied := a
			return &copied, nil
		}
	}
	return nil, ErrInvalidCredential
}

func (s *MemoryStore) TouchLastContact(_ context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, exists := s.agents[agentID]
	if !exists {
		return ErrAgentNotFound
	}
	a.LastContact = time.Now().UTC()
	s.agents[agentID] = a
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[agentID]; !exists {
		return ErrAgentNotFound
	}
	delete(s.agents, agentID)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]Agent, 0, len(s.agents))
	for _, a := range s.agents {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
