package users

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store used by tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]User
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User)}
}

func (s *MemoryStore) Create(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.Username]; exists {
		return ErrUsernameExists
	}
	s.users[user.Username] = user
	return nil
}

func (s *MemoryStore) GetByUsername(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, exists := s.users[username]
	if !exists {
		return nil, ErrUserNotFound
	}
	return &user, nil
}
