package commands

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gpufleet/fleet/internal/protocol"
)

// MemoryStore is an in-memory Store with the same transition contract
// as the Postgres implementation. The mutex stands in for the row lock:
// claim and report are single critical sections.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	cmds   map[int64]*Command
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cmds: make(map[int64]*Command)}
}

func (s *MemoryStore) Create(_ context.Context, agentID, text string) (*Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := time.Now().UTC()
	cmd := &Command{
		ID:        s.nextID,
		AgentID:   agentID,
		Text:      text,
		Status:    protocol.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.cmds[cmd.ID] = cmd
	copied := *cmd
	return &copied, nil
}

func (s *MemoryStore) Get(_ context.Context, commandID int64) (*Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd, exists := s.cmds[commandID]
	if !exists {
		return nil, ErrCommandNotFound
	}
	copied := *cmd
	return &copied, nil
}

func (s *MemoryStore) ClaimNext(_ context.Context, agentID string) (*Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *Command
	for _, cmd := range s.cmds {
		if cmd.AgentID != agentID || cmd.Status != protocol.StatusPending {
			continue
		}
		if oldest == nil || cmd.ID < oldest.ID {
			oldest = cmd
		}
	}
	if oldest == nil {
		return nil, ErrNoPendingCommand
	}

	oldest.Status = protocol.StatusRunning
	oldest.UpdatedAt = time.Now().UTC()
	copied := *oldest
	return &copied, nil
}

func (s *MemoryStore) UpdateReport(_ context.Context, commandID int64, status, output string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd, exists := s.cmds[commandID]
	if !exists {
		return ErrCommandNotFound
	}
	if cmd.Status != protocol.StatusRunning && cmd.Status != protocol.StatusStopping {
		return nil
	}
	if !(status == protocol.StatusRunning && cmd.Status == protocol.StatusStopping) {
		cmd.Status = status
	}
	cmd.Output = output
	cmd.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) RequestStop(_ context.Context, commandID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd, exists := s.cmds[commandID]
	if !exists {
		return ErrCommandNotFound
	}
	if cmd.Status != protocol.StatusRunning {
		return ErrNotRunning
	}
	cmd.Status = protocol.StatusStopping
	cmd.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListByAgent(_ context.Context, agentID string, limit int) ([]Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []Command
	for _, cmd := range s.cmds {
		if cmd.AgentID == agentID {
			result = append(result, *cmd)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// DeleteForAgent removes all commands owned by agentID, mirroring the
// foreign-key cascade the Postgres schema provides.
func (s *MemoryStore) DeleteForAgent(_ context.Context, agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cmd := range s.cmds {
		if cmd.AgentID == agentID {
			delete(s.cmds, id)
		}
	}
}
