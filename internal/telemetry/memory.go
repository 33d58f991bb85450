package telemetry

import (
	"context"
	"sort"
	"sync"
	"time"
)

type readingKey struct {
	agentID     string
	deviceIndex int
	timestamp   time.Time
}

// MemoryStore is an in-memory Store used by tests.
type MemoryStore struct {
	mu       sync.RWMutex
	readings map[readingKey]Reading
	latest   map[string]Snapshot
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		readings: make(map[readingKey]Reading),
		latest:   make(map[string]Snapshot),
	}
}

func (s *MemoryStore) InsertReadings(_ context.Context, readings []Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range readings {
		key := readingKey{r.AgentID, r.DeviceIndex, r.Timestamp}
		if _, exists := s.readings[key]; exists {
			continue
		}
		s.readings[key] = r
	}
	return nil
}

func (s *MemoryStore) SetLatest(_ context.Context, snapshot Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[snapshot.AgentID] = snapshot
	return nil
}

func (s *MemoryStore) GetLatest(_ context.Context, agentID string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, exists := s.latest[agentID]
	if !exists {
		return nil, ErrNoSnapshot
	}
	return &snapshot, nil
}

func (s *MemoryStore) Range(_ context.Context, agentID string, deviceIndex int, from, to time.Time) ([]Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []Reading
	for key, r := range s.readings {
		if key.agentID != agentID || key.deviceIndex != deviceIndex {
			continue
		}
		if key.timestamp.Before(from) || key.timestamp.After(to) {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.Before(result[j].Timestamp) })
	return result, nil
}
