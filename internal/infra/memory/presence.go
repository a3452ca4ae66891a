package memory

import (
	"context"
	"sort"
	"sync"
)

// PresenceStore tracks live room connections in process memory.
type PresenceStore struct {
	mu     sync.RWMutex
	online map[string]map[string]int
}

func NewPresenceStore() *PresenceStore {
	return &PresenceStore{online: make(map[string]map[string]int)}
}

// Touch registers one more connection for the participant.
func (s *PresenceStore) Touch(_ context.Context, roomID, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.online[roomID] == nil {
		s.online[roomID] = make(map[string]int)
	}
	s.online[roomID][participantID]++
	return nil
}

// Drop releases one connection; the participant goes offline with its last one.
func (s *PresenceStore) Drop(_ context.Context, roomID, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conns, ok := s.online[roomID]
	if !ok {
		return nil
	}
	conns[participantID]--
	if conns[participantID] <= 0 {
		delete(conns, participantID)
	}
	if len(conns) == 0 {
		delete(s.online, roomID)
	}
	return nil
}

func (s *PresenceStore) Online(_ context.Context, roomID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.online[roomID]))
	for id := range s.online[roomID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
