package quota

import (
	"context"
	"sync"
)

// MemoryStore keeps attempt counts in process memory
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[string]int)}
}

func key(userID, day string) string {
	return userID + "/" + day
}

func (s *MemoryStore) Count(ctx context.Context, userID, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key(userID, day)], nil
}

func (s *MemoryStore) Increment(ctx context.Context, userID, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(userID, day)
	s.counts[k]++
	return s.counts[k], nil
}

func (s *MemoryStore) Decrement(ctx context.Context, userID, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k := key(userID, day); s.counts[k] > 0 {
		s.counts[k]--
	}
	return nil
}

func (s *MemoryStore) Reset(ctx context.Context, userID, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.counts, key(userID, day))
	return nil
}
