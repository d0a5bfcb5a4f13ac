package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound = errors.New("interview not found")
)

// MemoryStore keeps interviews in process memory
type MemoryStore struct {
	mu         sync.RWMutex
	interviews map[string]Interview
	messages   map[string][]Message
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		interviews: make(map[string]Interview),
		messages:   make(map[string][]Message),
	}
}

func (s *MemoryStore) CreateInterview(ctx context.Context, iv *Interview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interviews[iv.ID] = *iv
	return nil
}

func (s *MemoryStore) GetInterview(ctx context.Context, id string) (*Interview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	iv, ok := s.interviews[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &iv, nil
}

func (s *MemoryStore) UpdateInterview(ctx context.Context, iv *Interview) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.interviews[iv.ID]; !ok {
		return ErrNotFound
	}
	s.interviews[iv.ID] = *iv
	return nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.interviews[msg.InterviewID]; !ok {
		return ErrNotFound
	}
	s.messages[msg.InterviewID] = append(s.messages[msg.InterviewID], *msg)
	return nil
}

func (s *MemoryStore) ListMessages(ctx context.Context, interviewID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.messages[interviewID]
	out := make([]*Message, len(stored))
	for i := range stored {
		m := stored[i]
		out[i] = &m
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *MemoryStore) AbandonOpen(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, iv := range s.interviews {
		if iv.Active() {
			iv.Finish(StatusAbandoned, now)
			s.interviews[id] = iv
			n++
		}
	}
	return n, nil
}
