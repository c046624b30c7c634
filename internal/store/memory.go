package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process DocumentStore used in tests and local
// development without external services.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte

	// SetErr, when non-nil, is returned by every Set. Tests use it to
	// exercise persistence-failure paths.
	SetErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.docs[path]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryStore) Set(ctx context.Context, path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SetErr != nil {
		return s.SetErr
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	s.docs[path] = stored
	return nil
}

// Len returns the number of documents currently stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
