package memstore

import (
	"context"
	"sync"

	"github.com/jrsteele09/rental-auth-client/storage"
)

var _ storage.Store = (*Store)(nil)

// Store is an in-memory storage.Store. Its contents live only as long as the
// process, which makes it the ephemeral ("this tab only") store.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		values: make(map[string]string),
	}
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	return value, ok, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

// Reset drops every key, the equivalent of closing the tab.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values = make(map[string]string)
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.values)
}
