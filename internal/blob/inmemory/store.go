package inmemory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dvloznov/spendiq/internal/blob"
)

const scheme = "mem://"

// Store keeps uploads in memory. It is meant for tests and single-process development.
type Store struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewStore creates an empty in-memory blob store.
func NewStore() *Store {
	return &Store{objects: make(map[string][]byte)}
}

// Put implements blob.Store.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("Put: key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)

	return scheme + key, nil
}

// Get implements blob.Store.
func (s *Store) Get(ctx context.Context, uri string) ([]byte, error) {
	key, err := parseURI(uri)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("Get: object %s not found", uri)
	}
	return append([]byte(nil), data...), nil
}

// Delete implements blob.Store.
func (s *Store) Delete(ctx context.Context, uri string) error {
	key, err := parseURI(uri)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)

	return nil
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func parseURI(uri string) (string, error) {
	if !strings.HasPrefix(uri, scheme) {
		return "", fmt.Errorf("invalid in-memory blob URI: %s", uri)
	}
	return strings.TrimPrefix(uri, scheme), nil
}

var _ blob.Store = (*Store)(nil)
