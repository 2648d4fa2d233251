package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotStored is returned by Storage implementations when Get is called for a
// key that holds no value.
var ErrNotStored = errors.New("no value stored for key")

// InMemoryStorage is a generic, thread-safe, in-memory Storage implementation.
type InMemoryStorage[V any] struct {
	mu   sync.RWMutex
	data map[string]V
}

// NewInMemoryStorage creates an empty in-memory storage.
func NewInMemoryStorage[V any]() *InMemoryStorage[V] {
	return &InMemoryStorage[V]{
		data: make(map[string]V),
	}
}

// Store adds or replaces the value for key.
func (s *InMemoryStorage[V]) Store(_ context.Context, key string, value V) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Contains reports whether key holds a value.
func (s *InMemoryStorage[V]) Contains(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok, nil
}

// Get retrieves the value for key.
func (s *InMemoryStorage[V]) Get(_ context.Context, key string) (V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		var zero V
		return zero, fmt.Errorf("key '%s': %w", key, ErrNotStored)
	}
	return value, nil
}

// Remove deletes the value for key.
func (s *InMemoryStorage[V]) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Clear deletes every value.
func (s *InMemoryStorage[V]) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]V)
	return nil
}

// Len returns the number of stored values.
func (s *InMemoryStorage[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
