package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// lruItem is the internal structure stored in the linked list.
type lruItem[V any] struct {
	key   string
	value V
}

// LRUStorage is a generic, thread-safe, in-memory Storage with a fixed size
// and a Least Recently Used (LRU) eviction policy. An evicted key is simply no
// longer contained, so a Cache on top of it fetches the value again.
type LRUStorage[V any] struct {
	maxSize int

	mu    sync.Mutex
	ll    *list.List               // Used to track the order of items (recency).
	items map[string]*list.Element // Used for fast key lookups.
}

// NewLRUStorage creates a new size-limited LRU storage.
// maxSize is the maximum number of values to hold and must be > 0.
func NewLRUStorage[V any](maxSize int) (*LRUStorage[V], error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("maxSize must be greater than 0")
	}
	return &LRUStorage[V]{
		maxSize: maxSize,
		ll:      list.New(),
		items:   make(map[string]*list.Element),
	}, nil
}

// Store adds or replaces the value for key, making it the most recently used,
// and evicts the least recently used value if the storage is over capacity.
func (s *LRUStorage[V]) Store(_ context.Context, key string, value V) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.items[key]; ok {
		elem.Value.(*lruItem[V]).value = value
		s.ll.MoveToFront(elem)
		return nil
	}

	s.items[key] = s.ll.PushFront(&lruItem[V]{key: key, value: value})
	if s.ll.Len() > s.maxSize {
		s.evict()
	}
	return nil
}

// Contains reports whether key holds a value. It does not affect recency.
func (s *LRUStorage[V]) Contains(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	return ok, nil
}

// Get retrieves the value for key and marks it most recently used.
func (s *LRUStorage[V]) Get(_ context.Context, key string) (V, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.items[key]
	if !ok {
		var zero V
		return zero, fmt.Errorf("key '%s': %w", key, ErrNotStored)
	}
	s.ll.MoveToFront(elem)
	return elem.Value.(*lruItem[V]).value, nil
}

// Remove deletes the value for key.
func (s *LRUStorage[V]) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, ok := s.items[key]; ok {
		s.ll.Remove(elem)
		delete(s.items, key)
	}
	return nil
}

// Clear deletes every value.
func (s *LRUStorage[V]) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ll.Init()
	s.items = make(map[string]*list.Element)
	return nil
}

// evict removes the least recently used item.
// This method is unexported and must be called within a locked mutex.
func (s *LRUStorage[V]) evict() {
	elementToRemove := s.ll.Back()
	if elementToRemove != nil {
		itemToRemove := s.ll.Remove(elementToRemove).(*lruItem[V])
		delete(s.items, itemToRemove.key)
	}
}
