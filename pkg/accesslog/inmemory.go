package accesslog

import (
	"context"
	"sync"
	"time"
)

type accessKey struct {
	key        string
	accessType AccessType
}

// InMemoryLog is a thread-safe, in-memory Log. It does not survive restarts and
// is intended for tests and short-lived caches.
type InMemoryLog struct {
	mu     sync.RWMutex
	latest map[accessKey]time.Duration
}

// NewInMemoryLog creates an empty in-memory access log.
func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{
		latest: make(map[accessKey]time.Duration),
	}
}

// Record stores the access, replacing any earlier one for the same key and type.
func (l *InMemoryLog) Record(_ context.Context, access Access) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.latest[accessKey{key: access.Key, accessType: access.Type}] = access.Timestamp
	return nil
}

// Last returns the latest timestamp for key and type.
func (l *InMemoryLog) Last(_ context.Context, key string, accessType AccessType) (time.Duration, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ts, ok := l.latest[accessKey{key: key, accessType: accessType}]
	return ts, ok, nil
}

// Clear removes every access.
func (l *InMemoryLog) Clear(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.latest = make(map[accessKey]time.Duration)
	return nil
}

// Len reports how many (key, type) pairs are tracked.
func (l *InMemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.latest)
}

// Close is a no-op for the in-memory implementation.
func (l *InMemoryLog) Close() error {
	return nil
}
