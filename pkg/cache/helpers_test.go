package cache_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/illmade-knight/go-accesscache/pkg/accesslog"
	"github.com/illmade-knight/go-accesscache/pkg/cache"
)

// mockFetcher is a test double for the cache.Fetcher interface.
type mockFetcher[V any] struct {
	FetchFunc func(ctx context.Context, key string) (V, error)
	calls     atomic.Int32
}

func (m *mockFetcher[V]) Fetch(ctx context.Context, key string) (V, error) {
	m.calls.Add(1)
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, key)
	}
	var zero V
	return zero, fmt.Errorf("mock fetcher not implemented")
}

// spyStorage wraps an InMemoryStorage, counting calls and optionally failing them.
type spyStorage[V any] struct {
	*cache.InMemoryStorage[V]
	StoreErr    error
	ContainsErr error
	// ClearFailures makes the next n Clear calls fail with ClearErr.
	ClearErr      error
	ClearFailures atomic.Int32
	stores        atomic.Int32
	gets          atomic.Int32
	clears        atomic.Int32
}

func newSpyStorage[V any]() *spyStorage[V] {
	return &spyStorage[V]{InMemoryStorage: cache.NewInMemoryStorage[V]()}
}

func (s *spyStorage[V]) Store(ctx context.Context, key string, value V) error {
	s.stores.Add(1)
	if s.StoreErr != nil {
		return s.StoreErr
	}
	return s.InMemoryStorage.Store(ctx, key, value)
}

func (s *spyStorage[V]) Contains(ctx context.Context, key string) (bool, error) {
	if s.ContainsErr != nil {
		return false, s.ContainsErr
	}
	return s.InMemoryStorage.Contains(ctx, key)
}

func (s *spyStorage[V]) Clear(ctx context.Context) error {
	s.clears.Add(1)
	if s.ClearFailures.Add(-1) >= 0 {
		return s.ClearErr
	}
	return s.InMemoryStorage.Clear(ctx)
}

func (s *spyStorage[V]) Get(ctx context.Context, key string) (V, error) {
	s.gets.Add(1)
	return s.InMemoryStorage.Get(ctx, key)
}

// spyLog wraps an InMemoryLog, counting queries, records and closes.
type spyLog struct {
	*accesslog.InMemoryLog
	RecordErr error
	// CloseFailures makes the next n Close calls fail with CloseErr.
	CloseErr      error
	CloseFailures atomic.Int32
	lasts         atomic.Int32
	records       atomic.Int32
	clears        atomic.Int32
	closes        atomic.Int32
}

func newSpyLog() *spyLog {
	return &spyLog{InMemoryLog: accesslog.NewInMemoryLog()}
}

func (l *spyLog) Record(ctx context.Context, access accesslog.Access) error {
	if l.RecordErr != nil {
		return l.RecordErr
	}
	l.records.Add(1)
	return l.InMemoryLog.Record(ctx, access)
}

func (l *spyLog) Last(ctx context.Context, key string, accessType accesslog.AccessType) (time.Duration, bool, error) {
	l.lasts.Add(1)
	return l.InMemoryLog.Last(ctx, key, accessType)
}

func (l *spyLog) Clear(ctx context.Context) error {
	l.clears.Add(1)
	return l.InMemoryLog.Clear(ctx)
}

func (l *spyLog) Close() error {
	l.closes.Add(1)
	if l.CloseFailures.Add(-1) >= 0 {
		return l.CloseErr
	}
	return l.InMemoryLog.Close()
}

// manualTime is an ElapsedTimeProvider whose instant is set by the test.
type manualTime struct {
	now atomic.Int64
}

func (m *manualTime) Elapsed() time.Duration { return time.Duration(m.now.Load()) }

func (m *manualTime) Set(d time.Duration) { m.now.Store(int64(d)) }
