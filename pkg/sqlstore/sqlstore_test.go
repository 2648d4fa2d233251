package sqlstore_test

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-accesscache/pkg/accesslog"
	"github.com/illmade-knight/go-accesscache/pkg/cache"
	"github.com/illmade-knight/go-accesscache/pkg/sqlstore"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func openTestDB(t *testing.T, path string) *sqlstore.Database {
	t.Helper()
	db, err := sqlstore.Open(context.Background(), &sqlstore.Config{Path: path, Namespace: "accounts"}, zerolog.Nop())
	require.NoError(t, err)
	return db
}

func TestOpen_RejectsInvalidNamespace(t *testing.T) {
	for _, ns := range []string{"", "1accounts", "accounts; DROP TABLE x", "home-timeline"} {
		_, err := sqlstore.Open(context.Background(), &sqlstore.Config{Namespace: ns}, zerolog.Nop())
		assert.Error(t, err, "namespace %q should be rejected", ns)
	}
}

func TestStorage(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, "")
	t.Cleanup(func() { _ = db.Close() })
	s := sqlstore.NewStorage[account](db)

	t.Run("Store, Contains, Get and Remove", func(t *testing.T) {
		ok, err := s.Contains(ctx, "1")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = s.Get(ctx, "1")
		assert.ErrorIs(t, err, cache.ErrNotStored)

		require.NoError(t, s.Store(ctx, "1", account{ID: "1", Username: "gargron"}))
		require.NoError(t, s.Store(ctx, "1", account{ID: "1", Username: "Gargron"}))

		ok, err = s.Contains(ctx, "1")
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := s.Get(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, account{ID: "1", Username: "Gargron"}, got, "Store replaces the prior value")

		require.NoError(t, s.Remove(ctx, "1"))
		require.NoError(t, s.Remove(ctx, "1"), "Removing a missing key is a no-op")
		ok, err = s.Contains(ctx, "1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, s.Store(ctx, "a", account{ID: "a"}))
		require.NoError(t, s.Store(ctx, "b", account{ID: "b"}))
		require.NoError(t, s.Clear(ctx))

		for _, k := range []string{"a", "b"} {
			ok, err := s.Contains(ctx, k)
			require.NoError(t, err)
			assert.False(t, ok)
		}
	})
}

func TestAccessLog(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, "")
	log := db.AccessLog()
	t.Cleanup(func() { _ = log.Close() })

	_, ok, err := log.Last(ctx, "k", accesslog.Idle)
	require.NoError(t, err)
	assert.False(t, ok, "No record must not look like timestamp zero")

	require.NoError(t, log.Record(ctx, accesslog.Access{Key: "k", Type: accesslog.Idle, Timestamp: 10 * time.Second}))
	require.NoError(t, log.Record(ctx, accesslog.Access{Key: "k", Type: accesslog.Idle, Timestamp: 4 * time.Second}))
	require.NoError(t, log.Record(ctx, accesslog.Access{Key: "k", Type: accesslog.Alive, Timestamp: 0}))

	ts, ok, err := log.Last(ctx, "k", accesslog.Idle)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, ts, "Timestamps never move backwards")

	ts, ok, err = log.Last(ctx, "k", accesslog.Alive)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), ts)

	require.NoError(t, log.Clear(ctx))
	_, ok, err = log.Last(ctx, "k", accesslog.Alive)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, log.Close())
	require.NoError(t, log.Close(), "Close is idempotent")
}

// TestCache_SurvivesRestart checks that access decisions are persisted: a
// second process opening the same file serves the value without fetching.
func TestCache_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC))

	var fetches atomic.Int32
	fetcher := cache.FetcherFunc[account](func(_ context.Context, key string) (account, error) {
		fetches.Add(1)
		return account{ID: key, Username: "user-" + key}, nil
	})

	newCache := func(db *sqlstore.Database) *cache.Cache[account] {
		c, err := cache.New[account](
			&cache.Config{Name: db.Namespace()},
			fetcher,
			sqlstore.NewStorage[account](db),
			db.AccessLog(),
			zerolog.Nop(),
			cache.WithElapsedTimeProvider(cache.NewClockProvider(clock)),
		)
		require.NoError(t, err)
		return c
	}

	db := openTestDB(t, path)
	first := newCache(db)
	got, err := first.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "user-42", got.Username)
	require.NoError(t, db.Close())

	clock.Advance(10 * time.Second)

	db = openTestDB(t, path)
	second := newCache(db)
	got, err = second.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "user-42", got.Username)
	assert.Equal(t, int32(1), fetches.Load(), "The restarted cache should serve the persisted value")

	require.NoError(t, second.Terminate(ctx))

	db = openTestDB(t, path)
	t.Cleanup(func() { _ = db.Close() })
	third := newCache(db)
	_, err = third.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetches.Load(), "Terminate wipes both values and accesses")
}
