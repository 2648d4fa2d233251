package accesslog_test

import (
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/go-accesscache/pkg/accesslog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryLog(t *testing.T) {
	ctx := context.Background()

	t.Run("Missing access is reported as not found, not as zero", func(t *testing.T) {
		log := accesslog.NewInMemoryLog()

		_, ok, err := log.Last(ctx, "missing", accesslog.Idle)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("A zero timestamp is still a recorded access", func(t *testing.T) {
		log := accesslog.NewInMemoryLog()
		require.NoError(t, log.Record(ctx, accesslog.Access{Key: "k", Type: accesslog.Alive, Timestamp: 0}))

		ts, ok, err := log.Last(ctx, "k", accesslog.Alive)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, time.Duration(0), ts)
	})

	t.Run("Latest access wins and types are independent", func(t *testing.T) {
		log := accesslog.NewInMemoryLog()
		require.NoError(t, log.Record(ctx, accesslog.Access{Key: "k", Type: accesslog.Idle, Timestamp: time.Second}))
		require.NoError(t, log.Record(ctx, accesslog.Access{Key: "k", Type: accesslog.Idle, Timestamp: 5 * time.Second}))
		require.NoError(t, log.Record(ctx, accesslog.Access{Key: "k", Type: accesslog.Alive, Timestamp: 2 * time.Second}))

		idle, ok, err := log.Last(ctx, "k", accesslog.Idle)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 5*time.Second, idle)

		alive, ok, err := log.Last(ctx, "k", accesslog.Alive)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 2*time.Second, alive)
		assert.Equal(t, 2, log.Len(), "Only the latest access per key and type is kept")
	})

	t.Run("Clear forgets everything", func(t *testing.T) {
		log := accesslog.NewInMemoryLog()
		require.NoError(t, log.Record(ctx, accesslog.Access{Key: "k", Type: accesslog.Idle, Timestamp: time.Second}))
		require.NoError(t, log.Clear(ctx))

		_, ok, err := log.Last(ctx, "k", accesslog.Idle)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, log.Len())
	})
}

func TestAccessType(t *testing.T) {
	for _, at := range []accesslog.AccessType{accesslog.Idle, accesslog.Alive} {
		parsed, err := accesslog.ParseAccessType(at.String())
		require.NoError(t, err)
		assert.Equal(t, at, parsed)
	}
	assert.Equal(t, "IDLE", accesslog.Idle.String())
	assert.Equal(t, "ALIVE", accesslog.Alive.String())

	_, err := accesslog.ParseAccessType("STALE")
	assert.Error(t, err)
}

func TestMillisConversion(t *testing.T) {
	ts := 90*time.Second + 250*time.Millisecond + 999*time.Microsecond
	assert.Equal(t, int64(90250), accesslog.ToMillis(ts))
	assert.Equal(t, 90250*time.Millisecond, accesslog.FromMillis(accesslog.ToMillis(ts)))
}
